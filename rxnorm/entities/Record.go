package entities

// Record is the canonical mapping value for one NDC
type Record struct {
	Ndc         string       `json:"ndc"`
	Rxcui       string       `json:"rxcui"`
	Str         string       `json:"str"`
	Tty         string       `json:"tty"`
	Ingredients []Ingredient `json:"ingredients"`
}

// Ingredient is an IN or PIN reached from the drug, with its registry code and role flags
type Ingredient struct {
	Rxcui            string  `json:"rxcui"`
	Str              string  `json:"str"`
	Tty              string  `json:"tty"`
	Unii             *string `json:"unii"`
	ActiveIngredient bool    `json:"active_ingredient"`
	ActiveMoiety     bool    `json:"active_moiety"`
	BasisOfStrength  bool    `json:"basis_of_strength"`
}

// UniiCodes returns the distinct registry codes of the ingredients in order, skipping missing ones
func (r Record) UniiCodes() []string {
	codes := make([]string, 0, len(r.Ingredients))
	seen := make(map[string]bool, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		if ing.Unii == nil || seen[*ing.Unii] {
			continue
		}
		seen[*ing.Unii] = true
		codes = append(codes, *ing.Unii)
	}
	return codes
}
