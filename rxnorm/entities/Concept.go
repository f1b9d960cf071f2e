package entities

// Atom is one RXNCONSO row: a name for a concept in a given source vocabulary
type Atom struct {
	Rxcui       string
	TermStatus  string // TS, "P" for preferred
	IsPreferred string // ISPREF, "Y" for preferred
	Sab         string
	Tty         string
	Code        string
	Str         string
}

// Concept is a concept as seen from one source vocabulary, named by its best atom
type Concept struct {
	Rxcui string `json:"rxcui"`
	Name  string `json:"str"`
	Tty   string `json:"tty"`
	Sab   string `json:"sab"`
}
