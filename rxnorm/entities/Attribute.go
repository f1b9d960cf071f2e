package entities

// Attribute is one RXNSAT row
type Attribute struct {
	Rxcui    string
	Atn      string
	Sab      string
	Atv      string
	Suppress string
}
