package entities

// Relationship is one RXNREL row
type Relationship struct {
	Rxcui1 string
	Rxcui2 string
	Rela   string
	Sab    string
}
