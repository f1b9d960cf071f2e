package entities

// SearchRecord is one entry of the flattened search index
type SearchRecord struct {
	Bucket string   `json:"bucket"`
	Ndc    string   `json:"ndc"`
	Rxcui  string   `json:"rxcui"`
	Name   string   `json:"name"`
	Unii   []string `json:"unii"`
}

// SearchIndex is the search file layout
type SearchIndex struct {
	Records []SearchRecord `json:"records"`
}

// BucketIndex is the bucket metadata file layout
type BucketIndex struct {
	BucketSize int            `json:"bucket_size"`
	Buckets    map[string]int `json:"buckets"`
}
