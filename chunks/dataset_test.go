package chunks

import (
	"testing"

	"github.com/giygas/ndc-unii/logging"
)

func loadSample(t *testing.T) *Dataset {
	t.Helper()
	logging.InitLogger("")

	dir := t.TempDir()
	if _, err := NewBuilder(dir, 3).BuildRecords(sampleMapping()); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	ds, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return ds
}

func TestLoadDataset(t *testing.T) {
	ds := loadSample(t)

	if ds.Index.BucketSize != 3 {
		t.Errorf("Expected bucket size 3, got %d", ds.Index.BucketSize)
	}
	if ds.Records() != len(sampleMapping()) {
		t.Errorf("Expected %d records, got %d", len(sampleMapping()), ds.Records())
	}
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Expected an error for an empty directory")
	}
}

func TestLookup(t *testing.T) {
	ds := loadSample(t)

	tests := []struct {
		query string
		want  int
	}{
		{"00002-7715-01", 1},
		{"000027715", 1},
		{"00002", 2},
		{"000", 44},
		{"00", 44},
		{"1", 1},
		{"999", 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := ds.Lookup(tt.query)
			if err != nil {
				t.Fatalf("Lookup failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Lookup(%q) returned %d records, want %d", tt.query, len(got), tt.want)
			}
		})
	}

	if _, err := ds.Lookup("abc"); err == nil {
		t.Error("Expected an error without digits")
	}
}

func TestSearch(t *testing.T) {
	ds := loadSample(t)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"name substring", "metformin", 1},
		{"name case insensitive", "AMLODIPINE", 1},
		{"rxcui", "308135", 1},
		{"unii", "9100l32l2n", 1},
		{"ndc prefix", "00099-00", 42},
		{"blank", "   ", 0},
		{"no match", "zzzz", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ds.Search(tt.token, 0); len(got) != tt.want {
				t.Errorf("Search(%q) returned %d records, want %d", tt.token, len(got), tt.want)
			}
		})
	}

	if got := ds.Search("filler", 5); len(got) != 5 {
		t.Errorf("Expected the limit to apply, got %d", len(got))
	}
}
