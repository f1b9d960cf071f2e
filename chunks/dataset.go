package chunks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/giygas/ndc-unii/rxnorm/entities"
)

// MaxSearchResults caps Search
const MaxSearchResults = 100

// Dataset is a loaded chunk directory: the bucket index and the search index.
// Bucket files stay on disk and are read on lookup, like the static viewer does.
type Dataset struct {
	Dir         string
	Index       entities.BucketIndex
	SearchIndex entities.SearchIndex
}

// Load reads the index and search files of a chunk directory
func Load(dir string) (*Dataset, error) {
	ds := &Dataset{Dir: dir}

	if err := readJSON(filepath.Join(dir, IndexFile), &ds.Index); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, SearchFile), &ds.SearchIndex); err != nil {
		return nil, err
	}
	if ds.Index.Buckets == nil {
		ds.Index.Buckets = map[string]int{}
	}
	return ds, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// Records returns the number of NDCs declared by the index
func (ds *Dataset) Records() int {
	total := 0
	for _, n := range ds.Index.Buckets {
		total += n
	}
	return total
}

// Lookup returns the records whose digit-only NDC starts with digits.
// Only the buckets that can hold such NDCs are read.
func (ds *Dataset) Lookup(digits string) ([]entities.Record, error) {
	digits = Digits(digits)
	if digits == "" {
		return nil, fmt.Errorf("no digits to look up")
	}

	var buckets []string
	if len(digits) >= ds.Index.BucketSize {
		bucket := digits[:ds.Index.BucketSize]
		if _, ok := ds.Index.Buckets[bucket]; ok {
			buckets = append(buckets, bucket)
		}
	} else {
		for bucket := range ds.Index.Buckets {
			if strings.HasPrefix(bucket, digits) {
				buckets = append(buckets, bucket)
			}
		}
		sort.Strings(buckets)
	}

	results := []entities.Record{}
	for _, bucket := range buckets {
		items, err := readBucket(ds.Dir, bucket)
		if errors.Is(err, fs.ErrNotExist) {
			// Dropped by a rebuild that has not been loaded yet
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, rec := range items {
			if strings.HasPrefix(Digits(rec.Ndc), digits) {
				results = append(results, rec)
			}
		}
	}
	return results, nil
}

// Search scans the search index for a token: a case-insensitive substring of
// the name, an exact RxCUI or registry code, or a prefix of the NDC digits.
// At most limit results are returned, in index order.
func (ds *Dataset) Search(token string, limit int) []entities.SearchRecord {
	token = strings.TrimSpace(token)
	if token == "" {
		return []entities.SearchRecord{}
	}
	if limit <= 0 || limit > MaxSearchResults {
		limit = MaxSearchResults
	}

	lower := strings.ToLower(token)
	upper := strings.ToUpper(token)
	digits := Digits(token)
	numeric := digits != "" && len(digits) == len(strings.ReplaceAll(token, "-", ""))

	results := []entities.SearchRecord{}
	for _, rec := range ds.SearchIndex.Records {
		if matches(rec, lower, upper, digits, numeric) {
			results = append(results, rec)
			if len(results) == limit {
				break
			}
		}
	}
	return results
}

func matches(rec entities.SearchRecord, lower, upper, digits string, numeric bool) bool {
	if strings.Contains(strings.ToLower(rec.Name), lower) {
		return true
	}
	if rec.Rxcui == lower {
		return true
	}
	for _, code := range rec.Unii {
		if code == upper {
			return true
		}
	}
	return numeric && strings.HasPrefix(Digits(rec.Ndc), digits)
}
