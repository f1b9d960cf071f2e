// Package chunks repartitions the canonical mapping into NDC prefix buckets
// and a flattened search index for the static viewer.
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

	"github.com/giygas/ndc-unii/logging"
	"github.com/giygas/ndc-unii/rxnorm"
	"github.com/giygas/ndc-unii/rxnorm/entities"
)

// Output file names
const (
	IndexFile    = "index.json"
	SearchFile   = "search.json"
	bucketPrefix = "ndc_"
	bucketSuffix = ".json"

	// UnknownBucket holds NDCs without any digit
	UnknownBucket = "zzz"
)

// ConsistencyError reports a bucket file whose record count differs from the index
type ConsistencyError struct {
	Bucket   string
	Declared int
	Actual   int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("bucket %s: index declares %d records, file has %d", e.Bucket, e.Declared, e.Actual)
}

// Digits strips everything but ASCII digits from an NDC
func Digits(ndc string) string {
	var b strings.Builder
	b.Grow(len(ndc))
	for _, r := range ndc {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BucketKey returns the first size digits of the NDC, or UnknownBucket when it has none
func BucketKey(ndc string, size int) string {
	d := Digits(ndc)
	if d == "" {
		return UnknownBucket
	}
	if len(d) > size {
		return d[:size]
	}
	return d
}

// BucketFile returns the file name of a bucket
func BucketFile(bucket string) string {
	return bucketPrefix + bucket + bucketSuffix
}

// Builder writes bucket, index and search files into a directory
type Builder struct {
	OutputDir  string
	BucketSize int
}

// NewBuilder creates a builder
func NewBuilder(outputDir string, bucketSize int) *Builder {
	return &Builder{OutputDir: outputDir, BucketSize: bucketSize}
}

// Result describes what a build wrote
type Result struct {
	Index   entities.BucketIndex
	Records int
	Removed []string // Stale bucket files from an earlier build
}

// Build reads the canonical mapping at mappingPath and writes the chunks
func (b *Builder) Build(mappingPath string) (*Result, error) {
	records, err := rxnorm.ReadMapping(mappingPath)
	if err != nil {
		return nil, err
	}
	return b.BuildRecords(records)
}

// BuildRecords writes the chunks for an in-memory mapping. Records are
// ordered by NDC inside every file so the output only depends on the mapping.
// The files are written to a staging directory next to OutputDir, checked
// against the index, then swapped in, so the served directory never holds a
// half written build.
func (b *Builder) BuildRecords(records map[string]entities.Record) (*Result, error) {
	if b.BucketSize <= 0 {
		return nil, fmt.Errorf("invalid bucket size %d", b.BucketSize)
	}

	staging := b.OutputDir + ".staging"
	if err := os.RemoveAll(staging); err != nil {
		return nil, &rxnorm.IOError{Op: "remove", Path: staging, Err: err}
	}
	if err := os.MkdirAll(staging, 0750); err != nil {
		return nil, &rxnorm.IOError{Op: "mkdir", Path: staging, Err: err}
	}
	defer os.RemoveAll(staging)

	keys := make([]string, 0, len(records))
	for key := range records {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	buckets := make(map[string][]entities.Record)
	search := entities.SearchIndex{Records: make([]entities.SearchRecord, 0, len(records))}

	for _, key := range keys {
		rec := records[key]
		if rec.Ndc == "" {
			rec.Ndc = key
		}
		if rec.Ingredients == nil {
			rec.Ingredients = []entities.Ingredient{}
		}
		bucket := BucketKey(rec.Ndc, b.BucketSize)
		buckets[bucket] = append(buckets[bucket], rec)
		search.Records = append(search.Records, entities.SearchRecord{
			Bucket: bucket,
			Ndc:    rec.Ndc,
			Rxcui:  rec.Rxcui,
			Name:   rec.Str,
			Unii:   rec.UniiCodes(),
		})
	}

	sort.SliceStable(search.Records, func(i, j int) bool {
		return search.Records[i].Bucket < search.Records[j].Bucket
	})

	index := entities.BucketIndex{BucketSize: b.BucketSize, Buckets: make(map[string]int, len(buckets))}
	for bucket, items := range buckets {
		data, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("failed to encode bucket %s: %w", bucket, err)
		}
		if err := rxnorm.WriteFileAtomic(filepath.Join(staging, BucketFile(bucket)), data); err != nil {
			return nil, err
		}
		index.Buckets[bucket] = len(items)
		logging.Debug("Bucket written", "bucket", bucket, "records", len(items))
	}

	searchData, err := json.Marshal(search)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search index: %w", err)
	}
	if err := rxnorm.WriteFileAtomic(filepath.Join(staging, SearchFile), searchData); err != nil {
		return nil, err
	}

	indexData, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode bucket index: %w", err)
	}
	if err := rxnorm.WriteFileAtomic(filepath.Join(staging, IndexFile), append(indexData, '\n')); err != nil {
		return nil, err
	}

	if err := Verify(staging, index); err != nil {
		return nil, err
	}

	removed, err := b.staleBuckets(index)
	if err != nil {
		return nil, err
	}
	if err := b.carryOver(staging); err != nil {
		return nil, err
	}
	if err := swapDir(staging, b.OutputDir); err != nil {
		return nil, err
	}

	logging.Info("Web chunks written",
		"dir", b.OutputDir,
		"buckets", len(index.Buckets),
		"records", len(records),
		"stale_removed", len(removed),
	)
	return &Result{Index: index, Records: len(records), Removed: removed}, nil
}

func isChunkFile(name string) bool {
	if name == IndexFile || name == SearchFile {
		return true
	}
	return strings.HasPrefix(name, bucketPrefix) && strings.HasSuffix(name, bucketSuffix)
}

// staleBuckets lists the bucket files of the current build that are not part of index
func (b *Builder) staleBuckets(index entities.BucketIndex) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(b.OutputDir, bucketPrefix+"*"+bucketSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket files: %w", err)
	}

	var stale []string
	for _, path := range matches {
		name := filepath.Base(path)
		bucket := strings.TrimSuffix(strings.TrimPrefix(name, bucketPrefix), bucketSuffix)
		if _, ok := index.Buckets[bucket]; !ok {
			stale = append(stale, name)
		}
	}
	sort.Strings(stale)
	return stale, nil
}

// carryOver copies the files of OutputDir that the builder does not own into staging
func (b *Builder) carryOver(staging string) error {
	entries, err := os.ReadDir(b.OutputDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &rxnorm.IOError{Op: "read", Path: b.OutputDir, Err: err}
	}

	for _, entry := range entries {
		name := entry.Name()
		if isChunkFile(name) {
			continue
		}
		src := filepath.Join(b.OutputDir, name)
		dst := filepath.Join(staging, name)

		if entry.IsDir() {
			if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
				return &rxnorm.IOError{Op: "copy", Path: src, Err: err}
			}
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return &rxnorm.IOError{Op: "read", Path: src, Err: err}
		}
		if err := os.WriteFile(dst, data, 0644); err != nil {
			return &rxnorm.IOError{Op: "write", Path: dst, Err: err}
		}
	}
	return nil
}

// swapDir replaces dir with staging. The previous content is moved aside
// first and restored if staging cannot be renamed in.
func swapDir(staging, dir string) error {
	old := dir + ".old"
	if err := os.RemoveAll(old); err != nil {
		return &rxnorm.IOError{Op: "remove", Path: old, Err: err}
	}

	hadPrevious := true
	if err := os.Rename(dir, old); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return &rxnorm.IOError{Op: "rename", Path: dir, Err: err}
		}
		hadPrevious = false
	}

	if err := os.Rename(staging, dir); err != nil {
		if hadPrevious {
			_ = os.Rename(old, dir)
		}
		return &rxnorm.IOError{Op: "rename", Path: staging, Err: err}
	}

	if hadPrevious {
		if err := os.RemoveAll(old); err != nil {
			logging.Warn("Failed to remove previous chunks", "path", old, "error", err)
		}
	}
	return nil
}

// Verify reads every bucket file declared by index and compares its record
// count with the declared one
func Verify(dir string, index entities.BucketIndex) error {
	buckets := make([]string, 0, len(index.Buckets))
	for bucket := range index.Buckets {
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)

	for _, bucket := range buckets {
		items, err := readBucket(dir, bucket)
		if errors.Is(err, fs.ErrNotExist) {
			return &ConsistencyError{Bucket: bucket, Declared: index.Buckets[bucket], Actual: 0}
		}
		if err != nil {
			return err
		}
		if declared := index.Buckets[bucket]; declared != len(items) {
			return &ConsistencyError{Bucket: bucket, Declared: declared, Actual: len(items)}
		}
	}
	return nil
}

func readBucket(dir, bucket string) ([]entities.Record, error) {
	path := filepath.Join(dir, BucketFile(bucket))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bucket %s: %w", path, err)
	}
	var items []entities.Record
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode bucket %s: %w", path, err)
	}
	return items, nil
}
