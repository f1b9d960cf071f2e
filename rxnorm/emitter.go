package rxnorm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/giygas/ndc-unii/logging"
	"github.com/giygas/ndc-unii/rxnorm/entities"
)

// Emit writes the canonical mapping as an indented JSON object keyed by NDC.
// Keys are sorted by the encoder so the output only depends on the records.
func Emit(path string, records map[string]entities.Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return &IOError{Op: "encode", Path: path, Err: err}
	}
	data = append(data, '\n')

	if err := WriteFileAtomic(path, data); err != nil {
		return err
	}

	logging.Info("Canonical mapping written", "path", path, "records", len(records), "bytes", len(data))
	return nil
}

// WriteFileAtomic writes data next to path and renames it into place
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return &IOError{Op: "chmod", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// ReadMapping loads a canonical mapping written by Emit
func ReadMapping(path string) (map[string]entities.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping %s: %w", path, err)
	}

	var records map[string]entities.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode mapping %s: %w", path, err)
	}
	return records, nil
}
