// Package rxnorm loads an RxNorm RRF release and resolves every NDC to its
// drug concept and ingredients.
package rxnorm

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/giygas/ndc-unii/logging"
	"github.com/giygas/ndc-unii/rxnorm/entities"
	"golang.org/x/text/encoding/charmap"
)

// TableSpec names a source table and the minimum number of fields a row must have
type TableSpec struct {
	Name      string
	MinFields int
}

var (
	ConceptsTable      = TableSpec{Name: "RXNCONSO", MinFields: 15}
	RelationshipsTable = TableSpec{Name: "RXNREL", MinFields: 11}
	AttributesTable    = TableSpec{Name: "RXNSAT", MinFields: 12}
)

// Attribute names kept from RXNSAT, everything else is dropped at load time
const (
	AtnNDC              = "NDC"
	AtnUNII             = "UNII_CODE"
	AtnActiveIngredient = "RXN_AI"
	AtnActiveMoiety     = "RXN_AM"
	AtnBasisOfStrength  = "RXN_BOSS_FROM"
)

var keptAttributes = map[string]bool{
	AtnNDC:              true,
	AtnUNII:             true,
	AtnActiveIngredient: true,
	AtnActiveMoiety:     true,
	AtnBasisOfStrength:  true,
}

// Table is a parsed source table
type Table[T any] struct {
	Spec       TableSpec
	Path       string
	Rows       []T
	Lines      int
	EmptyLines int
}

// maxLineSize bounds a single RRF line, RXNSAT values can be long
const maxLineSize = 4 * 1024 * 1024

// readRRF calls fn with the trimmed fields of every non-empty line of path.
// Lines that are not valid UTF-8 are decoded as ISO-8859-1. The context is
// checked every 10000 lines.
func readRRF(ctx context.Context, path string, spec TableSpec, fn func(fields []string)) (lines, empty int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("Failed to close RRF file", "path", path, "error", err)
		}
	}()

	decoder := charmap.ISO8859_1.NewDecoder()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		lines++
		if lines%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return lines, empty, err
			}
		}
		line := scanner.Text()

		if strings.TrimSpace(line) == "" {
			empty++
			continue
		}

		if !utf8.ValidString(line) {
			decoded, derr := decoder.String(line)
			if derr == nil {
				line = decoded
			}
		}

		fields := strings.Split(line, "|")
		if len(fields) < spec.MinFields {
			return lines, empty, &ParseError{
				Table:    spec.Name,
				Path:     path,
				Line:     lines,
				Fields:   len(fields),
				Required: spec.MinFields,
			}
		}

		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		fn(fields)
	}

	if err := scanner.Err(); err != nil {
		return lines, empty, fmt.Errorf("scanner error in %s: %w", path, err)
	}

	return lines, empty, nil
}

// LoadConcepts parses RXNCONSO. Every atom is kept.
func LoadConcepts(ctx context.Context, path string) (*Table[entities.Atom], error) {
	table := &Table[entities.Atom]{Spec: ConceptsTable, Path: path}

	lines, empty, err := readRRF(ctx, path, ConceptsTable, func(f []string) {
		table.Rows = append(table.Rows, entities.Atom{
			Rxcui:       f[0],
			TermStatus:  f[2],
			IsPreferred: f[6],
			Sab:         f[11],
			Tty:         f[12],
			Code:        f[13],
			Str:         f[14],
		})
	})
	if err != nil {
		return nil, err
	}

	table.Lines, table.EmptyLines = lines, empty
	logging.Debug("Concepts table loaded", "path", path, "rows", len(table.Rows), "empty_lines", empty)
	return table, nil
}

// LoadRelationships parses RXNREL
func LoadRelationships(ctx context.Context, path string) (*Table[entities.Relationship], error) {
	table := &Table[entities.Relationship]{Spec: RelationshipsTable, Path: path}

	lines, empty, err := readRRF(ctx, path, RelationshipsTable, func(f []string) {
		table.Rows = append(table.Rows, entities.Relationship{
			Rxcui1: f[0],
			Rxcui2: f[4],
			Rela:   f[7],
			Sab:    f[10],
		})
	})
	if err != nil {
		return nil, err
	}

	table.Lines, table.EmptyLines = lines, empty
	logging.Debug("Relationships table loaded", "path", path, "rows", len(table.Rows), "empty_lines", empty)
	return table, nil
}

// LoadAttributes parses RXNSAT, keeping only the attribute names the resolver uses.
// Every row is still checked for its field count.
func LoadAttributes(ctx context.Context, path string) (*Table[entities.Attribute], error) {
	table := &Table[entities.Attribute]{Spec: AttributesTable, Path: path}

	lines, empty, err := readRRF(ctx, path, AttributesTable, func(f []string) {
		if !keptAttributes[f[8]] {
			return
		}
		table.Rows = append(table.Rows, entities.Attribute{
			Rxcui:    f[0],
			Atn:      f[8],
			Sab:      f[9],
			Atv:      f[10],
			Suppress: f[11],
		})
	})
	if err != nil {
		return nil, err
	}

	table.Lines, table.EmptyLines = lines, empty
	logging.Debug("Attributes table loaded", "path", path, "rows", len(table.Rows), "empty_lines", empty)
	return table, nil
}
