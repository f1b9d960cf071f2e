package rxnorm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// rrfFixture collects rows for the three tables of a small release
type rrfFixture struct {
	conso []string
	rel   []string
	sat   []string
}

func (f *rrfFixture) concept(rxcui, tty, name string) *rrfFixture {
	return f.atom(rxcui, "RXNORM", tty, rxcui, name, "P", "Y")
}

func (f *rrfFixture) atom(rxcui, sab, tty, code, name, ts, ispref string) *rrfFixture {
	f.conso = append(f.conso, fmt.Sprintf("%s|ENG|%s||PF||%s|||||%s|%s|%s|%s||N|4096|", rxcui, ts, ispref, sab, tty, code, name))
	return f
}

func (f *rrfFixture) unii(rxcui, code string) *rrfFixture {
	return f.atom(rxcui, "MTHSPL", "SU", code, "substance "+code, "", "")
}

func (f *rrfFixture) link(rxcui1, rela, rxcui2 string) *rrfFixture {
	f.rel = append(f.rel, fmt.Sprintf("%s||CUI|RO|%s||CUI|%s|||RXNORM|RXNORM||||N||", rxcui1, rxcui2, rela))
	return f
}

func (f *rrfFixture) attr(rxcui, atn, sab, atv string) *rrfFixture {
	f.sat = append(f.sat, fmt.Sprintf("%s||||||||%s|%s|%s|N||", rxcui, atn, sab, atv))
	return f
}

func (f *rrfFixture) ndc(rxcui, ndc string) *rrfFixture {
	return f.attr(rxcui, AtnNDC, SabRxNorm, ndc)
}

// write stores the tables under a fresh directory and returns their paths
func (f *rrfFixture) write(t *testing.T) Paths {
	t.Helper()
	dir := t.TempDir()
	paths := Paths{
		Concepts:      filepath.Join(dir, ConceptsFile),
		Relationships: filepath.Join(dir, RelationshipsFile),
		Attributes:    filepath.Join(dir, AttributesFile),
	}
	for path, rows := range map[string][]string{
		paths.Concepts:      f.conso,
		paths.Relationships: f.rel,
		paths.Attributes:    f.sat,
	} {
		content := strings.Join(rows, "\n")
		if len(rows) > 0 {
			content += "\n"
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", path, err)
		}
	}
	return paths
}

func (f *rrfFixture) load(t *testing.T) *Release {
	t.Helper()
	release, err := LoadRelease(context.Background(), f.write(t))
	if err != nil {
		t.Fatalf("LoadRelease failed: %v", err)
	}
	return release
}

// metforminFixture is one clinical drug with one component and one ingredient,
// the ingredient being both the active ingredient and the basis of strength
func metforminFixture() *rrfFixture {
	f := &rrfFixture{}
	return f.
		concept("861007", "SCD", "Metformin 500 MG Oral Tablet").
		concept("316255", "SCDC", "Metformin 500 MG").
		concept("6809", "IN", "Metformin").
		unii("6809", "9100L32L2N").
		link("316255", RelaConstitutes, "861007").
		link("6809", RelaIngredientOf, "316255").
		ndc("861007", "00002-7715-01").
		attr("861007", AtnActiveIngredient, SabRxNorm, "{316255} 6809").
		attr("861007", AtnBasisOfStrength, SabRxNorm, "{316255} AI")
}
