package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/giygas/ndc-unii/chunks"
	"github.com/giygas/ndc-unii/config"
	"github.com/giygas/ndc-unii/logging"
	"github.com/giygas/ndc-unii/rxnorm"
)

// A clinical drug with one component and one ingredient, a branded drug
// pointing at it, and an NDC whose concept has no RXNORM atom.
var (
	consoRows = []string{
		"861007|ENG|P||PF||Y|||||RXNORM|SCD|861007|Metformin 500 MG Oral Tablet||N|4096|",
		"316255|ENG|P||PF||Y|||||RXNORM|SCDC|316255|Metformin 500 MG||N|4096|",
		"6809|ENG|P||PF||Y|||||RXNORM|IN|6809|Metformin||N|4096|",
		"6809|ENG|||PF|||||||MTHSPL|SU|9100L32L2N|substance 9100L32L2N||N|4096|",
		"861008|ENG|P||PF||Y|||||RXNORM|SBD|861008|Metformin 500 MG Oral Tablet [Glucophage]||N|4096|",
	}
	relRows = []string{
		"316255||CUI|RO|861007||CUI|constitutes|||RXNORM|RXNORM||||N||",
		"6809||CUI|RO|316255||CUI|ingredient_of|||RXNORM|RXNORM||||N||",
		"861007||CUI|RO|861008||CUI|tradename_of|||RXNORM|RXNORM||||N||",
	}
	satRows = []string{
		"861007||||||||NDC|RXNORM|00002-7715-01|N||",
		"861008||||||||NDC|RXNORM|00087-6060-05|N||",
		"999999||||||||NDC|RXNORM|12345-678-90|N||",
		"861007||||||||RXN_AI|RXNORM|{316255} 6809|N||",
		"861007||||||||RXN_BOSS_FROM|RXNORM|{316255} AI|N||",
	}
)

func writeRelease(t *testing.T) string {
	t.Helper()
	return writeTables(t, consoRows, relRows, satRows)
}

func writeTables(t *testing.T, conso, rel, sat []string) string {
	t.Helper()
	dir := t.TempDir()
	for name, rows := range map[string][]string{
		rxnorm.ConceptsFile:      conso,
		rxnorm.RelationshipsFile: rel,
		rxnorm.AttributesFile:    sat,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(rows, "\n")+"\n"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return dir
}

func testConfig(t *testing.T, rrfDir string) *config.Config {
	t.Helper()
	out := t.TempDir()
	return &config.Config{
		RRFDir:            rrfDir,
		ReleaseURL:        "http://127.0.0.1:0/unused.zip",
		SkipDownload:      true,
		OutputPath:        filepath.Join(out, "ndc_unii_rxnorm.json"),
		WebDataDir:        filepath.Join(out, "web", "data"),
		BucketSize:        3,
		MaxTraversalDepth: 4,
		ExcludedSCDC:      []string{"1364431"},
	}
}

func TestRun(t *testing.T) {
	logging.InitLogger("")

	cfg := testConfig(t, writeRelease(t))
	report, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.RunID == "" {
		t.Error("Expected a run ID")
	}
	if report.Summary.NDCAttributes != 3 || report.Summary.Emitted != 2 || report.Summary.Skipped != 1 {
		t.Errorf("Unexpected summary: %+v", report.Summary)
	}
	if report.Warnings != 1 {
		t.Errorf("Expected 1 warning for the unnamed concept, got %d", report.Warnings)
	}
	if report.Quality == nil || report.Quality.TotalRecords != 2 {
		t.Errorf("Unexpected quality report: %+v", report.Quality)
	}
	if report.Buckets != 1 {
		t.Errorf("Expected 1 bucket, got %d", report.Buckets)
	}

	mapping, err := rxnorm.ReadMapping(cfg.OutputPath)
	if err != nil {
		t.Fatalf("Failed to read mapping: %v", err)
	}

	rec, ok := mapping["00002-7715-01"]
	if !ok {
		t.Fatal("Expected the clinical drug NDC in the mapping")
	}
	if len(rec.Ingredients) != 1 || rec.Ingredients[0].Rxcui != "6809" {
		t.Fatalf("Unexpected ingredients: %+v", rec.Ingredients)
	}
	ing := rec.Ingredients[0]
	if ing.Unii == nil || *ing.Unii != "9100L32L2N" || !ing.ActiveIngredient || !ing.BasisOfStrength || ing.ActiveMoiety {
		t.Errorf("Unexpected ingredient: %+v", ing)
	}

	branded, ok := mapping["00087-6060-05"]
	if !ok || branded.Tty != "SBD" || len(branded.Ingredients) != 1 {
		t.Errorf("Expected the branded drug to resolve through its clinical drug, got %+v", branded)
	}

	ds, err := chunks.Load(cfg.WebDataDir)
	if err != nil {
		t.Fatalf("Failed to load chunks: %v", err)
	}
	if ds.Records() != 2 {
		t.Errorf("Expected 2 chunked records, got %d", ds.Records())
	}
	if got := ds.Search("9100L32L2N", 0); len(got) != 2 {
		t.Errorf("Expected both NDCs to be found by registry code, got %d", len(got))
	}
}

func TestRunPackSharingIngredient(t *testing.T) {
	logging.InitLogger("")

	// Two strengths of one ingredient in the same pack
	dir := writeTables(t,
		[]string{
			"900|ENG|P||PF||Y|||||RXNORM|GPCK|900|Sertraline Starter Pack||N|4096|",
			"101|ENG|P||PF||Y|||||RXNORM|SCD|101|Sertraline 25 MG Oral Tablet||N|4096|",
			"102|ENG|P||PF||Y|||||RXNORM|SCD|102|Sertraline 100 MG Oral Tablet||N|4096|",
			"201|ENG|P||PF||Y|||||RXNORM|SCDC|201|Sertraline 25 MG||N|4096|",
			"202|ENG|P||PF||Y|||||RXNORM|SCDC|202|Sertraline 100 MG||N|4096|",
			"28439|ENG|P||PF||Y|||||RXNORM|IN|28439|Sertraline||N|4096|",
		},
		[]string{
			"101||CUI|RO|900||CUI|contains|||RXNORM|RXNORM||||N||",
			"102||CUI|RO|900||CUI|contains|||RXNORM|RXNORM||||N||",
			"201||CUI|RO|101||CUI|consists_of|||RXNORM|RXNORM||||N||",
			"202||CUI|RO|102||CUI|consists_of|||RXNORM|RXNORM||||N||",
			"28439||CUI|RO|201||CUI|has_ingredient|||RXNORM|RXNORM||||N||",
			"28439||CUI|RO|202||CUI|has_ingredient|||RXNORM|RXNORM||||N||",
		},
		[]string{
			"900||||||||NDC|RXNORM|00173-0594-02|N||",
		},
	)

	cfg := testConfig(t, dir)
	report, err := New(cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Summary.Emitted != 1 {
		t.Errorf("Expected the pack NDC to be emitted, got %+v", report.Summary)
	}

	mapping, err := rxnorm.ReadMapping(cfg.OutputPath)
	if err != nil {
		t.Fatalf("Failed to read mapping: %v", err)
	}
	if ings := mapping["00173-0594-02"].Ingredients; len(ings) != 1 || ings[0].Rxcui != "28439" {
		t.Errorf("Expected the shared ingredient once, got %+v", ings)
	}
}

func TestRunMissingFiles(t *testing.T) {
	logging.InitLogger("")

	cfg := testConfig(t, t.TempDir())
	_, err := New(cfg).Run(context.Background())
	if !errors.Is(err, rxnorm.ErrMissingFiles) {
		t.Fatalf("Expected ErrMissingFiles, got %v", err)
	}
	if _, statErr := os.Stat(cfg.OutputPath); !os.IsNotExist(statErr) {
		t.Error("No mapping should be written when the release is missing")
	}
}

func TestRunCancelled(t *testing.T) {
	logging.InitLogger("")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := testConfig(t, writeRelease(t))
	if _, err := New(cfg).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestChunkWithoutMapping(t *testing.T) {
	logging.InitLogger("")

	cfg := testConfig(t, t.TempDir())
	if _, err := New(cfg).Chunk(); err == nil {
		t.Error("Expected an error without a mapping file")
	}
}

func TestSummaryCounts(t *testing.T) {
	counts := SummaryCounts(rxnorm.Summary{Emitted: 5, Conflicts: 2})
	if counts["emitted"] != 5 || counts["conflicts"] != 2 || counts["skipped"] != 0 {
		t.Errorf("Unexpected counts: %v", counts)
	}
	if len(counts) != 9 {
		t.Errorf("Expected 9 counters, got %d", len(counts))
	}
}
