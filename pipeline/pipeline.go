// Package pipeline runs the build end to end: fetch the RxNorm tables when
// missing, resolve every NDC, write the canonical mapping, then write the
// web chunks from it.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/giygas/ndc-unii/chunks"
	"github.com/giygas/ndc-unii/config"
	"github.com/giygas/ndc-unii/interfaces"
	"github.com/giygas/ndc-unii/logging"
	"github.com/giygas/ndc-unii/metrics"
	"github.com/giygas/ndc-unii/rxnorm"
	"github.com/giygas/ndc-unii/validation"
	"github.com/google/uuid"
)

// Compile-time check to ensure Pipeline implements the Pipeline interface
var _ interfaces.Pipeline = (*Pipeline)(nil)

// maxLoggedWarnings caps the resolution warnings repeated in the end of run log
const maxLoggedWarnings = 20

// Pipeline holds the configuration of a build
type Pipeline struct {
	cfg        *config.Config
	downloader *rxnorm.Downloader
	validator  interfaces.DataValidator
}

// New creates a pipeline for the given configuration
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		downloader: rxnorm.NewDownloader(cfg.ReleaseURL),
		validator:  validation.NewDataValidator(),
	}
}

// WebDataDir returns the directory the chunks are written to
func (p *Pipeline) WebDataDir() string {
	return p.cfg.WebDataDir
}

// Resolution is the outcome of the resolve stage
type Resolution struct {
	Result  *rxnorm.Result
	Release rxnorm.LoadStats
	Quality *interfaces.DataQualityReport
}

// Resolve loads the release, resolves the mapping and writes it to the output path
func (p *Pipeline) Resolve(ctx context.Context) (*Resolution, error) {
	paths, err := p.downloader.EnsureFiles(ctx, p.cfg.RRFDir, p.cfg.SkipDownload)
	if err != nil {
		return nil, err
	}

	release, err := rxnorm.LoadRelease(ctx, paths)
	if err != nil {
		return nil, err
	}

	engine := release.Engine(rxnorm.Options{
		MaxDepth:           p.cfg.MaxTraversalDepth,
		ExcludedComponents: p.cfg.ExcludedSCDC,
	})
	result, err := engine.ResolveAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve NDCs: %w", err)
	}

	if len(result.Records) > 0 {
		if err := p.validator.ValidateDataIntegrity(result.Records); err != nil {
			return nil, fmt.Errorf("resolved mapping is inconsistent: %w", err)
		}
	}
	quality := p.validator.ReportDataQuality(result.Records)
	logQuality(quality)

	if err := rxnorm.Emit(p.cfg.OutputPath, result.Records); err != nil {
		return nil, err
	}
	logging.Info("Canonical mapping written", "path", p.cfg.OutputPath, "records", len(result.Records))

	return &Resolution{Result: result, Release: release.Stats, Quality: quality}, nil
}

// Chunk writes the bucket, index and search files from the mapping on disk
func (p *Pipeline) Chunk() (*chunks.Result, error) {
	return chunks.NewBuilder(p.cfg.WebDataDir, p.cfg.BucketSize).Build(p.cfg.OutputPath)
}

// Run executes Resolve then Chunk and reports the run
func (p *Pipeline) Run(ctx context.Context) (report *interfaces.RunReport, err error) {
	start := time.Now()
	runID := uuid.NewString()
	logging.Info("Pipeline run started", "run_id", runID, "rrf_dir", p.cfg.RRFDir)

	defer func() {
		var counts map[string]int
		if report != nil {
			counts = SummaryCounts(report.Summary)
			counts["buckets"] = report.Buckets
		}
		metrics.ObservePipeline(time.Since(start), counts, err)
		if err != nil {
			logging.Error("Pipeline run failed", "run_id", runID, "error", err)
		}
	}()

	resolution, err := p.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	built, err := p.Chunk()
	if err != nil {
		return nil, err
	}

	report = &interfaces.RunReport{
		RunID:      runID,
		StartedAt:  start,
		Duration:   time.Since(start),
		OutputPath: p.cfg.OutputPath,
		WebDataDir: p.cfg.WebDataDir,
		Summary:    resolution.Result.Summary,
		Warnings:   len(resolution.Result.Warnings),
		Buckets:    len(built.Index.Buckets),
		Quality:    resolution.Quality,
	}
	LogSummary(report, resolution.Result.Warnings)
	return report, nil
}

// SummaryCounts flattens a resolution summary for the metrics gauges
func SummaryCounts(s rxnorm.Summary) map[string]int {
	return map[string]int{
		"ndc_attributes":           s.NDCAttributes,
		"emitted":                  s.Emitted,
		"skipped":                  s.Skipped,
		"out_of_scope":             s.OutOfScope,
		"conflicts":                s.Conflicts,
		"empty_ingredient_lists":   s.EmptyIngredientLists,
		"ingredients_with_unii":    s.IngredientsWithUNII,
		"ingredients_without_unii": s.IngredientsWithoutUNII,
		"truncated_branches":       s.TruncatedBranches,
	}
}

// LogSummary logs the end of run summary and the first resolution warnings
func LogSummary(report *interfaces.RunReport, warnings []rxnorm.ResolutionWarning) {
	for i, w := range warnings {
		if i == maxLoggedWarnings {
			logging.Warn("More resolution warnings not shown", "remaining", len(warnings)-maxLoggedWarnings)
			break
		}
		logging.Warn("Resolution warning", "ndc", w.Ndc, "rxcui", w.Rxcui, "reason", w.Reason)
	}

	s := report.Summary
	logging.Info("Pipeline run completed",
		"run_id", report.RunID,
		"duration", report.Duration.String(),
		"ndcs_processed", s.NDCAttributes,
		"emitted", s.Emitted,
		"skipped", s.Skipped,
		"out_of_scope", s.OutOfScope,
		"conflicts", s.Conflicts,
		"ingredients_with_unii", s.IngredientsWithUNII,
		"ingredients_without_unii", s.IngredientsWithoutUNII,
		"truncated_branches", s.TruncatedBranches,
		"warnings", report.Warnings,
		"buckets", report.Buckets,
	)
}

func logQuality(report *interfaces.DataQualityReport) {
	if report.RecordsWithoutIngredients > 0 {
		logging.Warn("Records without ingredients", "count", report.RecordsWithoutIngredients)
	}

	if report.RecordsWithoutUNII > 0 {
		logging.Warn("Records without any registry code", "count", report.RecordsWithoutUNII)
	}

	if len(report.NonStandardNDCs) > 0 {
		logging.Warn("Non-standard NDC layouts detected", "ndc_list", report.NonStandardNDCs)
	}

	if len(report.NameConflicts) > 0 {
		logging.Warn("RxCUIs emitted with several names", "rxcui_list", report.NameConflicts)
	}
}
