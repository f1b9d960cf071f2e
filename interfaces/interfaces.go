// Package interfaces defines the abstractions shared by the pipeline, the
// scheduler and the viewer server so each can be tested against fakes.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/giygas/ndc-unii/chunks"
	"github.com/giygas/ndc-unii/rxnorm"
	"github.com/giygas/ndc-unii/rxnorm/entities"
)

// DataQualityReport summarizes quality issues of a canonical mapping
type DataQualityReport struct {
	TotalRecords              int      `json:"total_records"`
	RecordsWithoutIngredients int      `json:"records_without_ingredients"`
	RecordsWithoutUNII        int      `json:"records_without_unii"` // No ingredient carries a registry code
	IngredientsWithoutUNII    int      `json:"ingredients_without_unii"`
	NonStandardNDCs           []string `json:"non_standard_ndcs"` // NDCs outside the standard 10 and 11 digit layouts
	NameConflicts             []string `json:"name_conflicts"`    // RxCUIs emitted with more than one name
}

// RunReport describes one complete pipeline run
type RunReport struct {
	RunID      string             `json:"run_id"`
	StartedAt  time.Time          `json:"started_at"`
	Duration   time.Duration      `json:"duration"`
	OutputPath string             `json:"output_path"`
	WebDataDir string             `json:"web_data_dir"`
	Summary    rxnorm.Summary     `json:"summary"`
	Warnings   int                `json:"warnings"`
	Buckets    int                `json:"buckets"`
	Quality    *DataQualityReport `json:"quality"`
}

// DataStore holds the chunk dataset served by the viewer.
// Updates replace the dataset atomically.
type DataStore interface {
	GetDataset() *chunks.Dataset
	GetReport() *RunReport
	GetLastUpdated() time.Time
	IsUpdating() bool
	GetServerStartTime() time.Time

	UpdateData(dataset *chunks.Dataset, report *RunReport)
	BeginUpdate() bool
	EndUpdate()
}

// Pipeline runs the resolution and chunking stages end to end
type Pipeline interface {
	Run(ctx context.Context) (*RunReport, error)
	WebDataDir() string
}

// Scheduler manages periodic rebuilds
type Scheduler interface {
	Start() error
	Stop()
}

// HTTPHandler defines the viewer API endpoints
type HTTPHandler interface {
	FindByNDC(w http.ResponseWriter, r *http.Request)
	Search(w http.ResponseWriter, r *http.Request)
	ServeReport(w http.ResponseWriter, r *http.Request)
	HealthCheck(w http.ResponseWriter, r *http.Request)
}

// HealthChecker reports the health of the served data
type HealthChecker interface {
	// HealthCheck returns the status, its details and the HTTP status to answer with
	HealthCheck() (status string, details map[string]any, httpStatus int)

	// CalculateNextUpdate returns the next scheduled rebuild time
	CalculateNextUpdate() time.Time
}

// DataValidator checks mapping records and user input
type DataValidator interface {
	ValidateRecord(r *entities.Record) error
	ValidateDataIntegrity(records map[string]entities.Record) error
	ReportDataQuality(records map[string]entities.Record) *DataQualityReport

	// ValidateInput validates free-text search input
	ValidateInput(input string) error

	// ValidateNDC returns the digits of an NDC query
	ValidateNDC(input string) (string, error)
}
