package handlers

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/giygas/ndc-unii/chunks"
	"github.com/giygas/ndc-unii/interfaces"
	"github.com/giygas/ndc-unii/logging"
	"github.com/go-chi/chi/v5"
)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	dataStore     interfaces.DataStore
	validator     interfaces.DataValidator
	healthChecker interfaces.HealthChecker
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(dataStore interfaces.DataStore, validator interfaces.DataValidator, healthChecker interfaces.HealthChecker) interfaces.HTTPHandler {
	return &HTTPHandlerImpl{
		dataStore:     dataStore,
		validator:     validator,
		healthChecker: healthChecker,
	}
}

// SearchResponse is the body of /v1/search
type SearchResponse struct {
	Query   string `json:"query"`
	Count   int    `json:"count"`
	Limit   int    `json:"limit"`
	Results any    `json:"results"`
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	LastUpdate    string         `json:"last_update"`
	DataAgeHours  float64        `json:"data_age_hours"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Uptime        string         `json:"uptime"`
	Data          map[string]any `json:"data"`
	System        map[string]any `json:"system"`
}

// FindByNDC returns the records whose NDC digits start with the given ones
func (h *HTTPHandlerImpl) FindByNDC(w http.ResponseWriter, r *http.Request) {
	ndc := chi.URLParam(r, "ndc")

	digits, err := h.validator.ValidateNDC(ndc)
	if err != nil {
		logging.Warn("Unusual user input", "ndc", ndc)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	dataset := h.dataStore.GetDataset()
	if dataset.Records() == 0 {
		RespondWithError(w, http.StatusServiceUnavailable, "No data loaded yet")
		return
	}

	records, err := dataset.Lookup(digits)
	if err != nil {
		logging.Error("NDC lookup failed", "ndc", ndc, "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Lookup failed")
		return
	}

	if len(records) == 0 {
		RespondWithError(w, http.StatusNotFound, "NDC not found")
		return
	}

	RespondWithJSON(w, http.StatusOK, records)
}

// Search scans the search index. Results are capped at 100; a smaller cap
// can be asked with the limit parameter.
func (h *HTTPHandlerImpl) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		RespondWithError(w, http.StatusBadRequest, "Missing search term")
		return
	}

	if err := h.validator.ValidateInput(query); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := chunks.MaxSearchResults
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > chunks.MaxSearchResults {
			RespondWithError(w, http.StatusBadRequest, "Invalid limit, expected 1 to 100")
			return
		}
		limit = n
	}

	results := h.dataStore.GetDataset().Search(query, limit)

	// Always 200 with a results array, empty when nothing matches
	RespondWithJSON(w, http.StatusOK, SearchResponse{
		Query:   query,
		Count:   len(results),
		Limit:   limit,
		Results: results,
	})
}

// ServeReport returns the report of the pipeline run behind the served data
func (h *HTTPHandlerImpl) ServeReport(w http.ResponseWriter, r *http.Request) {
	report := h.dataStore.GetReport()
	if report == nil {
		RespondWithError(w, http.StatusNotFound, "No pipeline run since startup")
		return
	}

	RespondWithJSON(w, http.StatusOK, report)
}

// HealthCheck returns server health information
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.healthChecker == nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Health checker unavailable")
		return
	}

	status, details, httpStatus := h.healthChecker.HealthCheck()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	lastUpdate := h.dataStore.GetLastUpdated()
	uptime := time.Since(h.dataStore.GetServerStartTime())

	response := HealthResponse{
		Status:        status,
		LastUpdate:    lastUpdate.Format(time.RFC3339),
		DataAgeHours:  time.Since(lastUpdate).Hours(),
		UptimeSeconds: uptime.Seconds(),
		Uptime:        formatUptimeHuman(uptime),
		Data:          details,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       int(m.Alloc / 1024 / 1024),
				"total_alloc_mb": int(m.TotalAlloc / 1024 / 1024),
				"sys_mb":         int(m.Sys / 1024 / 1024),
				"num_gc":         m.NumGC,
			},
		},
	}

	RespondWithJSON(w, httpStatus, response)
}
