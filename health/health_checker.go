// Package health reports the health of the dataset served by the viewer.
package health

import (
	"math"
	"net/http"
	"time"

	"github.com/giygas/ndc-unii/interfaces"
	"github.com/giygas/ndc-unii/logging"
	"github.com/robfig/cron/v3"
)

// Data age thresholds. RxNorm prescribable content is published weekly.
const (
	degradedAge  = 8 * 24 * time.Hour
	unhealthyAge = 15 * 24 * time.Hour
)

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	dataStore interfaces.DataStore
	schedule  cron.Schedule // nil when the refresh expression is invalid
}

// NewHealthChecker creates a health checker. refreshCron is the rebuild
// schedule, in standard five field cron syntax.
func NewHealthChecker(dataStore interfaces.DataStore, refreshCron string) interfaces.HealthChecker {
	schedule, err := cron.ParseStandard(refreshCron)
	if err != nil {
		logging.Warn("Invalid refresh schedule, next update unknown", "cron", refreshCron, "error", err)
	}
	return &HealthCheckerImpl{
		dataStore: dataStore,
		schedule:  schedule,
	}
}

// HealthCheck returns the status, its details and the HTTP status to answer with
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	dataset := h.dataStore.GetDataset()
	records := dataset.Records()
	lastUpdate := h.dataStore.GetLastUpdated()
	isUpdating := h.dataStore.IsUpdating()

	dataAge := time.Since(lastUpdate)

	switch {
	case records == 0:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > unhealthyAge:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > degradedAge:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	case isUpdating && dataAge > 6*time.Hour:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	data = map[string]any{
		"last_update":    lastUpdate.Format(time.RFC3339),
		"data_age_hours": math.Round(dataAge.Hours()*10) / 10,
		"records":        records,
		"buckets":        len(dataset.Index.Buckets),
		"is_updating":    isUpdating,
	}
	if next := h.CalculateNextUpdate(); !next.IsZero() {
		data["next_update"] = next.Format(time.RFC3339)
	}

	return status, data, httpStatus
}

// CalculateNextUpdate returns the next scheduled rebuild time, or the zero
// time when the schedule is unknown
func (h *HealthCheckerImpl) CalculateNextUpdate() time.Time {
	if h.schedule == nil {
		return time.Time{}
	}
	return h.schedule.Next(time.Now())
}
