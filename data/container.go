// Package data holds the chunk dataset served by the viewer. The dataset and
// the report of the run that produced it are swapped atomically so lookups
// never block on a rebuild.
package data

import (
	"sync/atomic"
	"time"

	"github.com/giygas/ndc-unii/chunks"
	"github.com/giygas/ndc-unii/interfaces"
	"github.com/giygas/ndc-unii/logging"
	"github.com/giygas/ndc-unii/rxnorm/entities"
)

// Compile-time check to ensure DataContainer implements DataStore
var _ interfaces.DataStore = (*DataContainer)(nil)

// DataContainer holds the served data with atomic values for zero-downtime updates
type DataContainer struct {
	dataset         atomic.Pointer[chunks.Dataset]
	report          atomic.Pointer[interfaces.RunReport]
	lastUpdated     atomic.Value // time.Time
	updating        atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// NewDataContainer creates a container with an empty dataset
func NewDataContainer() *DataContainer {
	dc := &DataContainer{}
	dc.dataset.Store(emptyDataset())
	dc.lastUpdated.Store(time.Time{})
	dc.serverStartTime.Store(time.Time{})
	return dc
}

func emptyDataset() *chunks.Dataset {
	return &chunks.Dataset{
		Index:       entities.BucketIndex{Buckets: map[string]int{}},
		SearchIndex: entities.SearchIndex{Records: []entities.SearchRecord{}},
	}
}

// GetDataset returns the current dataset, never nil
func (dc *DataContainer) GetDataset() *chunks.Dataset {
	if ds := dc.dataset.Load(); ds != nil {
		return ds
	}

	logging.Warn("Dataset is empty or invalid")
	return emptyDataset()
}

// GetReport returns the report of the run that produced the dataset, or nil
func (dc *DataContainer) GetReport() *interfaces.RunReport {
	return dc.report.Load()
}

// GetLastUpdated returns the timestamp of the last data update
func (dc *DataContainer) GetLastUpdated() time.Time {
	if v := dc.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating returns true if a data update is currently in progress
func (dc *DataContainer) IsUpdating() bool {
	return dc.updating.Load()
}

// SetServerStartTime sets the server start time
func (dc *DataContainer) SetServerStartTime(startTime time.Time) {
	dc.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (dc *DataContainer) GetServerStartTime() time.Time {
	if v := dc.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// UpdateData atomically replaces the dataset. A nil dataset is ignored.
func (dc *DataContainer) UpdateData(dataset *chunks.Dataset, report *interfaces.RunReport) {
	if dataset == nil {
		logging.Warn("Ignoring update with a nil dataset")
		return
	}

	dc.dataset.Store(dataset)
	dc.report.Store(report)
	dc.lastUpdated.Store(time.Now())
}

// BeginUpdate marks the start of a data update operation.
// Returns true if update can proceed, false if another update is in progress.
func (dc *DataContainer) BeginUpdate() bool {
	return dc.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a data update operation
func (dc *DataContainer) EndUpdate() {
	dc.updating.Store(false)
}
