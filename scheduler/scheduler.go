// Package scheduler keeps the served dataset fresh: it loads the chunks at
// startup and rebuilds them on a cron schedule, coordinating with the data
// container so rebuilds never overlap.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/giygas/ndc-unii/chunks"
	"github.com/giygas/ndc-unii/interfaces"
	"github.com/giygas/ndc-unii/logging"
	"github.com/go-co-op/gocron"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// staleAfter is how old the data may get before the monitor warns
const staleAfter = 8 * 24 * time.Hour

// Scheduler handles data updates and health monitoring using dependency injection
type Scheduler struct {
	dataStore   interfaces.DataStore
	pipeline    interfaces.Pipeline
	refreshCron string
	scheduler   *gocron.Scheduler

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewScheduler creates a new scheduler instance with injected dependencies
func NewScheduler(dataStore interfaces.DataStore, pipeline interfaces.Pipeline, refreshCron string) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		dataStore:   dataStore,
		pipeline:    pipeline,
		refreshCron: refreshCron,
		scheduler:   gocron.NewScheduler(time.Local),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start serves the chunks already on disk, or builds them when there are
// none, then schedules the periodic rebuilds
func (s *Scheduler) Start() error {
	if err := s.LoadExisting(); err != nil {
		logging.Info("No usable chunks on disk, running the pipeline", "dir", s.pipeline.WebDataDir(), "reason", err)
		if err := s.updateData(); err != nil {
			logging.Error("Failed to perform initial data load", "error", err)
			return fmt.Errorf("initial data load failed: %w", err)
		}
	}

	_, err := s.scheduler.Cron(s.refreshCron).Do(func() {
		if err := s.updateData(); err != nil {
			logging.Error("Failed to update data", "error", err)
		}
	})
	if err != nil {
		logging.Error("Failed to schedule updates", "error", err)
		return fmt.Errorf("failed to schedule updates: %w", err)
	}

	s.scheduler.StartAsync()
	logging.Info("Rebuilds scheduled", "cron", s.refreshCron)

	s.startHealthMonitoring()

	return nil
}

// Stop stops the scheduler and cancels a running rebuild
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.scheduler.Stop()
	})
}

// LoadExisting serves the chunks found in the web data directory without rebuilding them
func (s *Scheduler) LoadExisting() error {
	dataset, err := chunks.Load(s.pipeline.WebDataDir())
	if err != nil {
		return err
	}
	if err := chunks.Verify(dataset.Dir, dataset.Index); err != nil {
		return err
	}

	s.dataStore.UpdateData(dataset, nil)
	logging.Info("Chunks loaded", "dir", dataset.Dir, "records", dataset.Records(), "buckets", len(dataset.Index.Buckets))
	return nil
}

// updateData runs the pipeline and swaps the rebuilt chunks in
func (s *Scheduler) updateData() error {
	// Prevent concurrent updates
	if !s.dataStore.BeginUpdate() {
		logging.Info("Update already in progress, skipping...")
		return nil
	}
	defer s.dataStore.EndUpdate()

	logging.Info("Starting data update", "at", time.Now().Format(time.RFC3339))
	start := time.Now()

	report, err := s.pipeline.Run(s.ctx)
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}

	dataset, err := chunks.Load(s.pipeline.WebDataDir())
	if err != nil {
		return fmt.Errorf("failed to load rebuilt chunks: %w", err)
	}

	s.dataStore.UpdateData(dataset, report)

	logging.Info("Data update completed", "duration", time.Since(start).String(), "records", dataset.Records())
	return nil
}

// startHealthMonitoring warns when the data has not been refreshed for too long
func (s *Scheduler) startHealthMonitoring() {
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				lastUpdate := s.dataStore.GetLastUpdated()
				if time.Since(lastUpdate) > staleAfter {
					logging.Warn("Data hasn't been updated in over 8 days", "last_update", lastUpdate.Format(time.RFC3339))
				}
			}
		}
	}()
}
