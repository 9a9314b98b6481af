// Package sweeper removes expired render records and their stored artifacts
// on a fixed interval.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/metrics"
	"github.com/pagesnap/pagesnap/internal/snapshot"
)

// DefaultInterval is how often the background sweep runs.
const DefaultInterval = 24 * time.Hour

// Result summarizes one sweep.
type Result struct {
	DeletedRecords int64 `json:"deletedRecords"`
	DeletedFiles   int   `json:"deletedFiles"`
}

// Sweeper deletes stale records and then best-effort deletes the raster
// artifacts they referenced. Record deletion never waits on artifact
// deletion, so a misbehaving object store cannot stall expiry.
type Sweeper struct {
	records   snapshot.RecordStore
	artifacts snapshot.ArtifactStore
	interval  time.Duration
	logger    *zap.Logger
}

// New constructs a Sweeper. A non-positive interval falls back to
// DefaultInterval.
func New(records snapshot.RecordStore, artifacts snapshot.ArtifactStore, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		records:   records,
		artifacts: artifacts,
		interval:  interval,
		logger:    logger,
	}
}

// Run sweeps on the configured interval until ctx is cancelled. Errors from
// individual sweeps are logged and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("scheduled sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep performs a single expiry pass and reports what it removed.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	batch, err := s.records.DeleteStale(ctx)
	if err != nil {
		return Result{}, snapshot.RecordStoreError(err)
	}

	res := Result{DeletedRecords: batch.Deleted}
	if len(batch.ArtifactURLs) > 0 {
		res.DeletedFiles = s.artifacts.DeleteBatch(ctx, batch.ArtifactURLs)
	}

	metrics.ObserveSweep(int(res.DeletedRecords), res.DeletedFiles)
	if res.DeletedRecords > 0 || res.DeletedFiles > 0 {
		s.logger.Info("sweep completed",
			zap.Int64("deleted_records", res.DeletedRecords),
			zap.Int("deleted_files", res.DeletedFiles),
		)
	}
	return res, nil
}
