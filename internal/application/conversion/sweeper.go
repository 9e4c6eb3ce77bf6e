package conversion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	DefaultSweepInterval = time.Hour
	DefaultRetention     = 24 * time.Hour
)

// SweepReport summarizes one expiration pass.
type SweepReport struct {
	Scanned int
	Deleted int
	Failed  int
	Freed   int64
}

// Sweeper deletes artifacts older than the retention window, regardless of job state.
type Sweeper struct {
	store     ArtifactStore
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	once sync.Once
}

// NewSweeper creates a sweeper; non-positive durations fall back to the defaults.
func NewSweeper(store ArtifactStore, interval, retention time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:     store,
		interval:  interval,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Start runs a sweep immediately and then on every tick until ctx is done.
// Calling Start more than once has no effect.
func (s *Sweeper) Start(ctx context.Context) {
	s.once.Do(func() {
		s.logger.Info("artifact sweeper enabled", "interval", s.interval, "retention", s.retention)
		go s.loop(ctx)
	})
}

func (s *Sweeper) loop(ctx context.Context) {
	s.Sweep(s.now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("artifact sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// Sweep deletes every expired artifact. A failure on one entry never stops the rest.
func (s *Sweeper) Sweep(now time.Time) SweepReport {
	var report SweepReport

	artifacts, err := s.store.List()
	if err != nil {
		s.logger.Error("artifact sweep: list directory", "error", err)
		return report
	}

	for _, artifact := range artifacts {
		report.Scanned++
		deleted, err := s.store.DeleteIfOlderThan(artifact.Path, s.retention, now)
		if err != nil {
			report.Failed++
			s.logger.Warn("artifact sweep: delete failed", "path", artifact.Path, "error", err)
			continue
		}
		if deleted {
			report.Deleted++
			report.Freed += artifact.Size
			s.logger.Info("deleted expired artifact", "path", artifact.Path, "size", humanize.Bytes(uint64(artifact.Size)))
		}
	}

	if report.Deleted > 0 || report.Failed > 0 {
		s.logger.Info("artifact sweep finished",
			"scanned", report.Scanned,
			"deleted", report.Deleted,
			"failed", report.Failed,
			"freed", humanize.Bytes(uint64(report.Freed)),
		)
	}
	return report
}
