// Package scheduler runs the detection pipeline on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentinelstack/migration-sentinel/internal/engine"
	"github.com/sentinelstack/migration-sentinel/internal/utils"
)

// Scheduler drives periodic detection cycles until its context is canceled.
type Scheduler struct {
	pipeline *engine.Pipeline
	interval time.Duration
	latency  *utils.LatencyTracker
	logger   *slog.Logger
}

// New creates a Scheduler.
func New(pipeline *engine.Pipeline, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		pipeline: pipeline,
		interval: interval,
		latency:  utils.NewLatencyTracker(256),
		logger:   logger,
	}
}

// Run blocks, executing one cycle per tick, and returns when ctx is done.
// Cycle errors are logged; the loop never stops on them.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("detection scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("detection scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	report, err := s.pipeline.RunCycle(ctx)
	elapsed := time.Since(start)
	s.latency.Observe(elapsed)

	if err != nil {
		s.logger.Error("detection cycle failed", "error", err, "elapsed", elapsed)
		return
	}
	if report.EventsProcessed == 0 {
		return
	}
	s.logger.Info("detection cycle finished",
		"events", report.EventsProcessed,
		"patterns", report.PatternCount,
		"incident_id", report.IncidentID,
		"elapsed", elapsed,
		"p95", s.latency.Percentile(95))
}
