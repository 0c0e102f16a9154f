// Package jobs contains implementations of scheduled jobs for the assessment
// engine. The two jobs here are what moves the engine forward in time: the
// linking pass attaches fresh submissions to their scheduled periods, and the
// expiry sweep closes the periods nobody submitted for.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/eduhub/assessment-engine/internal/application/command"
	"github.com/eduhub/assessment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP EXPIRED JOB
// ══════════════════════════════════════════════════════════════════════════════

// SweepExpiredJob periodically marks records whose grace window elapsed
// without a submission. The handler does the real work; the job adds
// scheduling concerns: a per-run timeout, run statistics, and an error
// threshold that surfaces a degraded sweep to the scheduler.
type SweepExpiredJob struct {
	handler *command.SweepExpiredHandler
	logger  *logger.Logger

	config SweepExpiredConfig

	lastStats atomic.Value // *SweepRunStats
}

// SweepExpiredConfig contains configuration for the sweep job.
type SweepExpiredConfig struct {
	// BatchLimit caps records examined per run (0 = handler default).
	BatchLimit int

	// Timeout is the maximum duration for one sweep run.
	Timeout time.Duration

	// MaxErrorRatio fails the run when more than this share of examined
	// records errored. Zero disables the check.
	MaxErrorRatio float64
}

// DefaultSweepExpiredConfig returns sensible defaults.
func DefaultSweepExpiredConfig() SweepExpiredConfig {
	return SweepExpiredConfig{
		BatchLimit:    command.DefaultSweepBatchLimit,
		Timeout:       5 * time.Minute,
		MaxErrorRatio: 0.5,
	}
}

// SweepRunStats contains statistics from one sweep run.
type SweepRunStats struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Examined   int
	Marked     int
	Skipped    int
	Failed     int
}

// NewSweepExpiredJob creates a new sweep job.
func NewSweepExpiredJob(
	handler *command.SweepExpiredHandler,
	log *logger.Logger,
	config SweepExpiredConfig,
) *SweepExpiredJob {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	return &SweepExpiredJob{
		handler: handler,
		logger:  log.Named("job.sweep_expired"),
		config:  config,
	}
}

// Name returns the job name.
func (j *SweepExpiredJob) Name() string {
	return "sweep_expired"
}

// Description returns a human-readable description.
func (j *SweepExpiredJob) Description() string {
	return "Marks progress records missed after their grace window elapses"
}

// Run executes one sweep pass.
func (j *SweepExpiredJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	result, err := j.handler.Handle(ctx, command.SweepExpiredCommand{
		Limit: j.config.BatchLimit,
	})
	if err != nil {
		return fmt.Errorf("sweep job: %w", err)
	}

	stats := &SweepRunStats{
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Duration:   result.FinishedAt.Sub(result.StartedAt),
		Examined:   result.Examined,
		Marked:     result.Marked,
		Skipped:    result.Skipped,
		Failed:     len(result.Errors),
	}
	j.lastStats.Store(stats)

	if j.config.MaxErrorRatio > 0 && stats.Examined > 0 {
		ratio := float64(stats.Failed) / float64(stats.Examined)
		if ratio > j.config.MaxErrorRatio {
			return fmt.Errorf("sweep job: %d of %d records failed", stats.Failed, stats.Examined)
		}
	}

	return nil
}

// LastStats returns statistics of the most recent run, or nil before the
// first run completes.
func (j *SweepExpiredJob) LastStats() *SweepRunStats {
	v := j.lastStats.Load()
	if v == nil {
		return nil
	}
	return v.(*SweepRunStats)
}
