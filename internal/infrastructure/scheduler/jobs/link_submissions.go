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
// LINK SUBMISSIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// LinkSubmissionsJob periodically drains unprocessed submissions and links
// them to their scheduled periods. It is the safety net behind the webhook
// path: anything the push delivery missed gets picked up on the next run.
type LinkSubmissionsJob struct {
	handler *command.LinkAllHandler
	logger  *logger.Logger

	config LinkSubmissionsConfig

	lastStats atomic.Value // *LinkRunStats
}

// LinkSubmissionsConfig contains configuration for the linking job.
type LinkSubmissionsConfig struct {
	// BatchLimit caps submissions per run (0 = handler default).
	BatchLimit int

	// Timeout is the maximum duration for one run.
	Timeout time.Duration
}

// DefaultLinkSubmissionsConfig returns sensible defaults.
func DefaultLinkSubmissionsConfig() LinkSubmissionsConfig {
	return LinkSubmissionsConfig{
		BatchLimit: command.DefaultLinkBatchLimit,
		Timeout:    3 * time.Minute,
	}
}

// LinkRunStats contains statistics from one linking run.
type LinkRunStats struct {
	StartedAt     time.Time
	FinishedAt    time.Time
	Duration      time.Duration
	Processed     int
	Linked        int
	AlreadyLinked int
	NoMatch       int
	Conflicts     int
	Failed        int
}

// NewLinkSubmissionsJob creates a new linking job.
func NewLinkSubmissionsJob(
	handler *command.LinkAllHandler,
	log *logger.Logger,
	config LinkSubmissionsConfig,
) *LinkSubmissionsJob {
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Minute
	}
	return &LinkSubmissionsJob{
		handler: handler,
		logger:  log.Named("job.link_submissions"),
		config:  config,
	}
}

// Name returns the job name.
func (j *LinkSubmissionsJob) Name() string {
	return "link_submissions"
}

// Description returns a human-readable description.
func (j *LinkSubmissionsJob) Description() string {
	return "Links unprocessed submissions to their scheduled periods"
}

// Run executes one linking pass.
func (j *LinkSubmissionsJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	result, err := j.handler.Handle(ctx, command.LinkAllCommand{
		Limit: j.config.BatchLimit,
	})
	if err != nil {
		return fmt.Errorf("link job: %w", err)
	}

	j.lastStats.Store(&LinkRunStats{
		StartedAt:     result.StartedAt,
		FinishedAt:    result.FinishedAt,
		Duration:      result.FinishedAt.Sub(result.StartedAt),
		Processed:     result.Processed,
		Linked:        result.Linked,
		AlreadyLinked: result.AlreadyLinked,
		NoMatch:       result.NoMatch,
		Conflicts:     result.Conflicts,
		Failed:        result.Failed(),
	})

	return nil
}

// LastStats returns statistics of the most recent run, or nil before the
// first run completes.
func (j *LinkSubmissionsJob) LastStats() *LinkRunStats {
	v := j.lastStats.Load()
	if v == nil {
		return nil
	}
	return v.(*LinkRunStats)
}
