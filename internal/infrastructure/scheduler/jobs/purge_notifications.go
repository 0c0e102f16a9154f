package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/notification"
	"github.com/eduhub/assessment-engine/pkg/clock"
	"github.com/eduhub/assessment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURGE NOTIFICATIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// PurgeNotificationsJob removes settled notification journal rows past the
// retention window. The journal exists for rate limiting and audit; neither
// needs months of history.
type PurgeNotificationsJob struct {
	repo   notification.Repository
	clock  clock.Clock
	logger *logger.Logger

	config PurgeNotificationsConfig
}

// PurgeNotificationsConfig contains configuration for the purge job.
type PurgeNotificationsConfig struct {
	// Retention is how long settled notifications are kept.
	Retention time.Duration

	// Timeout is the maximum duration for one run.
	Timeout time.Duration
}

// DefaultPurgeNotificationsConfig returns sensible defaults.
func DefaultPurgeNotificationsConfig() PurgeNotificationsConfig {
	return PurgeNotificationsConfig{
		Retention: 30 * 24 * time.Hour,
		Timeout:   time.Minute,
	}
}

// NewPurgeNotificationsJob creates a new purge job.
func NewPurgeNotificationsJob(
	repo notification.Repository,
	clk clock.Clock,
	log *logger.Logger,
	config PurgeNotificationsConfig,
) *PurgeNotificationsJob {
	if config.Retention <= 0 {
		config.Retention = DefaultPurgeNotificationsConfig().Retention
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultPurgeNotificationsConfig().Timeout
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &PurgeNotificationsJob{
		repo:   repo,
		clock:  clk,
		logger: log.Named("purge_notifications_job"),
		config: config,
	}
}

// Name implements scheduler.Job.
func (j *PurgeNotificationsJob) Name() string {
	return "purge_notifications"
}

// Description implements scheduler.Job.
func (j *PurgeNotificationsJob) Description() string {
	return fmt.Sprintf("deletes settled notifications older than %s", j.config.Retention)
}

// Run implements scheduler.Job.
func (j *PurgeNotificationsJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	cutoff := j.clock.Now().Add(-j.config.Retention)

	deleted, err := j.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge notifications: %w", err)
	}

	if deleted > 0 {
		j.logger.Info("purged old notifications",
			logger.Int64("deleted", deleted),
			logger.String("cutoff", cutoff.Format(time.RFC3339)),
		)
	}
	return nil
}
