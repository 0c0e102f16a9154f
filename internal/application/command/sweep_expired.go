package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/progress"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
	"github.com/eduhub/assessment-engine/pkg/clock"
	"github.com/eduhub/assessment-engine/pkg/logger"
	"github.com/eduhub/assessment-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP EXPIRED COMMAND
// Periodically marks records whose grace period has elapsed without a
// submission. Each record is marked in its own conditional write, so a
// submission landing mid-sweep wins its record while the sweep proceeds
// over the rest. Re-running the sweep over the same records is a no-op.
// ══════════════════════════════════════════════════════════════════════════════

// SweepExpiredCommand requests one sweep pass.
type SweepExpiredCommand struct {
	// Limit caps records per pass (0 = default).
	Limit int

	// CorrelationID for tracing.
	CorrelationID string
}

// Sweep defaults.
const (
	// DefaultSweepBatchLimit caps one sweep pass.
	DefaultSweepBatchLimit = 1000

	// DefaultSweepTolerance delays expiry slightly past the grace end,
	// absorbing clock skew between the engine and the submission source.
	DefaultSweepTolerance = time.Minute
)

// SweepResult aggregates one sweep pass.
type SweepResult struct {
	// Examined is the number of candidate records fetched.
	Examined int

	// Marked is the number of records transitioned to missed.
	Marked int

	// Skipped counts records that became terminal before our write
	// (a submission won the race, or a concurrent sweep got there first).
	Skipped int

	// Errors maps record ID to its processing error.
	Errors map[string]error

	// StartedAt and FinishedAt bound the pass.
	StartedAt  time.Time
	FinishedAt time.Time
}

// SweepExpiredHandler handles SweepExpiredCommand.
type SweepExpiredHandler struct {
	progressRepo   progress.Repository
	eventPublisher shared.EventPublisher
	clock          clock.Clock
	log            *logger.Logger
	tolerance      time.Duration
	retryPolicy    retry.Policy
}

// SweepExpiredHandlerConfig contains configuration for the handler.
type SweepExpiredHandlerConfig struct {
	// Tolerance is the skew buffer added to the grace deadline.
	Tolerance time.Duration
}

// NewSweepExpiredHandler creates a new SweepExpiredHandler.
func NewSweepExpiredHandler(
	progressRepo progress.Repository,
	eventPublisher shared.EventPublisher,
	clk clock.Clock,
	log *logger.Logger,
	config SweepExpiredHandlerConfig,
) *SweepExpiredHandler {
	if clk == nil {
		clk = clock.System{}
	}
	if config.Tolerance <= 0 {
		config.Tolerance = DefaultSweepTolerance
	}
	return &SweepExpiredHandler{
		progressRepo:   progressRepo,
		eventPublisher: eventPublisher,
		clock:          clk,
		log:            log.Named("sweep_expired"),
		tolerance:      config.Tolerance,
		retryPolicy:    retry.StoragePolicy(),
	}
}

// Handle runs one sweep pass.
func (h *SweepExpiredHandler) Handle(ctx context.Context, cmd SweepExpiredCommand) (*SweepResult, error) {
	limit := cmd.Limit
	if limit <= 0 {
		limit = DefaultSweepBatchLimit
	}

	now := h.clock.Now()
	cutoff := now.Add(-h.tolerance)

	result := &SweepResult{
		Errors:    make(map[string]error),
		StartedAt: now,
	}

	// The candidate query is retried wholesale; failures of individual
	// marks below are isolated per record instead.
	var candidates []*progress.Record
	err := h.retryPolicy.Do(ctx, func(ctx context.Context) error {
		var ferr error
		candidates, ferr = h.progressRepo.FindExpired(ctx, cutoff, limit)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("sweep_expired: find candidates: %w", err)
	}

	result.Examined = len(candidates)

	for _, rec := range candidates {
		if err := ctx.Err(); err != nil {
			result.Errors["sweep"] = err
			break
		}

		h.markOne(ctx, rec, now, result)
	}

	result.FinishedAt = h.clock.Now()

	h.log.Info("sweep finished",
		logger.Int("examined", result.Examined),
		logger.Int("marked", result.Marked),
		logger.Int("skipped", result.Skipped),
		logger.Int("failed", len(result.Errors)),
		logger.Duration("took", result.FinishedAt.Sub(result.StartedAt)),
	)

	if h.eventPublisher != nil && result.Examined > 0 {
		summary := shared.NewBaseEvent(shared.EventSweepCompleted, "sweep", result.FinishedAt)
		_ = h.eventPublisher.Publish(sweepCompletedEvent{BaseEvent: summary, Marked: result.Marked})
	}

	return result, nil
}

// markOne applies the missed transition to a single record.
func (h *SweepExpiredHandler) markOne(ctx context.Context, rec *progress.Record, now time.Time, result *SweepResult) {
	applied, err := h.progressRepo.MarkMissed(ctx, rec.ID, progress.ReasonMissedGracePeriod, now)
	if err != nil {
		h.log.Error("failed to mark record, continuing sweep",
			logger.ProgressID(rec.ID),
			logger.Err(err),
		)
		result.Errors[rec.ID] = err
		return
	}
	if !applied {
		// A submission linked (or another sweep marked) this record
		// between our read and write. Its state is already correct.
		result.Skipped++
		return
	}

	result.Marked++

	event, err := rec.MarkMissed(progress.ReasonMissedGracePeriod, now)
	if err != nil {
		// The write applied; the replay can only fail if the fetched
		// copy was already terminal, which FindExpired excludes.
		result.Errors[rec.ID] = err
		return
	}

	if h.eventPublisher != nil {
		if pubErr := h.eventPublisher.Publish(*event); pubErr != nil {
			h.log.Error("failed to publish expired event",
				logger.ProgressID(rec.ID),
				logger.Err(pubErr),
			)
		}
	}
}

// sweepCompletedEvent summarizes a sweep pass for observers.
type sweepCompletedEvent struct {
	shared.BaseEvent
	Marked int `json:"marked"`
}

// Payload implements shared.Event.
func (e sweepCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"marked": e.Marked}
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL EXPIRY
// Administrative closing of a single open record, bypassing the grace
// deadline. Uses the same conditional write as the sweep.
// ══════════════════════════════════════════════════════════════════════════════

// ExpireRecordCommand closes one record manually.
type ExpireRecordCommand struct {
	// RecordID is the progress record to close.
	RecordID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ExpireRecordCommand) Validate() error {
	if c.RecordID == "" {
		return errors.New("expire_record: record_id is required")
	}
	return nil
}

// ExpireRecordHandler handles ExpireRecordCommand.
type ExpireRecordHandler struct {
	progressRepo   progress.Repository
	eventPublisher shared.EventPublisher
	clock          clock.Clock
	log            *logger.Logger
}

// NewExpireRecordHandler creates a new ExpireRecordHandler.
func NewExpireRecordHandler(
	progressRepo progress.Repository,
	eventPublisher shared.EventPublisher,
	clk clock.Clock,
	log *logger.Logger,
) *ExpireRecordHandler {
	if clk == nil {
		clk = clock.System{}
	}
	return &ExpireRecordHandler{
		progressRepo:   progressRepo,
		eventPublisher: eventPublisher,
		clock:          clk,
		log:            log.Named("expire_record"),
	}
}

// Handle closes the record. Returns progress.ErrAlreadyCompleted or
// progress.ErrAlreadyMissed when the record is already terminal.
func (h *ExpireRecordHandler) Handle(ctx context.Context, cmd ExpireRecordCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	now := h.clock.Now()

	rec, err := h.progressRepo.GetByID(ctx, cmd.RecordID)
	if err != nil {
		return fmt.Errorf("expire_record: %w", err)
	}

	applied, err := h.progressRepo.MarkMissed(ctx, cmd.RecordID, progress.ReasonManuallyExpired, now)
	if err != nil {
		return fmt.Errorf("expire_record: conditional write: %w", err)
	}
	if !applied {
		current, rerr := h.progressRepo.GetByID(ctx, cmd.RecordID)
		if rerr != nil {
			return fmt.Errorf("expire_record: re-read after race: %w", rerr)
		}
		if current.Completed() {
			return progress.ErrAlreadyCompleted
		}
		return progress.ErrAlreadyMissed
	}

	event, err := rec.MarkMissed(progress.ReasonManuallyExpired, now)
	if err == nil && h.eventPublisher != nil {
		_ = h.eventPublisher.Publish(*event)
	}

	h.log.Info("record manually expired", logger.ProgressID(cmd.RecordID))
	return nil
}
