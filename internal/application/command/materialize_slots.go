package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/progress"
	"github.com/eduhub/assessment-engine/internal/domain/schedule"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
	"github.com/eduhub/assessment-engine/pkg/clock"
	"github.com/eduhub/assessment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATERIALIZE SLOTS COMMAND
// Turns generated schedule slots into progress records with precomputed
// assessment windows. Invalid slots are skipped and logged, slots without
// a topic emit a gap event instead of a record. When Replace is set,
// open records in the affected range are dropped first, so a schedule
// regeneration swaps the pending plan without touching terminal history.
// ══════════════════════════════════════════════════════════════════════════════

// MaterializeSlotsCommand carries one student's generated slots.
type MaterializeSlotsCommand struct {
	// StudentID is the student the slots belong to.
	StudentID string

	// Slots are the generated schedule slots.
	Slots []schedule.Slot

	// Replace drops the student's open records within [From, To) before
	// creating new ones (schedule regeneration).
	Replace bool

	// From and To bound the regeneration range (required with Replace).
	From time.Time
	To   time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c MaterializeSlotsCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("materialize_slots: student_id is required")
	}
	if c.Replace && (c.From.IsZero() || c.To.IsZero() || !c.From.Before(c.To)) {
		return errors.New("materialize_slots: replace requires a valid [from, to) range")
	}
	return nil
}

// MaterializeResult aggregates one materialization pass.
type MaterializeResult struct {
	// Created is the number of progress records created.
	Created int

	// AlreadyExists counts slots whose record already existed (idempotent
	// replay of the same schedule).
	AlreadyExists int

	// SkippedInvalid counts slots that failed validation.
	SkippedInvalid int

	// TopicMissing counts slots without an assigned topic.
	TopicMissing int

	// Removed is the number of open records dropped by a Replace pass.
	Removed int64

	// Errors maps a slot key to its processing error.
	Errors map[string]error
}

// MaterializeSlotsHandler handles MaterializeSlotsCommand.
type MaterializeSlotsHandler struct {
	progressRepo   progress.Repository
	calculator     schedule.Calculator
	eventPublisher shared.EventPublisher
	clock          clock.Clock
	log            *logger.Logger
}

// NewMaterializeSlotsHandler creates a new MaterializeSlotsHandler.
func NewMaterializeSlotsHandler(
	progressRepo progress.Repository,
	calculator schedule.Calculator,
	eventPublisher shared.EventPublisher,
	clk clock.Clock,
	log *logger.Logger,
) *MaterializeSlotsHandler {
	if clk == nil {
		clk = clock.System{}
	}
	return &MaterializeSlotsHandler{
		progressRepo:   progressRepo,
		calculator:     calculator,
		eventPublisher: eventPublisher,
		clock:          clk,
		log:            log.Named("materialize_slots"),
	}
}

// Handle materializes the slots into progress records.
func (h *MaterializeSlotsHandler) Handle(ctx context.Context, cmd MaterializeSlotsCommand) (*MaterializeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := h.clock.Now()
	result := &MaterializeResult{Errors: make(map[string]error)}

	if cmd.Replace {
		removed, err := h.progressRepo.DeleteOpenByStudentBetween(ctx, shared.StudentID(cmd.StudentID), cmd.From, cmd.To)
		if err != nil {
			return nil, fmt.Errorf("materialize_slots: drop open records: %w", err)
		}
		result.Removed = removed
		if removed > 0 {
			h.log.Info("dropped open records for regeneration",
				logger.StudentID(cmd.StudentID),
				logger.Int64("removed", removed),
			)
		}
	}

	for _, slot := range cmd.Slots {
		if err := ctx.Err(); err != nil {
			result.Errors["batch"] = err
			break
		}
		h.materializeOne(ctx, slot, now, result)
	}

	h.log.Info("materialization finished",
		logger.StudentID(cmd.StudentID),
		logger.Int("created", result.Created),
		logger.Int("already_exists", result.AlreadyExists),
		logger.Int("skipped_invalid", result.SkippedInvalid),
		logger.Int("topic_missing", result.TopicMissing),
	)

	return result, nil
}

// materializeOne turns a single slot into a progress record.
func (h *MaterializeSlotsHandler) materializeOne(ctx context.Context, slot schedule.Slot, now time.Time, result *MaterializeResult) {
	key := slotKey(slot)

	if err := slot.Validate(); err != nil {
		h.log.Warn("skipping invalid slot",
			logger.StudentID(slot.StudentID.String()),
			logger.String("slot", key),
			logger.Err(err),
		)
		result.SkippedInvalid++
		return
	}

	if !slot.HasTopic() {
		result.TopicMissing++
		if h.eventPublisher != nil {
			event := schedule.NewTopicMissingEvent(slot, now)
			if pubErr := h.eventPublisher.Publish(event); pubErr != nil {
				h.log.Error("failed to publish topic missing event", logger.Err(pubErr))
			}
		}
		return
	}

	window, err := h.calculator.Compute(slot)
	if err != nil {
		result.SkippedInvalid++
		result.Errors[key] = err
		return
	}

	rec := progress.NewRecord(slot, window, now)
	if err := h.progressRepo.Create(ctx, rec); err != nil {
		if errors.Is(err, progress.ErrRecordAlreadyExists) {
			result.AlreadyExists++
			return
		}
		h.log.Error("failed to create record, continuing",
			logger.String("slot", key),
			logger.Err(err),
		)
		result.Errors[key] = err
		return
	}

	result.Created++

	if h.eventPublisher != nil {
		event := progress.NewProgressMaterializedEvent(rec, now)
		_ = h.eventPublisher.Publish(event)
	}
}

func slotKey(slot schedule.Slot) string {
	return fmt.Sprintf("%s/%s/%d@%s",
		slot.StudentID, slot.LessonTopicID, slot.PeriodSequence,
		slot.ScheduledDate.Format("2006-01-02"))
}
