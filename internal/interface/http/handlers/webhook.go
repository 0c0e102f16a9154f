// Package handlers contains HTTP handler interfaces and implementations.
package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduhub/assessment-engine/internal/application/command"
	"github.com/eduhub/assessment-engine/internal/domain/schedule"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
	"github.com/eduhub/assessment-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLATFORM WEBHOOK EVENTS
// The school platform pushes two event kinds: a student finished a
// submission, and the schedule generator (re)published a student's slots.
// Both paths are also covered by periodic jobs, so a lost webhook only
// delays processing until the next pass.
// ══════════════════════════════════════════════════════════════════════════════

// Platform webhook event types.
const (
	// EventSubmissionCompleted - a student completed an assessment submission.
	EventSubmissionCompleted = "submission.completed"

	// EventScheduleGenerated - a student's schedule slots were (re)generated.
	EventScheduleGenerated = "schedule.generated"
)

// WebhookHandler defines the interface for handling platform webhooks.
type WebhookHandler interface {
	// HandleEvent processes one webhook event payload.
	HandleEvent(ctx context.Context, eventType string, payload []byte) error
}

// SubmissionCompletedDTO is the payload of a submission.completed event.
type SubmissionCompletedDTO struct {
	SubmissionID string `json:"submission_id"`
}

// SlotDTO is one schedule slot in a schedule.generated event.
type SlotDTO struct {
	LessonTopicID string `json:"lesson_topic_id"`
	SubjectID     string `json:"subject_id"`
	SubjectName   string `json:"subject_name"`
	PeriodSeq     int    `json:"period_sequence"`
	TotalPeriods  int    `json:"total_periods"`
	ScheduledDate string `json:"scheduled_date"` // "2006-01-02"
	StartTime     string `json:"start_time"`     // "HH:MM"
	EndTime       string `json:"end_time"`       // "HH:MM"
	Category      string `json:"category"`
}

// ScheduleGeneratedDTO is the payload of a schedule.generated event.
type ScheduleGeneratedDTO struct {
	StudentID string    `json:"student_id"`
	Replace   bool      `json:"replace"`
	From      time.Time `json:"from,omitempty"`
	To        time.Time `json:"to,omitempty"`
	Slots     []SlotDTO `json:"slots"`
}

// ToSlot converts the DTO into a domain slot for the given student.
func (d SlotDTO) ToSlot(studentID string) (schedule.Slot, error) {
	date, err := timeutil.ParseDate(d.ScheduledDate)
	if err != nil {
		return schedule.Slot{}, fmt.Errorf("scheduled_date: %w", err)
	}

	start, err := schedule.ParseTimeOfDay(d.StartTime)
	if err != nil {
		return schedule.Slot{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := schedule.ParseTimeOfDay(d.EndTime)
	if err != nil {
		return schedule.Slot{}, fmt.Errorf("end_time: %w", err)
	}

	return schedule.Slot{
		StudentID:              shared.StudentID(studentID),
		LessonTopicID:          shared.LessonTopicID(d.LessonTopicID),
		SubjectID:              shared.SubjectID(d.SubjectID),
		SubjectName:            d.SubjectName,
		PeriodSequence:         d.PeriodSeq,
		TotalPeriodsInSequence: d.TotalPeriods,
		ScheduledDate:          date,
		StartTime:              start,
		EndTime:                end,
		Category:               schedule.StudentCategory(d.Category),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK PROCESSOR
// ══════════════════════════════════════════════════════════════════════════════

// PlatformWebhookProcessor routes platform webhook events to command handlers.
type PlatformWebhookProcessor struct {
	linker       *command.LinkSubmissionHandler
	materializer *command.MaterializeSlotsHandler
	logger       *slog.Logger
}

// NewPlatformWebhookProcessor creates a webhook processor.
func NewPlatformWebhookProcessor(
	linker *command.LinkSubmissionHandler,
	materializer *command.MaterializeSlotsHandler,
	logger *slog.Logger,
) *PlatformWebhookProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlatformWebhookProcessor{
		linker:       linker,
		materializer: materializer,
		logger:       logger.With("component", "webhook_processor"),
	}
}

// HandleEvent implements WebhookHandler.
func (p *PlatformWebhookProcessor) HandleEvent(ctx context.Context, eventType string, payload []byte) error {
	switch eventType {
	case EventSubmissionCompleted:
		return p.handleSubmissionCompleted(ctx, payload)
	case EventScheduleGenerated:
		return p.handleScheduleGenerated(ctx, payload)
	default:
		// Unknown events are acknowledged, not rejected: the platform adds
		// event kinds faster than consumers upgrade.
		p.logger.Debug("ignoring unknown webhook event", "event_type", eventType)
		return nil
	}
}

func (p *PlatformWebhookProcessor) handleSubmissionCompleted(ctx context.Context, payload []byte) error {
	var dto SubmissionCompletedDTO
	if err := json.Unmarshal(payload, &dto); err != nil {
		return fmt.Errorf("parse submission event: %w", err)
	}

	result, err := p.linker.Handle(ctx, command.LinkSubmissionCommand{
		SubmissionID: dto.SubmissionID,
	})
	if err != nil {
		return fmt.Errorf("link submission %s: %w", dto.SubmissionID, err)
	}

	p.logger.Info("webhook submission processed",
		"submission_id", dto.SubmissionID,
		"outcome", string(result.Outcome),
	)
	return nil
}

func (p *PlatformWebhookProcessor) handleScheduleGenerated(ctx context.Context, payload []byte) error {
	var dto ScheduleGeneratedDTO
	if err := json.Unmarshal(payload, &dto); err != nil {
		return fmt.Errorf("parse schedule event: %w", err)
	}

	slots := make([]schedule.Slot, 0, len(dto.Slots))
	for i, slotDTO := range dto.Slots {
		slot, err := slotDTO.ToSlot(dto.StudentID)
		if err != nil {
			// Malformed slots are dropped here the same way the
			// materializer drops invalid ones: one bad slot must not
			// reject the whole schedule.
			p.logger.Warn("dropping malformed slot",
				"student_id", dto.StudentID,
				"index", i,
				"error", err,
			)
			continue
		}
		slots = append(slots, slot)
	}

	result, err := p.materializer.Handle(ctx, command.MaterializeSlotsCommand{
		StudentID: dto.StudentID,
		Slots:     slots,
		Replace:   dto.Replace,
		From:      dto.From,
		To:        dto.To,
	})
	if err != nil {
		return fmt.Errorf("materialize slots for %s: %w", dto.StudentID, err)
	}

	p.logger.Info("webhook schedule processed",
		"student_id", dto.StudentID,
		"created", result.Created,
		"already_exists", result.AlreadyExists,
		"topic_missing", result.TopicMissing,
		"removed", result.Removed,
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SIGNATURE VERIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// VerifySignature checks an HMAC-SHA256 signature over the raw request body.
// The platform sends the signature as "sha256=<hex>" in X-Signature-256.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}

	const prefix = "sha256="
	if len(signature) > len(prefix) && signature[:len(prefix)] == prefix {
		signature = signature[len(prefix):]
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
