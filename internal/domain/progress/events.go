package progress

import (
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/schedule"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN EVENTS
// События публикуются после успешного применения перехода хранилищем.
// Сбой публикации не откатывает переход: состояние записи - источник правды.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressMaterializedEvent - запись прогресса создана из слота расписания.
type ProgressMaterializedEvent struct {
	shared.BaseEvent
	StudentID      shared.StudentID     `json:"student_id"`
	LessonTopicID  shared.LessonTopicID `json:"lesson_topic_id"`
	SubjectID      shared.SubjectID     `json:"subject_id"`
	PeriodSequence int                  `json:"period_sequence"`
	ScheduledDate  time.Time            `json:"scheduled_date"`
	WindowStart    time.Time            `json:"window_start"`
	GraceEnd       time.Time            `json:"grace_end"`
}

// NewProgressMaterializedEvent создаёт событие материализации записи.
func NewProgressMaterializedEvent(r *Record, occurredAt time.Time) ProgressMaterializedEvent {
	return ProgressMaterializedEvent{
		BaseEvent:      shared.NewBaseEvent(shared.EventProgressMaterialized, r.ID, occurredAt),
		StudentID:      r.StudentID,
		LessonTopicID:  r.LessonTopicID,
		SubjectID:      r.SubjectID,
		PeriodSequence: r.PeriodSequence,
		ScheduledDate:  r.ScheduledDate,
		WindowStart:    r.WindowStart,
		GraceEnd:       r.GraceEnd,
	}
}

// Payload implements shared.Event.
func (e ProgressMaterializedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":      e.StudentID.String(),
		"lesson_topic_id": e.LessonTopicID.String(),
		"subject_id":      e.SubjectID.String(),
		"period_sequence": e.PeriodSequence,
		"scheduled_date":  e.ScheduledDate,
		"window_start":    e.WindowStart,
		"grace_end":       e.GraceEnd,
	}
}

// SubmissionLinkedEvent - сдача привязана к записи, период завершён.
type SubmissionLinkedEvent struct {
	shared.BaseEvent
	StudentID      shared.StudentID     `json:"student_id"`
	LessonTopicID  shared.LessonTopicID `json:"lesson_topic_id"`
	SubjectID      shared.SubjectID     `json:"subject_id"`
	SubmissionID   shared.SubmissionID  `json:"submission_id"`
	PeriodSequence int                  `json:"period_sequence"`
	CompletedAt    time.Time            `json:"completed_at"`
	Score          *shared.Score        `json:"score,omitempty"`
}

// NewSubmissionLinkedEvent создаёт событие привязки сдачи.
func NewSubmissionLinkedEvent(r *Record, submissionID shared.SubmissionID, occurredAt time.Time) SubmissionLinkedEvent {
	e := SubmissionLinkedEvent{
		BaseEvent:      shared.NewBaseEvent(shared.EventSubmissionLinked, r.ID, occurredAt),
		StudentID:      r.StudentID,
		LessonTopicID:  r.LessonTopicID,
		SubjectID:      r.SubjectID,
		SubmissionID:   submissionID,
		PeriodSequence: r.PeriodSequence,
		Score:          r.Score,
	}
	if r.CompletedAt != nil {
		e.CompletedAt = *r.CompletedAt
	}
	return e
}

// Payload implements shared.Event.
func (e SubmissionLinkedEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"student_id":      e.StudentID.String(),
		"lesson_topic_id": e.LessonTopicID.String(),
		"subject_id":      e.SubjectID.String(),
		"submission_id":   e.SubmissionID.String(),
		"period_sequence": e.PeriodSequence,
		"completed_at":    e.CompletedAt,
	}
	if e.Score != nil {
		p["score"] = e.Score.Float64()
	}
	return p
}

// AssessmentExpiredEvent - льготный период истёк, запись помечена пропущенной.
// Несёт всё необходимое для уведомлений ученику и учителю.
type AssessmentExpiredEvent struct {
	shared.BaseEvent
	StudentID      shared.StudentID         `json:"student_id"`
	LessonTopicID  shared.LessonTopicID     `json:"lesson_topic_id"`
	SubjectID      shared.SubjectID         `json:"subject_id"`
	SubjectName    string                   `json:"subject_name"`
	PeriodSequence int                      `json:"period_sequence"`
	TotalPeriods   int                      `json:"total_periods"`
	ScheduledDate  time.Time                `json:"scheduled_date"`
	GraceDeadline  time.Time                `json:"grace_deadline"`
	Reason         IncompleteReason         `json:"reason"`
	Category       schedule.StudentCategory `json:"category"`
}

// NewAssessmentExpiredEvent создаёт событие пропуска аттестации.
func NewAssessmentExpiredEvent(r *Record, reason IncompleteReason, occurredAt time.Time) AssessmentExpiredEvent {
	return AssessmentExpiredEvent{
		BaseEvent:      shared.NewBaseEvent(shared.EventAssessmentExpired, r.ID, occurredAt),
		StudentID:      r.StudentID,
		LessonTopicID:  r.LessonTopicID,
		SubjectID:      r.SubjectID,
		SubjectName:    r.SubjectName,
		PeriodSequence: r.PeriodSequence,
		TotalPeriods:   r.TotalPeriodsInSequence,
		ScheduledDate:  r.ScheduledDate,
		GraceDeadline:  r.GraceEnd,
		Reason:         reason,
		Category:       r.Category,
	}
}

// Payload implements shared.Event.
func (e AssessmentExpiredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":      e.StudentID.String(),
		"lesson_topic_id": e.LessonTopicID.String(),
		"subject_id":      e.SubjectID.String(),
		"subject_name":    e.SubjectName,
		"period_sequence": e.PeriodSequence,
		"total_periods":   e.TotalPeriods,
		"scheduled_date":  e.ScheduledDate,
		"grace_deadline":  e.GraceDeadline,
		"reason":          string(e.Reason),
		"category":        e.Category.String(),
	}
}
