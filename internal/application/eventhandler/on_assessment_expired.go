// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduhub/assessment-engine/internal/application/query"
	"github.com/eduhub/assessment-engine/internal/domain/notification"
	"github.com/eduhub/assessment-engine/internal/domain/progress"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ASSESSMENT EXPIRED HANDLER
// Обрабатывает пропуск аттестации: уведомляет ученика и учителя и
// сбрасывает кэш проекции расписания. Доставка - best-effort: запись
// прогресса уже терминальна, сбой уведомления ничего не откатывает.
// ═══════════════════════════════════════════════════════════════════════════

// TeacherDirectory - справочник учителей по предметам.
type TeacherDirectory interface {
	// TeacherForSubject возвращает идентификатор учителя предмета.
	TeacherForSubject(ctx context.Context, subjectID shared.SubjectID) (string, error)
}

// OnAssessmentExpiredHandler обрабатывает событие пропуска аттестации.
type OnAssessmentExpiredHandler struct {
	dispatcher notification.Dispatcher
	teachers   TeacherDirectory
	cache      query.ScheduleCache
	logger     *slog.Logger

	config AssessmentExpiredConfig
}

// AssessmentExpiredConfig содержит конфигурацию обработчика.
type AssessmentExpiredConfig struct {
	// NotifyStudent - уведомлять ли ученика.
	NotifyStudent bool

	// NotifyTeacher - уведомлять ли учителя предмета.
	NotifyTeacher bool

	// HandlerTimeout - таймаут обработки одного события.
	HandlerTimeout time.Duration
}

// DefaultAssessmentExpiredConfig возвращает конфигурацию по умолчанию.
func DefaultAssessmentExpiredConfig() AssessmentExpiredConfig {
	return AssessmentExpiredConfig{
		NotifyStudent:  true,
		NotifyTeacher:  true,
		HandlerTimeout: 10 * time.Second,
	}
}

// NewOnAssessmentExpiredHandler создаёт обработчик.
func NewOnAssessmentExpiredHandler(
	dispatcher notification.Dispatcher,
	teachers TeacherDirectory,
	cache query.ScheduleCache,
	logger *slog.Logger,
	config AssessmentExpiredConfig,
) *OnAssessmentExpiredHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.HandlerTimeout <= 0 {
		config = DefaultAssessmentExpiredConfig()
	}

	return &OnAssessmentExpiredHandler{
		dispatcher: dispatcher,
		teachers:   teachers,
		cache:      cache,
		logger:     logger,
		config:     config,
	}
}

// Handle возвращает shared.EventHandler для подписки на шину.
func (h *OnAssessmentExpiredHandler) Handle() shared.EventHandler {
	return func(event shared.Event) error {
		expired, ok := event.(progress.AssessmentExpiredEvent)
		if !ok {
			h.logger.Warn("unexpected event type",
				"event_type", event.EventType(),
				"handler", "on_assessment_expired",
			)
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), h.config.HandlerTimeout)
		defer cancel()

		h.invalidateCache(ctx, expired.StudentID)

		if h.config.NotifyStudent {
			h.notifyStudent(ctx, expired)
		}
		if h.config.NotifyTeacher {
			h.notifyTeacher(ctx, expired)
		}

		return nil
	}
}

// invalidateCache сбрасывает проекции расписания ученика.
func (h *OnAssessmentExpiredHandler) invalidateCache(ctx context.Context, studentID shared.StudentID) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidateStudent(ctx, studentID.String()); err != nil {
		h.logger.Warn("failed to invalidate schedule cache",
			"student_id", studentID.String(),
			"error", err,
		)
	}
}

// notifyStudent отправляет уведомление ученику.
func (h *OnAssessmentExpiredHandler) notifyStudent(ctx context.Context, e progress.AssessmentExpiredEvent) {
	n, err := notification.NewNotification(notification.NewNotificationParams{
		Type:        notification.TypeAssessmentExpiredStudent,
		RecipientID: e.StudentID.String(),
		StudentID:   e.StudentID,
		SubjectID:   e.SubjectID,
		SubjectName: e.SubjectName,
		Title:       "Аттестация пропущена",
		Body: fmt.Sprintf("Аттестация по предмету %s (период %d из %d) за %s не сдана. Срок истёк %s.",
			e.SubjectName, e.PeriodSequence, e.TotalPeriods,
			e.ScheduledDate.Format("02.01.2006"),
			e.GraceDeadline.Format("15:04"),
		),
		Priority: notification.PriorityNormal,
		Now:      e.OccurredAt(),
	})
	if err != nil {
		h.logger.Error("failed to build student notification", "error", err)
		return
	}

	if err := h.dispatcher.Dispatch(ctx, n); err != nil {
		h.logger.Error("failed to dispatch student notification",
			"student_id", e.StudentID.String(),
			"error", err,
		)
	}
}

// notifyTeacher отправляет сводку учителю предмета.
func (h *OnAssessmentExpiredHandler) notifyTeacher(ctx context.Context, e progress.AssessmentExpiredEvent) {
	if h.teachers == nil {
		return
	}

	teacherID, err := h.teachers.TeacherForSubject(ctx, e.SubjectID)
	if err != nil || teacherID == "" {
		h.logger.Warn("teacher lookup failed, skipping teacher notice",
			"subject_id", e.SubjectID.String(),
			"error", err,
		)
		return
	}

	n, err := notification.NewNotification(notification.NewNotificationParams{
		Type:        notification.TypeAssessmentExpiredTeacher,
		RecipientID: teacherID,
		StudentID:   e.StudentID,
		SubjectID:   e.SubjectID,
		SubjectName: e.SubjectName,
		Title:       "Ученик пропустил аттестацию",
		Body: fmt.Sprintf("Ученик %s пропустил аттестацию по предмету %s (период %d из %d, урок %s).",
			e.StudentID.String(), e.SubjectName,
			e.PeriodSequence, e.TotalPeriods,
			e.ScheduledDate.Format("02.01.2006"),
		),
		Priority: notification.PriorityLow,
		Now:      e.OccurredAt(),
	})
	if err != nil {
		h.logger.Error("failed to build teacher notification", "error", err)
		return
	}

	if err := h.dispatcher.Dispatch(ctx, n); err != nil {
		h.logger.Error("failed to dispatch teacher notification",
			"subject_id", e.SubjectID.String(),
			"error", err,
		)
	}
}
