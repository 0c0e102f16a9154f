package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/notification"
	"github.com/eduhub/assessment-engine/internal/domain/schedule"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON TOPIC MISSING HANDLER
// Пробел в расписании: слот сгенерирован, но тема урока не назначена.
// Запись прогресса не создана - учителю предмета уходит уведомление,
// чтобы пробел закрыли до даты урока.
// ═══════════════════════════════════════════════════════════════════════════

// OnTopicMissingHandler обрабатывает событие пробела в расписании.
type OnTopicMissingHandler struct {
	dispatcher notification.Dispatcher
	teachers   TeacherDirectory
	logger     *slog.Logger
	timeout    time.Duration
}

// NewOnTopicMissingHandler создаёт обработчик.
func NewOnTopicMissingHandler(
	dispatcher notification.Dispatcher,
	teachers TeacherDirectory,
	logger *slog.Logger,
) *OnTopicMissingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnTopicMissingHandler{
		dispatcher: dispatcher,
		teachers:   teachers,
		logger:     logger,
		timeout:    10 * time.Second,
	}
}

// Handle возвращает shared.EventHandler для подписки на шину.
func (h *OnTopicMissingHandler) Handle() shared.EventHandler {
	return func(event shared.Event) error {
		missing, ok := event.(schedule.TopicMissingEvent)
		if !ok {
			h.logger.Warn("unexpected event type",
				"event_type", event.EventType(),
				"handler", "on_topic_missing",
			)
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		teacherID, err := h.teachers.TeacherForSubject(ctx, missing.SubjectID)
		if err != nil || teacherID == "" {
			h.logger.Warn("teacher lookup failed for topic gap",
				"subject_id", missing.SubjectID.String(),
				"error", err,
			)
			return nil
		}

		n, err := notification.NewNotification(notification.NewNotificationParams{
			Type:        notification.TypeTopicMissing,
			RecipientID: teacherID,
			StudentID:   missing.StudentID,
			SubjectID:   missing.SubjectID,
			SubjectName: missing.SubjectName,
			Title:       "Не назначена тема урока",
			Body: fmt.Sprintf("На урок %s %s (предмет %s) не назначена тема. Аттестация для ученика не создана.",
				missing.ScheduledDate.Format("02.01.2006"),
				missing.LessonStart,
				missing.SubjectName,
			),
			Priority: notification.PriorityHigh,
			Now:      missing.OccurredAt(),
		})
		if err != nil {
			h.logger.Error("failed to build topic missing notification", "error", err)
			return nil
		}

		if err := h.dispatcher.Dispatch(ctx, n); err != nil {
			h.logger.Error("failed to dispatch topic missing notification",
				"subject_id", missing.SubjectID.String(),
				"error", err,
			)
		}

		return nil
	}
}
