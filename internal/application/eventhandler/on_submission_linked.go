package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/eduhub/assessment-engine/internal/application/query"
	"github.com/eduhub/assessment-engine/internal/domain/progress"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON SUBMISSION LINKED HANDLER
// Привязка сдачи меняет статус периода и может разблокировать следующий
// период темы - проекции расписания ученика сбрасываются.
// ═══════════════════════════════════════════════════════════════════════════

// OnSubmissionLinkedHandler обрабатывает событие привязки сдачи.
type OnSubmissionLinkedHandler struct {
	cache   query.ScheduleCache
	logger  *slog.Logger
	timeout time.Duration
}

// NewOnSubmissionLinkedHandler создаёт обработчик.
func NewOnSubmissionLinkedHandler(cache query.ScheduleCache, logger *slog.Logger) *OnSubmissionLinkedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnSubmissionLinkedHandler{
		cache:   cache,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Handle возвращает shared.EventHandler для подписки на шину.
func (h *OnSubmissionLinkedHandler) Handle() shared.EventHandler {
	return func(event shared.Event) error {
		linked, ok := event.(progress.SubmissionLinkedEvent)
		if !ok {
			h.logger.Warn("unexpected event type",
				"event_type", event.EventType(),
				"handler", "on_submission_linked",
			)
			return nil
		}

		if h.cache == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		if err := h.cache.InvalidateStudent(ctx, linked.StudentID.String()); err != nil {
			h.logger.Warn("failed to invalidate schedule cache",
				"student_id", linked.StudentID.String(),
				"error", err,
			)
		}
		return nil
	}
}
