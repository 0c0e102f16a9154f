package query

import (
	"context"
	"fmt"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/progress"
	"github.com/eduhub/assessment-engine/pkg/clock"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS STATS QUERY
// Админ-статистика движка: сколько записей в каждом терминальном
// состоянии. Используется health-страницей и операторами.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressStatsDTO - сводка по записям прогресса.
type ProgressStatsDTO struct {
	// Open - записи без терминального состояния.
	Open int64 `json:"open"`

	// Completed - завершённые записи.
	Completed int64 `json:"completed"`

	// Missed - пропущенные записи.
	Missed int64 `json:"missed"`

	// Total - всего записей.
	Total int64 `json:"total"`

	// GeneratedAt - момент снятия сводки.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetProgressStatsHandler обрабатывает запрос статистики.
type GetProgressStatsHandler struct {
	progressRepo progress.Repository
	clock        clock.Clock
}

// NewGetProgressStatsHandler создаёт обработчик статистики.
func NewGetProgressStatsHandler(progressRepo progress.Repository, clk clock.Clock) *GetProgressStatsHandler {
	if clk == nil {
		clk = clock.System{}
	}
	return &GetProgressStatsHandler{progressRepo: progressRepo, clock: clk}
}

// Handle собирает сводку по терминальным состояниям.
func (h *GetProgressStatsHandler) Handle(ctx context.Context) (*ProgressStatsDTO, error) {
	counts, err := h.progressRepo.CountByTerminal(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_progress_stats: %w", err)
	}

	dto := &ProgressStatsDTO{
		Open:        counts[progress.TerminalNone],
		Completed:   counts[progress.TerminalCompleted],
		Missed:      counts[progress.TerminalMissed],
		GeneratedAt: h.clock.Now(),
	}
	dto.Total = dto.Open + dto.Completed + dto.Missed
	return dto, nil
}
