// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/assessment"
	"github.com/eduhub/assessment-engine/internal/domain/progress"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
	"github.com/eduhub/assessment-engine/pkg/clock"
	"github.com/eduhub/assessment-engine/pkg/logger"
	"github.com/eduhub/assessment-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT SCHEDULE QUERY
// Проекция расписания аттестаций ученика: каждому периоду - статус,
// границы окна и решение о доступности. Статусы вычисляются на момент
// запроса; проекция кэшируется и сбрасывается при любом переходе.
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentScheduleQuery содержит параметры запроса расписания.
type GetStudentScheduleQuery struct {
	// StudentID - идентификатор ученика.
	StudentID string

	// From - начало интервала (пустое = начало текущей ISO-недели).
	From time.Time

	// To - конец интервала, не включая (пустое = From + 7 дней).
	To time.Time

	// SkipCache - не читать кэш (для отладки).
	SkipCache bool
}

// Validate проверяет и нормализует параметры.
func (q *GetStudentScheduleQuery) Validate(now time.Time) error {
	if q.StudentID == "" {
		return errors.New("get_student_schedule: student_id is required")
	}
	if q.From.IsZero() {
		q.From = timeutil.StartOfISOWeek(now)
	}
	if q.To.IsZero() {
		q.To = q.From.AddDate(0, 0, 7)
	}
	if !q.From.Before(q.To) {
		return errors.New("get_student_schedule: from must precede to")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// DTO
// ─────────────────────────────────────────────────────────────────────────────

// Производные статусы поверх статусов записи: блокировка зависимостью
// показывается ученику как отдельное состояние.
const (
	// ViewStatusLocked - предыдущий период темы не завершён.
	ViewStatusLocked = "LOCKED"

	// ViewStatusWaitingAssessment - ожидается аттестация от учителя.
	ViewStatusWaitingAssessment = "WAITING_ASSESSMENT"
)

// ScheduleItemDTO - один период в проекции расписания.
type ScheduleItemDTO struct {
	// RecordID - идентификатор записи прогресса.
	RecordID string `json:"record_id"`

	// LessonTopicID - тема урока.
	LessonTopicID string `json:"lesson_topic_id"`

	// SubjectID и SubjectName - предмет.
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`

	// PeriodSequence и TotalPeriods - "период 2 из 3".
	PeriodSequence int `json:"period_sequence"`
	TotalPeriods   int `json:"total_periods"`

	// ScheduledDate - дата урока.
	ScheduledDate time.Time `json:"scheduled_date"`

	// Status - статус для отображения (включая LOCKED и WAITING_ASSESSMENT).
	Status string `json:"status"`

	// WindowStart, WindowEnd, GraceEnd - границы окна аттестации.
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	GraceEnd    time.Time `json:"grace_end"`

	// CanAccess - доступен ли период прямо сейчас.
	CanAccess bool `json:"can_access"`

	// BlockReason - причина блокировки (пустая, если доступен).
	BlockReason string `json:"block_reason,omitempty"`

	// MinutesRemaining - минуты до закрытия окна (0 вне окна).
	MinutesRemaining int64 `json:"minutes_remaining"`

	// Score - балл привязанной сдачи.
	Score *float64 `json:"score,omitempty"`
}

// ScheduleDTO - проекция расписания ученика.
type ScheduleDTO struct {
	// StudentID - ученик.
	StudentID string `json:"student_id"`

	// From и To - границы интервала.
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	// Items - периоды, по дате и номеру периода.
	Items []ScheduleItemDTO `json:"items"`

	// GeneratedAt - момент вычисления проекции.
	GeneratedAt time.Time `json:"generated_at"`
}

// ─────────────────────────────────────────────────────────────────────────────
// CACHE PORT
// ─────────────────────────────────────────────────────────────────────────────

// ScheduleCache - кэш проекций расписания.
type ScheduleCache interface {
	// Get возвращает проекцию или (nil, nil) при промахе.
	Get(ctx context.Context, key string) (*ScheduleDTO, error)

	// Set сохраняет проекцию.
	Set(ctx context.Context, key string, dto *ScheduleDTO) error

	// InvalidateStudent сбрасывает все проекции ученика.
	InvalidateStudent(ctx context.Context, studentID string) error
}

// ─────────────────────────────────────────────────────────────────────────────
// HANDLER
// ─────────────────────────────────────────────────────────────────────────────

// GetStudentScheduleHandler обрабатывает GetStudentScheduleQuery.
type GetStudentScheduleHandler struct {
	progressRepo progress.Repository
	followUps    assessment.FollowUpProvider
	cache        ScheduleCache
	clock        clock.Clock
	log          *logger.Logger
}

// NewGetStudentScheduleHandler создаёт обработчик запроса расписания.
func NewGetStudentScheduleHandler(
	progressRepo progress.Repository,
	followUps assessment.FollowUpProvider,
	cache ScheduleCache,
	clk clock.Clock,
	log *logger.Logger,
) *GetStudentScheduleHandler {
	if clk == nil {
		clk = clock.System{}
	}
	return &GetStudentScheduleHandler{
		progressRepo: progressRepo,
		followUps:    followUps,
		cache:        cache,
		clock:        clk,
		log:          log.Named("get_student_schedule"),
	}
}

// Handle строит проекцию расписания ученика.
func (h *GetStudentScheduleHandler) Handle(ctx context.Context, q GetStudentScheduleQuery) (*ScheduleDTO, error) {
	now := h.clock.Now()
	if err := q.Validate(now); err != nil {
		return nil, err
	}

	cacheKey := scheduleCacheKey(q.StudentID, q.From, q.To)
	if h.cache != nil && !q.SkipCache {
		if dto, err := h.cache.Get(ctx, cacheKey); err == nil && dto != nil {
			return dto, nil
		}
	}

	studentID := shared.StudentID(q.StudentID)
	records, err := h.progressRepo.FindByStudentBetween(ctx, studentID, q.From, q.To)
	if err != nil {
		return nil, fmt.Errorf("get_student_schedule: find records: %w", err)
	}

	// Записи группируются по теме, чтобы решать доступность по соседям.
	byTopic := make(map[shared.LessonTopicID][]*progress.Record)
	for _, r := range records {
		byTopic[r.LessonTopicID] = append(byTopic[r.LessonTopicID], r)
	}

	dto := &ScheduleDTO{
		StudentID:   q.StudentID,
		From:        q.From,
		To:          q.To,
		Items:       make([]ScheduleItemDTO, 0, len(records)),
		GeneratedAt: now,
	}

	for _, r := range records {
		item := h.buildItem(ctx, r, byTopic[r.LessonTopicID], now)
		dto.Items = append(dto.Items, item)
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, cacheKey, dto); err != nil {
			h.log.Warn("failed to cache schedule projection", logger.Err(err))
		}
	}

	return dto, nil
}

// buildItem собирает DTO одного периода.
func (h *GetStudentScheduleHandler) buildItem(ctx context.Context, r *progress.Record, siblings []*progress.Record, now time.Time) ScheduleItemDTO {
	status := progress.Resolve(r, now)
	window := r.Window()

	item := ScheduleItemDTO{
		RecordID:         r.ID,
		LessonTopicID:    r.LessonTopicID.String(),
		SubjectID:        r.SubjectID.String(),
		SubjectName:      r.SubjectName,
		PeriodSequence:   r.PeriodSequence,
		TotalPeriods:     r.TotalPeriodsInSequence,
		ScheduledDate:    r.ScheduledDate,
		Status:           status.String(),
		WindowStart:      r.WindowStart,
		WindowEnd:        r.WindowEnd,
		GraceEnd:         r.GraceEnd,
		MinutesRemaining: window.MinutesRemaining(now),
	}

	if r.Score != nil {
		score := r.Score.Float64()
		item.Score = &score
	}

	// Терминальные статусы не зависят от цепочки периодов.
	if status.IsTerminal() {
		item.CanAccess = false
		return item
	}

	decision := progress.CanAccess(r, siblings, h.followUpExists(ctx, r), now)
	if !decision.Allowed {
		item.CanAccess = false
		item.BlockReason = string(decision.BlockReason)
		switch decision.BlockReason {
		case progress.BlockPreviousIncomplete:
			item.Status = ViewStatusLocked
		case progress.BlockWaitingTeacher:
			item.Status = ViewStatusWaitingAssessment
		}
		return item
	}

	item.CanAccess = status == progress.StatusAvailable && window.IsAccessible(now)
	return item
}

// followUpExists спрашивает источник аттестаций; недоступность источника
// трактуется как "аттестации нет" - период остаётся заблокированным.
func (h *GetStudentScheduleHandler) followUpExists(ctx context.Context, r *progress.Record) bool {
	if r.PeriodSequence <= 1 || h.followUps == nil {
		return true
	}
	exists, err := h.followUps.FollowUpExists(ctx, r.LessonTopicID, r.PeriodSequence)
	if err != nil {
		h.log.Warn("follow-up check failed, treating as not authored",
			logger.TopicID(r.LessonTopicID.String()),
			logger.Period(r.PeriodSequence),
			logger.Err(err),
		)
		return false
	}
	return exists
}

// scheduleCacheKey строит ключ кэша проекции.
func scheduleCacheKey(studentID string, from, to time.Time) string {
	return fmt.Sprintf("schedule:%s:%s:%s", studentID,
		timeutil.FormatDateStr(from), timeutil.FormatDateStr(to))
}
