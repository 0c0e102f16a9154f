package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduhub/assessment-engine/internal/domain/progress"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
	"github.com/eduhub/assessment-engine/internal/infrastructure/persistence/memory"
	"github.com/eduhub/assessment-engine/pkg/clock"
	"github.com/eduhub/assessment-engine/pkg/logger"
)

func TestSweepExpired_MarksExpiredRecords(t *testing.T) {
	repo := memory.NewProgressRepository()
	pub := &capturingPublisher{}

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	rec := seedRecord(t, repo, 1, jan10)

	// Далеко за концом льготного периода (10:15) и буфером допуска.
	clk := clock.NewFake(jan10.Add(12 * time.Hour))

	h := NewSweepExpiredHandler(repo, pub, clk, logger.Default(), SweepExpiredHandlerConfig{})

	result, err := h.Handle(context.Background(), SweepExpiredCommand{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Examined)
	assert.Equal(t, 1, result.Marked)
	assert.Empty(t, result.Errors)

	stored, err := repo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.TerminalMissed, stored.Terminal)
	require.NotNil(t, stored.IncompleteReason)
	assert.Equal(t, progress.ReasonMissedGracePeriod, *stored.IncompleteReason)
	require.NotNil(t, stored.AutoMarkedIncompleteAt)
	assert.Nil(t, stored.CompletedAt)

	assert.Contains(t, pub.Types(), shared.EventAssessmentExpired)
}

func TestSweepExpired_ToleranceDelaysExpiry(t *testing.T) {
	repo := memory.NewProgressRepository()

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	rec := seedRecord(t, repo, 1, jan10)

	// 30 секунд после конца льготного периода: внутри буфера допуска.
	clk := clock.NewFake(rec.GraceEnd.Add(30 * time.Second))

	h := NewSweepExpiredHandler(repo, &capturingPublisher{}, clk, logger.Default(), SweepExpiredHandlerConfig{
		Tolerance: time.Minute,
	})

	result, err := h.Handle(context.Background(), SweepExpiredCommand{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Examined)

	// За пределами буфера запись попадает в свип.
	clk.Set(rec.GraceEnd.Add(2 * time.Minute))
	result, err = h.Handle(context.Background(), SweepExpiredCommand{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Marked)
}

func TestSweepExpired_SubmissionWinsRace(t *testing.T) {
	repo := memory.NewProgressRepository()

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	rec := seedRecord(t, repo, 1, jan10)
	clk := clock.NewFake(jan10.Add(12 * time.Hour))

	// Сдача привязывается между чтением кандидатов и пометкой:
	// условная запись свипа обязана отступить.
	applied, err := repo.LinkSubmission(context.Background(), rec.ID, subOne, jan10.Add(10*time.Hour), nil, clk.Now())
	require.NoError(t, err)
	require.True(t, applied)

	h := NewSweepExpiredHandler(repo, &capturingPublisher{}, clk, logger.Default(), SweepExpiredHandlerConfig{})
	h.markOne(context.Background(), rec, clk.Now(), &SweepResult{Errors: map[string]error{}})

	stored, err := repo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.TerminalCompleted, stored.Terminal)
	assert.True(t, stored.LinkedTo(subOne))
}

func TestSweepExpired_RerunIsNoop(t *testing.T) {
	repo := memory.NewProgressRepository()

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	seedRecord(t, repo, 1, jan10)
	clk := clock.NewFake(jan10.Add(12 * time.Hour))

	h := NewSweepExpiredHandler(repo, &capturingPublisher{}, clk, logger.Default(), SweepExpiredHandlerConfig{})

	first, err := h.Handle(context.Background(), SweepExpiredCommand{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Marked)

	second, err := h.Handle(context.Background(), SweepExpiredCommand{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Examined)
	assert.Equal(t, 0, second.Marked)
}

func TestExpireRecord_Manual(t *testing.T) {
	repo := memory.NewProgressRepository()
	pub := &capturingPublisher{}

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	rec := seedRecord(t, repo, 1, jan10)

	// Окно ещё открыто: ручное закрытие не ждёт дедлайна.
	clk := clock.NewFake(jan10.Add(9*time.Hour + 10*time.Minute))

	h := NewExpireRecordHandler(repo, pub, clk, logger.Default())

	require.NoError(t, h.Handle(context.Background(), ExpireRecordCommand{RecordID: rec.ID}))

	stored, err := repo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.IncompleteReason)
	assert.Equal(t, progress.ReasonManuallyExpired, *stored.IncompleteReason)

	// Повтор по терминальной записи возвращает типизированную ошибку.
	err = h.Handle(context.Background(), ExpireRecordCommand{RecordID: rec.ID})
	assert.ErrorIs(t, err, progress.ErrAlreadyMissed)
}

func TestExpireRecord_CompletedRejected(t *testing.T) {
	repo := memory.NewProgressRepository()

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	rec := seedRecord(t, repo, 1, jan10)
	clk := clock.NewFake(jan10.Add(10 * time.Hour))

	applied, err := repo.LinkSubmission(context.Background(), rec.ID, subOne, jan10.Add(9*time.Hour), nil, clk.Now())
	require.NoError(t, err)
	require.True(t, applied)

	h := NewExpireRecordHandler(repo, &capturingPublisher{}, clk, logger.Default())
	err = h.Handle(context.Background(), ExpireRecordCommand{RecordID: rec.ID})
	assert.ErrorIs(t, err, progress.ErrAlreadyCompleted)
}
