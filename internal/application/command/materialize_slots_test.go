package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduhub/assessment-engine/internal/domain/progress"
	"github.com/eduhub/assessment-engine/internal/domain/schedule"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
	"github.com/eduhub/assessment-engine/internal/infrastructure/persistence/memory"
	"github.com/eduhub/assessment-engine/pkg/clock"
	"github.com/eduhub/assessment-engine/pkg/logger"
)

func slotFor(periodSeq int, date time.Time) schedule.Slot {
	return schedule.Slot{
		StudentID:              studentA,
		LessonTopicID:          topicMath,
		SubjectID:              subjectMath,
		SubjectName:            "Mathematics",
		PeriodSequence:         periodSeq,
		TotalPeriodsInSequence: 3,
		ScheduledDate:          date,
		StartTime:              schedule.TimeOfDay{Hour: 9, Minute: 0},
		EndTime:                schedule.TimeOfDay{Hour: 9, Minute: 45},
		Category:               schedule.CategorySchool,
	}
}

func newMaterializer(repo *memory.ProgressRepository, pub shared.EventPublisher, clk clock.Clock) *MaterializeSlotsHandler {
	return NewMaterializeSlotsHandler(repo, schedule.NewCalculator(30*time.Minute), pub, clk, logger.Default())
}

func TestMaterializeSlots_CreatesRecords(t *testing.T) {
	repo := memory.NewProgressRepository()
	pub := &capturingPublisher{}
	clk := clock.NewFake(time.Date(2024, 1, 8, 6, 0, 0, 0, time.UTC))

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	jan12 := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)

	h := newMaterializer(repo, pub, clk)
	result, err := h.Handle(context.Background(), MaterializeSlotsCommand{
		StudentID: studentA.String(),
		Slots:     []schedule.Slot{slotFor(1, jan10), slotFor(2, jan12)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Empty(t, result.Errors)

	rec, err := repo.GetByKey(context.Background(), progress.Key{
		StudentID:      studentA,
		LessonTopicID:  topicMath,
		PeriodSequence: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, jan10.Add(9*time.Hour), rec.WindowStart)
	assert.Equal(t, jan10.Add(10*time.Hour+15*time.Minute), rec.GraceEnd)

	assert.Contains(t, pub.Types(), shared.EventProgressMaterialized)
}

func TestMaterializeSlots_ReplayIsIdempotent(t *testing.T) {
	repo := memory.NewProgressRepository()
	clk := clock.NewFake(time.Date(2024, 1, 8, 6, 0, 0, 0, time.UTC))
	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	h := newMaterializer(repo, &capturingPublisher{}, clk)
	cmd := MaterializeSlotsCommand{
		StudentID: studentA.String(),
		Slots:     []schedule.Slot{slotFor(1, jan10)},
	}

	first, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.AlreadyExists)
}

func TestMaterializeSlots_SkipsInvalidSlot(t *testing.T) {
	repo := memory.NewProgressRepository()
	clk := clock.NewFake(time.Date(2024, 1, 8, 6, 0, 0, 0, time.UTC))
	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	bad := slotFor(1, jan10)
	bad.EndTime = schedule.TimeOfDay{Hour: 8, Minute: 0} // раньше начала

	h := newMaterializer(repo, &capturingPublisher{}, clk)
	result, err := h.Handle(context.Background(), MaterializeSlotsCommand{
		StudentID: studentA.String(),
		Slots:     []schedule.Slot{bad, slotFor(2, jan10)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedInvalid)
	assert.Equal(t, 1, result.Created)
}

func TestMaterializeSlots_TopicMissingEmitsEvent(t *testing.T) {
	repo := memory.NewProgressRepository()
	pub := &capturingPublisher{}
	clk := clock.NewFake(time.Date(2024, 1, 8, 6, 0, 0, 0, time.UTC))
	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	gap := slotFor(1, jan10)
	gap.LessonTopicID = ""

	h := newMaterializer(repo, pub, clk)
	result, err := h.Handle(context.Background(), MaterializeSlotsCommand{
		StudentID: studentA.String(),
		Slots:     []schedule.Slot{gap},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TopicMissing)
	assert.Equal(t, 0, result.Created)
	assert.Contains(t, pub.Types(), shared.EventTopicMissing)
}

func TestMaterializeSlots_ReplaceKeepsTerminalHistory(t *testing.T) {
	repo := memory.NewProgressRepository()
	clk := clock.NewFake(time.Date(2024, 1, 8, 6, 0, 0, 0, time.UTC))

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	jan12 := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)

	h := newMaterializer(repo, &capturingPublisher{}, clk)
	_, err := h.Handle(context.Background(), MaterializeSlotsCommand{
		StudentID: studentA.String(),
		Slots:     []schedule.Slot{slotFor(1, jan10), slotFor(2, jan12)},
	})
	require.NoError(t, err)

	// Период 1 завершён до перегенерации.
	rec1, err := repo.GetByKey(context.Background(), progress.Key{
		StudentID:      studentA,
		LessonTopicID:  topicMath,
		PeriodSequence: 1,
	})
	require.NoError(t, err)
	applied, err := repo.LinkSubmission(context.Background(), rec1.ID, subOne, jan10.Add(9*time.Hour), nil, clk.Now())
	require.NoError(t, err)
	require.True(t, applied)

	// Перегенерация недели: период 2 переносится на 11-е.
	jan11 := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)
	result, err := h.Handle(context.Background(), MaterializeSlotsCommand{
		StudentID: studentA.String(),
		Slots:     []schedule.Slot{slotFor(1, jan10), slotFor(2, jan11)},
		Replace:   true,
		From:      jan10,
		To:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// Открытая запись периода 2 удалена и создана заново.
	assert.Equal(t, int64(1), result.Removed)
	assert.Equal(t, 1, result.Created)
	// Завершённая запись периода 1 пережила перегенерацию.
	assert.Equal(t, 1, result.AlreadyExists)

	kept, err := repo.GetByID(context.Background(), rec1.ID)
	require.NoError(t, err)
	assert.True(t, kept.LinkedTo(subOne))

	moved, err := repo.GetByKey(context.Background(), progress.Key{
		StudentID:      studentA,
		LessonTopicID:  topicMath,
		PeriodSequence: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, jan11, moved.ScheduledDate)
}
