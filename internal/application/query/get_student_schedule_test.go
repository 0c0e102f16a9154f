package query

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

const (
	studentA    = shared.StudentID("5f1c9d2a-3b4e-4c5d-8e9f-0a1b2c3d4e5f")
	topicMath   = shared.LessonTopicID("7a2b3c4d-5e6f-4a8b-9c0d-1e2f3a4b5c6d")
	subjectMath = shared.SubjectID("9c0d1e2f-3a4b-4c6d-8e0f-2a3b4c5d6e7f")
	subOne      = shared.SubmissionID("1b2c3d4e-5f6a-4b8c-9d0e-1f2a3b4c5d6e")
)

func seedRecord(t *testing.T, repo *memory.ProgressRepository, periodSeq int, date time.Time) *progress.Record {
	t.Helper()

	slot := schedule.Slot{
		StudentID:              studentA,
		LessonTopicID:          topicMath,
		SubjectID:              subjectMath,
		SubjectName:            "Mathematics",
		PeriodSequence:         periodSeq,
		TotalPeriodsInSequence: 2,
		ScheduledDate:          date,
		StartTime:              schedule.TimeOfDay{Hour: 9, Minute: 0},
		EndTime:                schedule.TimeOfDay{Hour: 9, Minute: 45},
		Category:               schedule.CategorySchool,
	}
	window, err := schedule.NewCalculator(30 * time.Minute).Compute(slot)
	require.NoError(t, err)

	rec := progress.NewRecord(slot, window, date)
	require.NoError(t, repo.Create(context.Background(), rec))
	return rec
}

func TestGetStudentSchedule_StatusesAndLocking(t *testing.T) {
	repo := memory.NewProgressRepository()
	source := memory.NewSubmissionSource()

	// Понедельник и среда одной ISO-недели.
	monday := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	wednesday := time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC)
	seedRecord(t, repo, 1, monday)
	seedRecord(t, repo, 2, wednesday)

	// Вторник: окно периода 1 уже истекло, но свип ещё не прошёл.
	clk := clock.NewFake(time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC))

	h := NewGetStudentScheduleHandler(repo, source, nil, clk, logger.Default())

	dto, err := h.Handle(context.Background(), GetStudentScheduleQuery{StudentID: studentA.String()})
	require.NoError(t, err)
	require.Len(t, dto.Items, 2)

	first, second := dto.Items[0], dto.Items[1]

	// Период 1: льготный период истёк - MISSED уже на чтении.
	assert.Equal(t, progress.StatusMissed.String(), first.Status)
	assert.False(t, first.CanAccess)

	// Период 2 заблокирован незавершённым периодом 1.
	assert.Equal(t, ViewStatusLocked, second.Status)
	assert.False(t, second.CanAccess)
	assert.Equal(t, string(progress.BlockPreviousIncomplete), second.BlockReason)
}

func TestGetStudentSchedule_WaitingTeacher(t *testing.T) {
	repo := memory.NewProgressRepository()
	source := memory.NewSubmissionSource()

	monday := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	wednesday := time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC)
	rec1 := seedRecord(t, repo, 1, monday)
	seedRecord(t, repo, 2, wednesday)

	clk := clock.NewFake(wednesday.Add(9*time.Hour + 10*time.Minute))

	// Период 1 завершён, но аттестация периода 2 не выпущена.
	applied, err := repo.LinkSubmission(context.Background(), rec1.ID, subOne, monday.Add(9*time.Hour+20*time.Minute), nil, clk.Now())
	require.NoError(t, err)
	require.True(t, applied)

	h := NewGetStudentScheduleHandler(repo, source, nil, clk, logger.Default())

	dto, err := h.Handle(context.Background(), GetStudentScheduleQuery{StudentID: studentA.String()})
	require.NoError(t, err)
	require.Len(t, dto.Items, 2)

	assert.Equal(t, progress.StatusCompleted.String(), dto.Items[0].Status)
	assert.Equal(t, ViewStatusWaitingAssessment, dto.Items[1].Status)

	// Учитель выпускает аттестацию - период открывается.
	source.SetFollowUp(topicMath, 2, true)
	dto, err = h.Handle(context.Background(), GetStudentScheduleQuery{StudentID: studentA.String()})
	require.NoError(t, err)
	assert.Equal(t, progress.StatusAvailable.String(), dto.Items[1].Status)
	assert.True(t, dto.Items[1].CanAccess)
}

func TestGetStudentSchedule_DefaultRangeIsCurrentWeek(t *testing.T) {
	repo := memory.NewProgressRepository()
	source := memory.NewSubmissionSource()

	// Прошлая неделя и текущая.
	prevWeek := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	thisWeek := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	seedRecord(t, repo, 1, prevWeek)
	seedRecord(t, repo, 2, thisWeek)

	clk := clock.NewFake(time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC))

	h := NewGetStudentScheduleHandler(repo, source, nil, clk, logger.Default())

	dto, err := h.Handle(context.Background(), GetStudentScheduleQuery{StudentID: studentA.String()})
	require.NoError(t, err)
	require.Len(t, dto.Items, 1)
	assert.Equal(t, thisWeek, dto.Items[0].ScheduledDate)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), dto.From)
}
