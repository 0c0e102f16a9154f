package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduhub/assessment-engine/internal/domain/schedule"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

const (
	testStudentID    = shared.StudentID("5f1c9d2a-3b4e-4c5d-8e9f-0a1b2c3d4e5f")
	testTopicID      = shared.LessonTopicID("7a2b3c4d-5e6f-4a8b-9c0d-1e2f3a4b5c6d")
	testSubjectID    = shared.SubjectID("9c0d1e2f-3a4b-4c6d-8e0f-2a3b4c5d6e7f")
	testSubmissionID = shared.SubmissionID("1b2c3d4e-5f6a-4b8c-9d0e-1f2a3b4c5d6e")
	otherSubmission  = shared.SubmissionID("2c3d4e5f-6a7b-4c8d-9e0f-2a3b4c5d6e7f")
)

func testRecord(t *testing.T, periodSeq int, date time.Time) *Record {
	t.Helper()

	slot := schedule.Slot{
		StudentID:              testStudentID,
		LessonTopicID:          testTopicID,
		SubjectID:              testSubjectID,
		SubjectName:            "Mathematics",
		PeriodSequence:         periodSeq,
		TotalPeriodsInSequence: 3,
		ScheduledDate:          date,
		StartTime:              schedule.TimeOfDay{Hour: 9, Minute: 0},
		EndTime:                schedule.TimeOfDay{Hour: 9, Minute: 45},
		Category:               schedule.CategorySchool,
	}

	window, err := schedule.NewCalculator(30 * time.Minute).Compute(slot)
	require.NoError(t, err)

	return NewRecord(slot, window, date.Add(8*time.Hour))
}

func TestNewRecord(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	rec := testRecord(t, 1, date)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, TerminalNone, rec.Terminal)
	assert.True(t, rec.Open())
	assert.False(t, rec.Completed())
	assert.False(t, rec.Missed())
	assert.Equal(t, date, rec.ScheduledDate)
	assert.Equal(t, Key{testStudentID, testTopicID, 1}, rec.Key())
	assert.NoError(t, rec.Window().Validate())
}

func TestRecord_Link(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	now := date.Add(9*time.Hour + 30*time.Minute)
	submittedAt := date.Add(9*time.Hour + 20*time.Minute)
	score, err := shared.NewScore(87.5)
	require.NoError(t, err)

	rec := testRecord(t, 1, date)

	event, err := rec.Link(testSubmissionID, submittedAt, &score, now)
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, TerminalCompleted, rec.Terminal)
	assert.True(t, rec.Completed())
	assert.True(t, rec.LinkedTo(testSubmissionID))
	require.NotNil(t, rec.CompletedAt)
	// CompletedAt - момент сдачи, не момент привязки.
	assert.Equal(t, submittedAt, *rec.CompletedAt)

	assert.Equal(t, shared.EventSubmissionLinked, event.EventType())
	assert.Equal(t, rec.ID, event.AggregateID())
	assert.Equal(t, testSubmissionID, event.SubmissionID)
	assert.Equal(t, 87.5, event.Payload()["score"])
}

func TestRecord_Link_Idempotent(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	now := date.Add(10 * time.Hour)
	rec := testRecord(t, 1, date)

	_, err := rec.Link(testSubmissionID, now, nil, now)
	require.NoError(t, err)

	// Повтор той же сдачи - идемпотентный no-op.
	_, err = rec.Link(testSubmissionID, now, nil, now)
	assert.ErrorIs(t, err, ErrAlreadyLinked)
	assert.True(t, rec.LinkedTo(testSubmissionID))

	// Другая сдача никогда не перезаписывает привязку.
	_, err = rec.Link(otherSubmission, now, nil, now)
	assert.ErrorIs(t, err, ErrLinkConflict)
	assert.True(t, rec.LinkedTo(testSubmissionID))
}

func TestRecord_Link_AfterMissedRejected(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	now := date.Add(12 * time.Hour)
	rec := testRecord(t, 1, date)

	_, err := rec.MarkMissed(ReasonMissedGracePeriod, now)
	require.NoError(t, err)

	_, err = rec.Link(testSubmissionID, now, nil, now)
	assert.ErrorIs(t, err, ErrAlreadyMissed)
	assert.True(t, rec.Missed())
	assert.Nil(t, rec.LinkedSubmissionID)
}

func TestRecord_MarkMissed(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	now := date.Add(12 * time.Hour)
	rec := testRecord(t, 2, date)

	event, err := rec.MarkMissed(ReasonMissedGracePeriod, now)
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, TerminalMissed, rec.Terminal)
	require.NotNil(t, rec.IncompleteReason)
	assert.Equal(t, ReasonMissedGracePeriod, *rec.IncompleteReason)
	require.NotNil(t, rec.AutoMarkedIncompleteAt)
	assert.Equal(t, now, *rec.AutoMarkedIncompleteAt)
	// Пометка пропуска не выставляет CompletedAt.
	assert.Nil(t, rec.CompletedAt)

	assert.Equal(t, shared.EventAssessmentExpired, event.EventType())
	assert.Equal(t, "Mathematics", event.SubjectName)
	assert.Equal(t, 2, event.PeriodSequence)
	assert.Equal(t, rec.GraceEnd, event.GraceDeadline)
}

func TestRecord_MarkMissed_Idempotent(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	now := date.Add(12 * time.Hour)
	rec := testRecord(t, 1, date)

	_, err := rec.MarkMissed(ReasonMissedGracePeriod, now)
	require.NoError(t, err)

	_, err = rec.MarkMissed(ReasonMissedGracePeriod, now.Add(15*time.Minute))
	assert.ErrorIs(t, err, ErrAlreadyMissed)
}

func TestRecord_MarkMissed_AfterCompletedRejected(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	now := date.Add(10 * time.Hour)
	rec := testRecord(t, 1, date)

	_, err := rec.Link(testSubmissionID, now, nil, now)
	require.NoError(t, err)

	_, err = rec.MarkMissed(ReasonMissedGracePeriod, now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.True(t, rec.Completed())
}
