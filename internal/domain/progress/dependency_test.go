package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanAccess_FirstPeriodAlwaysAllowed(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	rec := testRecord(t, 1, date)

	decision := CanAccess(rec, nil, false, date)
	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.BlockReason)
}

func TestCanAccess_PreviousIncomplete(t *testing.T) {
	monday := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	wednesday := monday.AddDate(0, 0, 2)

	prev := testRecord(t, 1, monday)
	rec := testRecord(t, 2, wednesday)
	now := wednesday.Add(9 * time.Hour)

	decision := CanAccess(rec, []*Record{prev, rec}, true, now)
	require.False(t, decision.Allowed)
	assert.Equal(t, BlockPreviousIncomplete, decision.BlockReason)
	assert.Equal(t, 1, decision.BlockingPeriod)
}

func TestCanAccess_UnlocksAfterCompletionAndFollowUp(t *testing.T) {
	monday := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	wednesday := monday.AddDate(0, 0, 2)
	now := wednesday.Add(9 * time.Hour)

	prev := testRecord(t, 1, monday)
	_, err := prev.Link(testSubmissionID, monday.Add(9*time.Hour+30*time.Minute), nil, monday.Add(9*time.Hour+30*time.Minute))
	require.NoError(t, err)

	rec := testRecord(t, 2, wednesday)
	siblings := []*Record{prev, rec}

	// Предыдущий завершён, но учитель ещё не выпустил аттестацию.
	decision := CanAccess(rec, siblings, false, now)
	require.False(t, decision.Allowed)
	assert.Equal(t, BlockWaitingTeacher, decision.BlockReason)
	assert.Equal(t, 2, decision.BlockingPeriod)

	// Аттестация выпущена - период открыт.
	decision = CanAccess(rec, siblings, true, now)
	assert.True(t, decision.Allowed)
}

func TestCanAccess_MissedPreviousBlocks(t *testing.T) {
	monday := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	wednesday := monday.AddDate(0, 0, 2)
	now := wednesday.Add(9 * time.Hour)

	prev := testRecord(t, 1, monday)
	_, err := prev.MarkMissed(ReasonMissedGracePeriod, monday.Add(12*time.Hour))
	require.NoError(t, err)

	rec := testRecord(t, 2, wednesday)

	decision := CanAccess(rec, []*Record{prev, rec}, true, now)
	require.False(t, decision.Allowed)
	assert.Equal(t, BlockPreviousIncomplete, decision.BlockReason)
}

func TestCanAccess_WeekBoundaryResetsChain(t *testing.T) {
	// Период 1 в пятницу, период 2 в понедельник следующей ISO-недели.
	friday := time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC)
	nextMonday := time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)
	now := nextMonday.Add(9 * time.Hour)

	prev := testRecord(t, 1, friday) // не завершён
	rec := testRecord(t, 2, nextMonday)

	decision := CanAccess(rec, []*Record{prev, rec}, false, now)
	assert.True(t, decision.Allowed, "недельная граница сбрасывает зависимость")
}

func TestCanAccess_MissingPreviousRecordAllowed(t *testing.T) {
	date := time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC)
	rec := testRecord(t, 2, date)

	decision := CanAccess(rec, []*Record{rec}, false, date)
	assert.True(t, decision.Allowed)
}

func TestSameISOWeek(t *testing.T) {
	monday := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC)
	nextMonday := time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)

	assert.True(t, sameISOWeek(monday, sunday))
	assert.False(t, sameISOWeek(sunday, nextMonday))

	// Граница ISO-года: 2024-12-30 (пн) и 2025-01-03 (пт) - одна неделя.
	assert.True(t, sameISOWeek(
		time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
	))
}

func TestSortBySequence(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	records := []*Record{
		testRecord(t, 3, date),
		testRecord(t, 1, date),
		testRecord(t, 2, date),
	}

	SortBySequence(records)

	assert.Equal(t, 1, records[0].PeriodSequence)
	assert.Equal(t, 2, records[1].PeriodSequence)
	assert.Equal(t, 3, records[2].PeriodSequence)
}
