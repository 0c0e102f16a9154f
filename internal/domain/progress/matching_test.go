package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNearestOpen_PicksClosestDate(t *testing.T) {
	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	jan17 := time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC)

	recA := testRecord(t, 1, jan10)
	recB := testRecord(t, 2, jan17)
	records := []*Record{recA, recB}

	// Сдача 11 января ближе к 10-му.
	res := NearestOpen(records, time.Date(2024, 1, 11, 15, 0, 0, 0, time.UTC))
	require.NotNil(t, res.Record)
	assert.Equal(t, recA.ID, res.Record.ID)
	assert.False(t, res.Ambiguous)
	assert.Equal(t, 2, res.Candidates)

	// Сдача 16 января ближе к 17-му.
	res = NearestOpen(records, time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC))
	require.NotNil(t, res.Record)
	assert.Equal(t, recB.ID, res.Record.ID)
}

func TestNearestOpen_EquidistantTieBreaksLowestPeriod(t *testing.T) {
	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	jan14 := time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)

	rec2 := testRecord(t, 2, jan10)
	rec1 := testRecord(t, 1, jan14)

	// 12 января ровно посередине: побеждает меньший номер периода,
	// независимо от того, с какой стороны от сдачи лежит дата урока.
	res := NearestOpen([]*Record{rec2, rec1}, time.Date(2024, 1, 12, 12, 0, 0, 0, time.UTC))
	require.NotNil(t, res.Record)
	assert.Equal(t, rec1.ID, res.Record.ID)
	assert.Equal(t, 1, res.Record.PeriodSequence)
	assert.True(t, res.Ambiguous, "равное удаление - неоднозначность, подлежащая аудиту")
}

func TestNearestOpen_SameDateTieBreaksLowestPeriod(t *testing.T) {
	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	rec2 := testRecord(t, 2, jan10)
	rec1 := testRecord(t, 1, jan10)

	res := NearestOpen([]*Record{rec2, rec1}, jan10.Add(10*time.Hour))
	require.NotNil(t, res.Record)
	assert.Equal(t, 1, res.Record.PeriodSequence)
	assert.True(t, res.Ambiguous, "две записи на одну дату - неоднозначность")
}

func TestNearestOpen_SkipsTerminalRecords(t *testing.T) {
	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	jan17 := time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC)

	linked := testRecord(t, 1, jan10)
	_, err := linked.Link(testSubmissionID, jan10.Add(9*time.Hour), nil, jan10.Add(9*time.Hour))
	require.NoError(t, err)

	open := testRecord(t, 2, jan17)

	// Завершённая запись не участвует, даже если её дата ближе.
	res := NearestOpen([]*Record{linked, open}, jan10.Add(12*time.Hour))
	require.NotNil(t, res.Record)
	assert.Equal(t, open.ID, res.Record.ID)
	assert.Equal(t, 1, res.Candidates)
}

func TestNearestOpen_NoCandidates(t *testing.T) {
	res := NearestOpen(nil, time.Now())
	assert.Nil(t, res.Record)
	assert.Zero(t, res.Candidates)

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	missed := testRecord(t, 1, jan10)
	_, err := missed.MarkMissed(ReasonMissedGracePeriod, jan10.Add(12*time.Hour))
	require.NoError(t, err)

	res = NearestOpen([]*Record{missed}, jan10)
	assert.Nil(t, res.Record)
}
