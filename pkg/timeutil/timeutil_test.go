package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfISOWeek(t *testing.T) {
	// Wednesday maps back to the Monday of the same week.
	assert.Equal(t,
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		StartOfISOWeek(time.Date(2024, 1, 17, 18, 30, 0, 0, time.UTC)),
	)
	// Sunday belongs to the week that started the previous Monday.
	assert.Equal(t,
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		StartOfISOWeek(time.Date(2024, 1, 21, 2, 0, 0, 0, time.UTC)),
	)
	// Monday midnight stays put.
	assert.Equal(t,
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		StartOfISOWeek(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)),
	)
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDate("01.03.2024")
	assert.Error(t, err)
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 1, 15, 23, 50, 0, 0, time.UTC)
	b := time.Date(2024, 1, 17, 0, 10, 0, 0, time.UTC)

	// Partial days count as whole calendar days.
	assert.Equal(t, 2, DaysBetween(a, b))
	// Order does not matter.
	assert.Equal(t, 2, DaysBetween(b, a))
	// Same day is zero.
	assert.Equal(t, 0, DaysBetween(a, a))
}

func TestSameDay(t *testing.T) {
	assert.True(t, SameDay(
		time.Date(2024, 1, 15, 0, 1, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC),
	))
	assert.False(t, SameDay(
		time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC),
		time.Date(2024, 1, 16, 0, 1, 0, 0, time.UTC),
	))
}
