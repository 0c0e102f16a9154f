package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"every minute", "* * * * *", false},
		{"every 15 minutes", CronEvery15Minutes, false},
		{"nightly", CronNightly, false},
		{"weekly monday", CronWeeklyMonday, false},
		{"list and range", "0,30 9-17 * * 1-5", false},
		{"too few fields", "* * * *", true},
		{"bad minute", "61 * * * *", true},
		{"bad step", "*/0 * * * *", true},
		{"garbage", "foo * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCron(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCronSchedule_Next(t *testing.T) {
	// 2024-01-15 is a Monday.
	monday := time.Date(2024, 1, 15, 10, 20, 30, 0, time.UTC)

	nightly := MustParseCron(CronNightly)
	assert.Equal(t,
		time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC),
		nightly.Next(monday),
	)

	every15 := MustParseCron(CronEvery15Minutes)
	assert.Equal(t,
		time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		every15.Next(monday),
	)

	// A weekly schedule lands on the next Monday midnight.
	weekly := MustParseCron(CronWeeklyMonday)
	assert.Equal(t,
		time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC),
		weekly.Next(monday),
	)

	// Next never returns the current minute, even on an exact match.
	exact := time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC)
	assert.Equal(t,
		time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC),
		nightly.Next(exact),
	)
}

func TestIntervalSchedule(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	s := NewIntervalSchedule(5 * time.Minute)
	assert.Equal(t, now.Add(5*time.Minute), s.Next(now))
	assert.Equal(t, "@every 5m0s", s.String())

	jittered := NewJitteredIntervalSchedule(5*time.Minute, 30*time.Second)
	next := jittered.Next(now)
	require.True(t, !next.Before(now.Add(5*time.Minute)))
	require.True(t, next.Before(now.Add(5*time.Minute+30*time.Second)))
}
