package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_TimeBased(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	rec := testRecord(t, 1, date)

	// Окно: 09:00-09:45, льготный период до 10:15.
	tests := []struct {
		name string
		now  time.Time
		want Status
	}{
		{"before window", date.Add(8 * time.Hour), StatusPending},
		{"window opens", rec.WindowStart, StatusAvailable},
		{"during lesson", date.Add(9*time.Hour + 20*time.Minute), StatusAvailable},
		{"in grace", date.Add(10 * time.Hour), StatusAvailable},
		{"exactly grace end", rec.GraceEnd, StatusAvailable},
		{"after grace", rec.GraceEnd.Add(time.Second), StatusMissed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(rec, tt.now))
		})
	}
}

func TestResolve_Precedence(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	inWindow := date.Add(9*time.Hour + 10*time.Minute)
	reason := ReasonMissedGracePeriod

	t.Run("incomplete reason wins over everything", func(t *testing.T) {
		rec := testRecord(t, 1, date)
		_, err := rec.Link(testSubmissionID, inWindow, nil, inWindow)
		require.NoError(t, err)
		// Рассинхронизация: и привязка, и причина пропуска.
		rec.IncompleteReason = &reason

		assert.Equal(t, StatusMissed, Resolve(rec, inWindow))
	})

	t.Run("completed with linked submission", func(t *testing.T) {
		rec := testRecord(t, 1, date)
		_, err := rec.Link(testSubmissionID, inWindow, nil, inWindow)
		require.NoError(t, err)

		// Завершение держится и внутри окна, и после льготного периода.
		assert.Equal(t, StatusCompleted, Resolve(rec, inWindow))
		assert.Equal(t, StatusCompleted, Resolve(rec, rec.GraceEnd.Add(time.Hour)))
	})

	t.Run("completion claim without submission resolves missed", func(t *testing.T) {
		rec := testRecord(t, 1, date)
		rec.Terminal = TerminalCompleted // привязки нет - данные недостоверны

		assert.Equal(t, StatusMissed, Resolve(rec, inWindow))
	})

	t.Run("completed_at without submission resolves missed", func(t *testing.T) {
		rec := testRecord(t, 1, date)
		completedAt := inWindow
		rec.CompletedAt = &completedAt

		assert.Equal(t, StatusMissed, Resolve(rec, inWindow))
	})
}

func TestResolve_Deterministic(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	rec := testRecord(t, 1, date)
	now := date.Add(9*time.Hour + 30*time.Minute)

	first := Resolve(rec, now)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Resolve(rec, now))
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusMissed.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusAvailable.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
}
