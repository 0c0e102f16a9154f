package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

const (
	testStudentID = shared.StudentID("5f1c9d2a-3b4e-4c5d-8e9f-0a1b2c3d4e5f")
	testTopicID   = shared.LessonTopicID("7a2b3c4d-5e6f-4a8b-9c0d-1e2f3a4b5c6d")
	testSubjectID = shared.SubjectID("9c0d1e2f-3a4b-4c6d-8e0f-2a3b4c5d6e7f")
)

func testSlot(category StudentCategory) Slot {
	return Slot{
		StudentID:              testStudentID,
		LessonTopicID:          testTopicID,
		SubjectID:              testSubjectID,
		SubjectName:            "Mathematics",
		PeriodSequence:         1,
		TotalPeriodsInSequence: 3,
		ScheduledDate:          time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		StartTime:              TimeOfDay{Hour: 9, Minute: 0},
		EndTime:                TimeOfDay{Hour: 9, Minute: 45},
		Category:               category,
	}
}

func TestCalculator_Compute_School(t *testing.T) {
	calc := NewCalculator(30 * time.Minute)

	w, err := calc.Compute(testSlot(CategorySchool))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), w.WindowStart)
	assert.Equal(t, time.Date(2024, 1, 15, 9, 45, 0, 0, time.UTC), w.WindowEnd)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 15, 0, 0, time.UTC), w.GraceEnd)
	assert.NoError(t, w.Validate())
}

func TestCalculator_Compute_Home_CoversWholeDay(t *testing.T) {
	calc := NewCalculator(30 * time.Minute)

	w, err := calc.Compute(testSlot(CategoryHome))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), w.WindowStart)
	assert.Equal(t, time.Date(2024, 1, 15, 23, 59, 59, 0, time.UTC), w.WindowEnd)
	// Лекционное время сохраняется для проекций даже при окне на весь день.
	assert.Equal(t, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), w.LessonStart)
}

func TestCalculator_Compute_AspirantAndIndividual_BehaveAsSchool(t *testing.T) {
	calc := NewCalculator(30 * time.Minute)

	school, err := calc.Compute(testSlot(CategorySchool))
	require.NoError(t, err)

	for _, category := range []StudentCategory{CategoryAspirant, CategoryIndividual} {
		w, err := calc.Compute(testSlot(category))
		require.NoError(t, err)
		assert.Equal(t, school.WindowStart, w.WindowStart, category)
		assert.Equal(t, school.WindowEnd, w.WindowEnd, category)
		assert.Equal(t, school.GraceEnd, w.GraceEnd, category)
	}
}

func TestCalculator_Compute_InvalidSlot(t *testing.T) {
	calc := NewCalculator(30 * time.Minute)

	slot := testSlot(CategorySchool)
	slot.StartTime = TimeOfDay{Hour: 10, Minute: 0}
	slot.EndTime = TimeOfDay{Hour: 9, Minute: 0}

	_, err := calc.Compute(slot)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestNewCalculator_NonPositiveGraceFallsBackToDefault(t *testing.T) {
	assert.Equal(t, DefaultGracePeriod, NewCalculator(0).GracePeriod())
	assert.Equal(t, DefaultGracePeriod, NewCalculator(-time.Minute).GracePeriod())
	assert.Equal(t, 2*time.Hour, NewCalculator(2*time.Hour).GracePeriod())
}

func TestTimeWindow_SchoolGraceBoundary(t *testing.T) {
	calc := NewCalculator(30 * time.Minute)
	w, err := calc.Compute(testSlot(CategorySchool))
	require.NoError(t, err)

	graceEnd := w.GraceEnd

	tests := []struct {
		name       string
		now        time.Time
		accessible bool
		inGrace    bool
		expired    bool
	}{
		{"before window opens", w.WindowStart.Add(-time.Second), false, false, false},
		{"window opens", w.WindowStart, true, false, false},
		{"during lesson", w.WindowStart.Add(20 * time.Minute), true, false, false},
		{"one second before grace ends", graceEnd.Add(-time.Second), true, true, false},
		{"exactly grace end", graceEnd, true, false, false},
		{"one second after grace ends", graceEnd.Add(time.Second), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.accessible, w.IsAccessible(tt.now), "IsAccessible")
			assert.Equal(t, tt.inGrace, w.InGrace(tt.now), "InGrace")
			assert.Equal(t, tt.expired, w.GraceExpired(tt.now), "GraceExpired")
		})
	}
}

func TestTimeWindow_HomeDayBoundary(t *testing.T) {
	calc := NewCalculator(30 * time.Minute)
	w, err := calc.Compute(testSlot(CategoryHome))
	require.NoError(t, err)

	// 23:58 того же дня - окно ещё открыто.
	assert.True(t, w.IsAccessible(time.Date(2024, 1, 15, 23, 58, 0, 0, time.UTC)))
	// 00:01 следующего дня - только льготный период.
	next := time.Date(2024, 1, 16, 0, 1, 0, 0, time.UTC)
	assert.True(t, w.IsAccessible(next))
	assert.True(t, w.InGrace(next))
	// После конца льготного периода доступ закрыт.
	assert.False(t, w.IsAccessible(time.Date(2024, 1, 16, 0, 30, 0, 0, time.UTC)))
}

func TestTimeWindow_Minutes(t *testing.T) {
	calc := NewCalculator(30 * time.Minute)
	w, err := calc.Compute(testSlot(CategorySchool))
	require.NoError(t, err)

	assert.Equal(t, int64(60), w.MinutesUntilOpen(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(0), w.MinutesUntilOpen(w.WindowStart))
	assert.Equal(t, int64(45), w.MinutesRemaining(w.WindowStart))
	assert.Equal(t, int64(0), w.MinutesRemaining(w.WindowEnd.Add(time.Minute)))
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:45")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 9, Minute: 45}, tod)
	assert.Equal(t, "09:45", tod.String())

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)

	_, err = ParseTimeOfDay("garbage")
	assert.Error(t, err)
}

func TestSlot_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Slot)
		ok     bool
	}{
		{"valid", func(s *Slot) {}, true},
		{"missing student", func(s *Slot) { s.StudentID = "" }, false},
		{"zero period sequence", func(s *Slot) { s.PeriodSequence = 0 }, false},
		{"total less than sequence", func(s *Slot) { s.TotalPeriodsInSequence = 0 }, false},
		{"zero date", func(s *Slot) { s.ScheduledDate = time.Time{} }, false},
		{"end before start", func(s *Slot) { s.EndTime = TimeOfDay{Hour: 8, Minute: 0} }, false},
		{"unknown category", func(s *Slot) { s.Category = "EXTERNAL" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot := testSlot(CategorySchool)
			tt.mutate(&slot)
			err := slot.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
