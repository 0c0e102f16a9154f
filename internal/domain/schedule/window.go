package schedule

import (
	"errors"
	"time"
)

// ErrInvalidSchedule - слот расписания с некорректными временами урока.
var ErrInvalidSchedule = errors.New("invalid schedule slot times")

// ══════════════════════════════════════════════════════════════════════════════
// TIME WINDOW
// Временное окно аттестации - чистый value object. Все запросы к окну -
// тотальные функции от (окно, now), без побочных эффектов.
// ══════════════════════════════════════════════════════════════════════════════

// TimeWindow описывает границы доступности аттестации для одного периода.
// Инвариант: WindowStart ≤ WindowEnd ≤ GraceEnd.
type TimeWindow struct {
	// LessonDate - дата урока (полночь).
	LessonDate time.Time

	// LessonStart - точное время начала урока.
	LessonStart time.Time

	// LessonEnd - точное время конца урока.
	LessonEnd time.Time

	// WindowStart - когда аттестация открывается.
	// SCHOOL: начало урока; HOME: 00:00:00 даты урока.
	WindowStart time.Time

	// WindowEnd - когда аттестация закрывается.
	// SCHOOL: конец урока; HOME: 23:59:59 даты урока.
	WindowEnd time.Time

	// GraceEnd - конец льготного периода после закрытия окна.
	GraceEnd time.Time

	// Category - категория ученика, по которой рассчитано окно.
	Category StudentCategory
}

// IsAccessible сообщает, открыта ли аттестация в момент now.
// Льготный период входит в доступность: поздняя сдача до GraceEnd принимается.
func (w TimeWindow) IsAccessible(now time.Time) bool {
	return !now.Before(w.WindowStart) && !now.After(w.GraceEnd)
}

// InGrace сообщает, идёт ли сейчас льготный период.
func (w TimeWindow) InGrace(now time.Time) bool {
	return now.After(w.WindowEnd) && now.Before(w.GraceEnd)
}

// GraceExpired сообщает, истёк ли льготный период.
func (w TimeWindow) GraceExpired(now time.Time) bool {
	return now.After(w.GraceEnd)
}

// MinutesUntilOpen возвращает минуты до открытия окна (0, если уже открыто).
func (w TimeWindow) MinutesUntilOpen(now time.Time) int64 {
	if now.Before(w.WindowStart) {
		return int64(w.WindowStart.Sub(now) / time.Minute)
	}
	return 0
}

// MinutesRemaining возвращает минуты до закрытия окна
// (0 вне окна; льготный период не учитывается).
func (w TimeWindow) MinutesRemaining(now time.Time) int64 {
	if now.Before(w.WindowStart) || now.After(w.WindowEnd) {
		return 0
	}
	return int64(w.WindowEnd.Sub(now) / time.Minute)
}

// Validate проверяет инвариант упорядоченности границ.
func (w TimeWindow) Validate() error {
	if w.WindowEnd.Before(w.WindowStart) || w.GraceEnd.Before(w.WindowEnd) {
		return ErrInvalidSchedule
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// DefaultGracePeriod - каноническая длительность льготного периода.
// Одно авторитетное значение, настраивается через конфигурацию.
const DefaultGracePeriod = 30 * time.Minute

// Calculator рассчитывает окна аттестации по слотам расписания.
type Calculator struct {
	grace time.Duration
}

// NewCalculator создаёт калькулятор с заданным льготным периодом.
// Неположительное значение заменяется на DefaultGracePeriod.
func NewCalculator(grace time.Duration) Calculator {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return Calculator{grace: grace}
}

// GracePeriod возвращает настроенную длительность льготного периода.
func (c Calculator) GracePeriod() time.Duration {
	return c.grace
}

// Compute строит TimeWindow для слота.
// Возвращает ErrInvalidSchedule, если конец урока раньше начала.
//
// SCHOOL (а также ASPIRANT и INDIVIDUAL): окно совпадает со временем урока.
// HOME: окно покрывает весь день урока - домашние ученики не привязаны
// к живому занятию.
func (c Calculator) Compute(slot Slot) (TimeWindow, error) {
	if err := slot.Validate(); err != nil {
		return TimeWindow{}, err
	}

	day := slot.Day()
	lessonStart := slot.StartTime.On(day)
	lessonEnd := slot.EndTime.On(day)

	var windowStart, windowEnd time.Time
	if slot.Category.AllDayWindow() {
		windowStart = day
		windowEnd = day.Add(24*time.Hour - time.Second) // 23:59:59
	} else {
		windowStart = lessonStart
		windowEnd = lessonEnd
	}

	w := TimeWindow{
		LessonDate:  day,
		LessonStart: lessonStart,
		LessonEnd:   lessonEnd,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		GraceEnd:    windowEnd.Add(c.grace),
		Category:    slot.Category,
	}

	if err := w.Validate(); err != nil {
		return TimeWindow{}, err
	}

	return w, nil
}
