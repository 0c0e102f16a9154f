// Package schedule содержит типы расписания, внешние по отношению к движку
// отслеживания: слоты уроков, категории учеников и расчёт временных окон
// аттестации. Слоты принадлежат модулю расписания и здесь только читаются.
package schedule

import (
	"fmt"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT CATEGORY
// ══════════════════════════════════════════════════════════════════════════════

// StudentCategory определяет форму обучения ученика.
// От категории зависит окно доступности аттестации (см. Calculator).
type StudentCategory string

const (
	// CategorySchool - очное обучение: аттестация привязана ко времени урока.
	CategorySchool StudentCategory = "SCHOOL"

	// CategoryHome - домашнее обучение: аттестация доступна весь день урока.
	CategoryHome StudentCategory = "HOME"

	// CategoryAspirant - абитуриент: поведение как у SCHOOL.
	CategoryAspirant StudentCategory = "ASPIRANT"

	// CategoryIndividual - индивидуальный план: поведение как у SCHOOL.
	CategoryIndividual StudentCategory = "INDIVIDUAL"
)

// IsValid проверяет, что категория известна движку.
func (c StudentCategory) IsValid() bool {
	switch c {
	case CategorySchool, CategoryHome, CategoryAspirant, CategoryIndividual:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление категории.
func (c StudentCategory) String() string {
	return string(c)
}

// AllDayWindow сообщает, получает ли категория окно на весь день урока.
// Только HOME: домашние ученики не привязаны к живому уроку.
func (c StudentCategory) AllDayWindow() bool {
	return c == CategoryHome
}

// ══════════════════════════════════════════════════════════════════════════════
// TIME OF DAY
// ══════════════════════════════════════════════════════════════════════════════

// TimeOfDay - время суток без даты (начало и конец урока в расписании).
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay разбирает строку формата "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d", &t.Hour, &t.Minute); err != nil {
		return TimeOfDay{}, shared.WrapError("schedule", "ParseTimeOfDay", shared.ErrInvalidFormat, "expected HH:MM", err)
	}
	if !t.IsValid() {
		return TimeOfDay{}, shared.NewDomainError("schedule", "ParseTimeOfDay", shared.ErrInvalidInput, "time of day out of range")
	}
	return t, nil
}

// IsValid проверяет границы часов и минут.
func (t TimeOfDay) IsValid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

// Before сообщает, что t раньше other.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	if t.Hour != other.Hour {
		return t.Hour < other.Hour
	}
	return t.Minute < other.Minute
}

// On возвращает полный момент времени: время t в день date.
func (t TimeOfDay) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, 0, 0, date.Location())
}

// String возвращает представление "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE SLOT
// ══════════════════════════════════════════════════════════════════════════════

// Slot - назначение ученику периода урока по теме на конкретную дату.
// Слот неизменяем после создания; движок прогресса его не мутирует.
type Slot struct {
	// StudentID - идентификатор ученика.
	StudentID shared.StudentID

	// LessonTopicID - тема урока. Может быть пустым, если учитель ещё
	// не назначил тему на слот (см. событие TopicMissing).
	LessonTopicID shared.LessonTopicID

	// SubjectID - предмет.
	SubjectID shared.SubjectID

	// SubjectName - название предмета (для уведомлений).
	SubjectName string

	// PeriodSequence - порядковый номер периода внутри темы (с 1).
	PeriodSequence int

	// TotalPeriodsInSequence - сколько всего периодов у темы.
	TotalPeriodsInSequence int

	// ScheduledDate - дата урока (полночь, без времени).
	ScheduledDate time.Time

	// StartTime - время начала урока.
	StartTime TimeOfDay

	// EndTime - время конца урока.
	EndTime TimeOfDay

	// Category - категория ученика на момент генерации расписания.
	Category StudentCategory
}

// Validate проверяет согласованность слота.
// Слот с EndTime раньше StartTime порождает ErrInvalidSchedule:
// такой слот пропускается и логируется, окно считается недоступным.
func (s Slot) Validate() error {
	if s.StudentID.IsEmpty() {
		return shared.NewDomainError("schedule", "Validate", shared.ErrEmptyValue, "student ID is required")
	}
	if s.PeriodSequence < 1 {
		return shared.NewDomainError("schedule", "Validate", shared.ErrInvalidInput, "period sequence must start at 1")
	}
	if s.TotalPeriodsInSequence < s.PeriodSequence {
		return shared.NewDomainError("schedule", "Validate", shared.ErrInvalidInput, "total periods less than period sequence")
	}
	if s.ScheduledDate.IsZero() {
		return shared.NewDomainError("schedule", "Validate", shared.ErrEmptyValue, "scheduled date is required")
	}
	if !s.StartTime.IsValid() || !s.EndTime.IsValid() {
		return ErrInvalidSchedule
	}
	if s.EndTime.Before(s.StartTime) {
		return ErrInvalidSchedule
	}
	if !s.Category.IsValid() {
		return shared.NewDomainError("schedule", "Validate", shared.ErrInvalidInput, "unknown student category")
	}
	return nil
}

// HasTopic сообщает, назначена ли слоту тема урока.
func (s Slot) HasTopic() bool {
	return !s.LessonTopicID.IsEmpty()
}

// Day возвращает дату слота, усечённую до полуночи.
func (s Slot) Day() time.Time {
	y, m, d := s.ScheduledDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.ScheduledDate.Location())
}
