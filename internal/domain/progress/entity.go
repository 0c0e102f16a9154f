// Package progress реализует ядро движка отслеживания аттестаций:
// записи прогресса ученика по периодам урока, переходы их состояний,
// вывод статуса на чтении и разблокировку многопериодных тем.
package progress

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/eduhub/assessment-engine/internal/domain/schedule"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrRecordNotFound - запись прогресса не найдена.
	ErrRecordNotFound = errors.New("progress record not found")

	// ErrRecordAlreadyExists - запись с таким ключом уже существует.
	ErrRecordAlreadyExists = errors.New("progress record already exists")

	// ErrAlreadyLinked - запись уже привязана к этой же сдаче (идемпотентный повтор).
	ErrAlreadyLinked = errors.New("progress record already linked to this submission")

	// ErrLinkConflict - запись уже привязана к другой сдаче.
	// Существующая привязка никогда не перезаписывается.
	ErrLinkConflict = errors.New("progress record linked to a different submission")

	// ErrAlreadyMissed - запись уже терминально помечена пропущенной.
	ErrAlreadyMissed = errors.New("progress record already marked missed")

	// ErrAlreadyCompleted - запись уже терминально завершена.
	ErrAlreadyCompleted = errors.New("progress record already completed")
)

// ══════════════════════════════════════════════════════════════════════════════
// TERMINAL STATE
// Явное терминальное состояние вместо перегруженного булевого флага
// "completed": выставляется ровно один раз в момент перехода.
// ══════════════════════════════════════════════════════════════════════════════

// Terminal - терминальное состояние записи прогресса.
type Terminal string

const (
	// TerminalNone - запись ещё не обработана: окно открыто или ждёт развязки.
	TerminalNone Terminal = "NONE"

	// TerminalCompleted - сдача привязана, период успешно завершён.
	TerminalCompleted Terminal = "COMPLETED"

	// TerminalMissed - льготный период истёк без сдачи, период пропущен.
	TerminalMissed Terminal = "MISSED"
)

// IsValid проверяет, что значение известно.
func (t Terminal) IsValid() bool {
	switch t {
	case TerminalNone, TerminalCompleted, TerminalMissed:
		return true
	default:
		return false
	}
}

// IncompleteReason - код причины, по которой период помечен пропущенным.
type IncompleteReason string

const (
	// ReasonMissedGracePeriod - льготный период истёк без привязанной сдачи.
	ReasonMissedGracePeriod IncompleteReason = "MISSED_GRACE_PERIOD"

	// ReasonManuallyExpired - административное закрытие периода.
	ReasonManuallyExpired IncompleteReason = "MANUALLY_EXPIRED"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS RECORD
// Одна запись на (ученик, тема, порядковый номер периода). Создаётся при
// материализации слота расписания; мутируется только привязкой сдачи или
// пометкой пропуска. Оба перехода применяются хранилищем условной записью.
// ══════════════════════════════════════════════════════════════════════════════

// Record - долговечная запись прогресса ученика по одному периоду темы.
type Record struct {
	// ID - уникальный идентификатор записи.
	ID string

	// StudentID - идентификатор ученика.
	StudentID shared.StudentID

	// LessonTopicID - тема урока.
	LessonTopicID shared.LessonTopicID

	// SubjectID - предмет (для проекций и уведомлений).
	SubjectID shared.SubjectID

	// SubjectName - название предмета на момент материализации.
	SubjectName string

	// PeriodSequence - порядковый номер периода внутри темы (с 1).
	PeriodSequence int

	// TotalPeriodsInSequence - сколько всего периодов у темы.
	TotalPeriodsInSequence int

	// ScheduledDate - дата урока (полночь).
	ScheduledDate time.Time

	// Category - категория ученика, по которой рассчитано окно.
	Category schedule.StudentCategory

	// WindowStart - начало окна аттестации.
	WindowStart time.Time

	// WindowEnd - конец окна аттестации.
	WindowEnd time.Time

	// GraceEnd - конец льготного периода.
	GraceEnd time.Time

	// Terminal - терминальное состояние (NONE / COMPLETED / MISSED).
	Terminal Terminal

	// LinkedSubmissionID - привязанная сдача. Выставляется не более одного
	// раза; после выставления никогда не заменяется другой сдачей.
	LinkedSubmissionID *shared.SubmissionID

	// CompletedAt - момент сдачи (submittedAt сдачи, не время привязки).
	CompletedAt *time.Time

	// IncompleteReason - причина пропуска. Взаимоисключима с
	// LinkedSubmissionID: запись не бывает и завершённой, и пропущенной.
	IncompleteReason *IncompleteReason

	// AutoMarkedIncompleteAt - когда свип пометил запись пропущенной.
	// CompletedAt для пропущенных записей не выставляется.
	AutoMarkedIncompleteAt *time.Time

	// Score - балл привязанной сдачи.
	Score *shared.Score

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего изменения.
	UpdatedAt time.Time
}

// Key - уникальный ключ записи прогресса.
type Key struct {
	StudentID      shared.StudentID
	LessonTopicID  shared.LessonTopicID
	PeriodSequence int
}

// NewRecord материализует запись прогресса из слота расписания и
// рассчитанного окна.
func NewRecord(slot schedule.Slot, window schedule.TimeWindow, now time.Time) *Record {
	return &Record{
		ID:                     uuid.NewString(),
		StudentID:              slot.StudentID,
		LessonTopicID:          slot.LessonTopicID,
		SubjectID:              slot.SubjectID,
		SubjectName:            slot.SubjectName,
		PeriodSequence:         slot.PeriodSequence,
		TotalPeriodsInSequence: slot.TotalPeriodsInSequence,
		ScheduledDate:          slot.Day(),
		Category:               slot.Category,
		WindowStart:            window.WindowStart,
		WindowEnd:              window.WindowEnd,
		GraceEnd:               window.GraceEnd,
		Terminal:               TerminalNone,
		CreatedAt:              now.UTC(),
		UpdatedAt:              now.UTC(),
	}
}

// Key возвращает уникальный ключ записи.
func (r *Record) Key() Key {
	return Key{
		StudentID:      r.StudentID,
		LessonTopicID:  r.LessonTopicID,
		PeriodSequence: r.PeriodSequence,
	}
}

// Window восстанавливает временное окно записи.
func (r *Record) Window() schedule.TimeWindow {
	return schedule.TimeWindow{
		LessonDate:  r.ScheduledDate,
		LessonStart: r.WindowStart,
		LessonEnd:   r.WindowEnd,
		WindowStart: r.WindowStart,
		WindowEnd:   r.WindowEnd,
		GraceEnd:    r.GraceEnd,
		Category:    r.Category,
	}
}

// Completed сообщает, завершена ли запись успешной сдачей.
func (r *Record) Completed() bool {
	return r.Terminal == TerminalCompleted && r.LinkedSubmissionID != nil
}

// Missed сообщает, помечена ли запись пропущенной.
func (r *Record) Missed() bool {
	return r.Terminal == TerminalMissed || r.IncompleteReason != nil
}

// Open сообщает, что запись ещё не достигла терминального состояния.
func (r *Record) Open() bool {
	return r.Terminal == TerminalNone && r.IncompleteReason == nil
}

// LinkedTo сообщает, привязана ли запись именно к этой сдаче.
func (r *Record) LinkedTo(submissionID shared.SubmissionID) bool {
	return r.LinkedSubmissionID != nil && *r.LinkedSubmissionID == submissionID
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITIONS
// Чистые функции перехода (CurrentState, Event) -> NewState. Хранилище
// применяет их условной атомарной записью; мутация здесь отражает результат
// уже применённого перехода.
// ══════════════════════════════════════════════════════════════════════════════

// Link привязывает сдачу к записи и переводит её в COMPLETED.
// Возвращает событие для шины. Переход отклоняется, если запись уже
// привязана (к этой же сдаче - ErrAlreadyLinked, к другой - ErrLinkConflict)
// или уже пропущена (ErrAlreadyMissed).
func (r *Record) Link(submissionID shared.SubmissionID, submittedAt time.Time, score *shared.Score, now time.Time) (*SubmissionLinkedEvent, error) {
	if r.LinkedSubmissionID != nil {
		if *r.LinkedSubmissionID == submissionID {
			return nil, ErrAlreadyLinked
		}
		return nil, ErrLinkConflict
	}
	if r.Missed() {
		return nil, ErrAlreadyMissed
	}

	completedAt := submittedAt.UTC()
	r.LinkedSubmissionID = &submissionID
	r.CompletedAt = &completedAt
	r.Score = score
	r.Terminal = TerminalCompleted
	r.UpdatedAt = now.UTC()

	event := NewSubmissionLinkedEvent(r, submissionID, now)
	return &event, nil
}

// MarkMissed терминально помечает запись пропущенной.
// Повтор по уже помеченной записи - no-op (ErrAlreadyMissed), пометка
// завершённой записи отклоняется (ErrAlreadyCompleted): переходы
// COMPLETED и MISSED взаимоисключимы и необратимы.
func (r *Record) MarkMissed(reason IncompleteReason, now time.Time) (*AssessmentExpiredEvent, error) {
	if r.Missed() {
		return nil, ErrAlreadyMissed
	}
	if r.Completed() {
		return nil, ErrAlreadyCompleted
	}

	markedAt := now.UTC()
	r.IncompleteReason = &reason
	r.AutoMarkedIncompleteAt = &markedAt
	r.Terminal = TerminalMissed
	r.UpdatedAt = markedAt

	event := NewAssessmentExpiredEvent(r, reason, markedAt)
	return &event, nil
}
