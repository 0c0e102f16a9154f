package progress

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// STATUS RESOLUTION
// Статус периода - детерминированная функция (запись, now). Терминальные
// состояния записаны в записи; нетерминальные выводятся из временного окна.
// ══════════════════════════════════════════════════════════════════════════════

// Status - производный статус периода аттестации.
type Status string

const (
	// StatusPending - окно ещё не открылось.
	StatusPending Status = "PENDING"

	// StatusAvailable - окно открыто (включая льготный период), сдачи нет.
	StatusAvailable Status = "AVAILABLE"

	// StatusInProgress - у ученика есть незавершённая попытка.
	// Выставляется проекцией чтения по данным модуля аттестаций;
	// сам резолвер этот статус не выводит.
	StatusInProgress Status = "IN_PROGRESS"

	// StatusCompleted - сдача привязана, период завершён.
	StatusCompleted Status = "COMPLETED"

	// StatusMissed - период пропущен: причина пропуска выставлена,
	// либо льготный период истёк без сдачи.
	StatusMissed Status = "MISSED"
)

// String возвращает строковое представление статуса.
func (s Status) String() string {
	return string(s)
}

// IsTerminal сообщает, что статус окончательный.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusMissed
}

// Resolve выводит статус записи на момент now.
//
// Лестница приоритетов, строго сверху вниз:
//  1. причина пропуска выставлена           -> MISSED
//  2. завершена и сдача привязана           -> COMPLETED
//  3. заявлено завершение, но сдачи нет     -> MISSED (защита от
//     рассинхронизации: завершение без привязанной сдачи недостоверно)
//  4. иначе по временному окну:
//     now < WindowStart                     -> PENDING
//     WindowStart <= now <= GraceEnd        -> AVAILABLE
//     now > GraceEnd                        -> MISSED
func Resolve(r *Record, now time.Time) Status {
	if r.IncompleteReason != nil {
		return StatusMissed
	}
	if r.Completed() {
		return StatusCompleted
	}
	if r.Terminal == TerminalCompleted || r.CompletedAt != nil {
		return StatusMissed
	}

	w := r.Window()
	switch {
	case now.Before(w.WindowStart):
		return StatusPending
	case w.GraceExpired(now):
		return StatusMissed
	default:
		return StatusAvailable
	}
}
