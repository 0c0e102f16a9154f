package progress

import (
	"sort"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PERIOD DEPENDENCY
// Многопериодные темы открываются последовательно: период k доступен,
// только когда период k-1 той же темы завершён в рамках той же учебной
// недели и учитель выпустил следующую аттестацию.
// ══════════════════════════════════════════════════════════════════════════════

// BlockReason - причина недоступности периода.
type BlockReason string

const (
	// BlockPreviousIncomplete - предыдущий период той же темы не завершён.
	BlockPreviousIncomplete BlockReason = "PREVIOUS_INCOMPLETE"

	// BlockWaitingTeacher - предыдущий период завершён, но учитель ещё
	// не выпустил аттестацию следующего периода.
	BlockWaitingTeacher BlockReason = "WAITING_TEACHER"
)

// AccessDecision - результат проверки доступности периода.
type AccessDecision struct {
	// Allowed - доступен ли период ученику.
	Allowed bool

	// BlockReason - причина блокировки (пусто при Allowed).
	BlockReason BlockReason

	// BlockingPeriod - номер периода, из-за которого период заблокирован.
	BlockingPeriod int
}

// allow - единственный разрешающий результат.
func allow() AccessDecision {
	return AccessDecision{Allowed: true}
}

func block(reason BlockReason, period int) AccessDecision {
	return AccessDecision{BlockReason: reason, BlockingPeriod: period}
}

// CanAccess решает, доступен ли записи rec её период, по записям siblings
// (все записи того же ученика и той же темы, включая rec) и флагу
// followUpExists (учитель выпустил аттестацию этого периода).
//
// Правила, в порядке применения:
//  1. первый период темы доступен всегда;
//  2. если предыдущий период запланирован на другую учебную неделю
//     (ISO-неделя), зависимость не действует - недельная граница
//     сбрасывает цепочку;
//  3. предыдущий период не COMPLETED -> PREVIOUS_INCOMPLETE;
//  4. предыдущий завершён, но followUpExists=false -> WAITING_TEACHER.
func CanAccess(rec *Record, siblings []*Record, followUpExists bool, now time.Time) AccessDecision {
	if rec.PeriodSequence <= 1 {
		return allow()
	}

	prev := previousPeriod(rec, siblings)
	if prev == nil {
		// Предыдущий период не материализован: цепочки нет.
		return allow()
	}

	if !sameISOWeek(prev.ScheduledDate, rec.ScheduledDate) {
		return allow()
	}

	if Resolve(prev, now) != StatusCompleted {
		return block(BlockPreviousIncomplete, prev.PeriodSequence)
	}

	if !followUpExists {
		return block(BlockWaitingTeacher, rec.PeriodSequence)
	}

	return allow()
}

// previousPeriod находит запись периода rec.PeriodSequence-1 среди siblings.
func previousPeriod(rec *Record, siblings []*Record) *Record {
	want := rec.PeriodSequence - 1
	for _, s := range siblings {
		if s == nil {
			continue
		}
		if s.StudentID == rec.StudentID && s.LessonTopicID == rec.LessonTopicID && s.PeriodSequence == want {
			return s
		}
	}
	return nil
}

// sameISOWeek сообщает, что обе даты лежат в одной ISO-неделе.
func sameISOWeek(a, b time.Time) bool {
	ay, aw := a.ISOWeek()
	by, bw := b.ISOWeek()
	return ay == by && aw == bw
}

// SortBySequence сортирует записи по номеру периода (для проекций).
func SortBySequence(records []*Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].PeriodSequence < records[j].PeriodSequence
	})
}
