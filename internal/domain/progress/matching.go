package progress

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSION MATCHING
// Сдача привязывается к открытой записи той же темы с датой урока,
// ближайшей к моменту сдачи. Несколько записей на равном удалении - это
// неоднозначность данных: выбирается наименьший номер периода, выбор
// логируется вызывающим для аудита.
// ══════════════════════════════════════════════════════════════════════════════

// MatchResult - результат подбора записи для сдачи.
type MatchResult struct {
	// Record - выбранная запись (nil, если кандидатов нет).
	Record *Record

	// Ambiguous - на ближайшее удаление претендовало несколько записей.
	Ambiguous bool

	// Candidates - число открытых кандидатов, участвовавших в выборе.
	Candidates int
}

// NearestOpen выбирает из records открытую запись с датой урока,
// ближайшей к submittedAt. При равном удалении дат - с любой стороны
// от сдачи - побеждает меньший номер периода.
func NearestOpen(records []*Record, submittedAt time.Time) MatchResult {
	var (
		best       *Record
		bestDist   time.Duration
		tied       int
		candidates int
	)

	day := truncateToDay(submittedAt)

	for _, r := range records {
		if r == nil || !r.Open() {
			continue
		}
		candidates++

		dist := absDuration(r.ScheduledDate.Sub(day))
		switch {
		case best == nil || dist < bestDist:
			best = r
			bestDist = dist
			tied = 1
		case dist == bestDist:
			tied++
			if r.PeriodSequence < best.PeriodSequence {
				best = r
			}
		}
	}

	return MatchResult{
		Record:     best,
		Ambiguous:  tied > 1,
		Candidates: candidates,
	}
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
