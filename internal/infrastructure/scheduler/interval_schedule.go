package scheduler

import (
	"fmt"
	"math/rand"
	"time"
)

// IntervalSchedule runs a job at a fixed interval, measured from the end of
// the previous run. Jitter, when set, spreads runs across worker replicas so
// overlapping sweeps stay the exception rather than the rule.
type IntervalSchedule struct {
	Interval time.Duration
	Jitter   time.Duration
}

// NewIntervalSchedule creates a fixed-interval schedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	if interval <= 0 {
		interval = time.Minute
	}
	return &IntervalSchedule{Interval: interval}
}

// NewJitteredIntervalSchedule creates an interval schedule with up to jitter
// of random delay added to every run.
func NewJitteredIntervalSchedule(interval, jitter time.Duration) *IntervalSchedule {
	s := NewIntervalSchedule(interval)
	if jitter > 0 {
		s.Jitter = jitter
	}
	return s
}

// Next implements Schedule.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	next := t.Add(s.Interval)
	if s.Jitter > 0 {
		next = next.Add(time.Duration(rand.Int63n(int64(s.Jitter))))
	}
	return next
}

// String implements Schedule.
func (s *IntervalSchedule) String() string {
	if s.Jitter > 0 {
		return fmt.Sprintf("@every %s (jitter %s)", s.Interval, s.Jitter)
	}
	return fmt.Sprintf("@every %s", s.Interval)
}
