package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CRON SCHEDULE
// Calendar-based Schedule for jobs that must run at a wall-clock time
// rather than on a fixed interval (nightly retention, weekly reports).
// Standard 5-field format: minute hour day-of-month month day-of-week.
// ══════════════════════════════════════════════════════════════════════════════

// CronSchedule implements Schedule from a cron expression.
// Examples:
//   - "*/15 * * * *" - every 15 minutes
//   - "0 3 * * *"    - every day at 03:00
//   - "0 0 * * 1"    - every Monday at midnight
type CronSchedule struct {
	raw      string
	minutes  []int // 0-59
	hours    []int // 0-23
	days     []int // 1-31
	months   []int // 1-12
	weekdays []int // 0-6 (0 = Sunday)
}

// Common schedules.
const (
	CronEvery15Minutes = "*/15 * * * *"
	CronHourly         = "0 * * * *"
	CronNightly        = "0 3 * * *"
	CronWeeklyMonday   = "0 0 * * 1"
)

// ParseCron parses a 5-field cron expression.
// Fields support: *, */n, n, n-m, n,m,o.
func ParseCron(expr string) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron: expected 5 fields, got %d in %q", len(fields), expr)
	}

	cs := &CronSchedule{raw: expr}

	specs := []struct {
		name     string
		min, max int
		dst      *[]int
	}{
		{"minute", 0, 59, &cs.minutes},
		{"hour", 0, 23, &cs.hours},
		{"day", 1, 31, &cs.days},
		{"month", 1, 12, &cs.months},
		{"weekday", 0, 6, &cs.weekdays},
	}
	for i, spec := range specs {
		values, err := parseCronField(fields[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("cron: %s field: %w", spec.name, err)
		}
		*spec.dst = values
	}

	return cs, nil
}

// MustParseCron parses a cron expression or panics.
// Use only for compile-time constants.
func MustParseCron(expr string) *CronSchedule {
	cs, err := ParseCron(expr)
	if err != nil {
		panic(err)
	}
	return cs
}

// parseCronField expands one cron field into a sorted value set.
func parseCronField(field string, min, max int) ([]int, error) {
	if field == "*" {
		values := make([]int, 0, max-min+1)
		for i := min; i <= max; i++ {
			values = append(values, i)
		}
		return values, nil
	}

	// Step values: */n or n-m/s.
	if strings.Contains(field, "/") {
		parts := strings.SplitN(field, "/", 2)
		step, err := strconv.Atoi(parts[1])
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("invalid step %q", parts[1])
		}

		start, end := min, max
		switch {
		case parts[0] == "*":
		case strings.Contains(parts[0], "-"):
			rangeParts := strings.SplitN(parts[0], "-", 2)
			if start, err = strconv.Atoi(rangeParts[0]); err != nil {
				return nil, fmt.Errorf("invalid range start %q", rangeParts[0])
			}
			if end, err = strconv.Atoi(rangeParts[1]); err != nil {
				return nil, fmt.Errorf("invalid range end %q", rangeParts[1])
			}
		default:
			if start, err = strconv.Atoi(parts[0]); err != nil {
				return nil, fmt.Errorf("invalid step base %q", parts[0])
			}
		}

		var values []int
		for i := start; i <= end; i += step {
			if i >= min && i <= max {
				values = append(values, i)
			}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("empty value set in %q", field)
		}
		return values, nil
	}

	// Ranges: n-m.
	if strings.Contains(field, "-") {
		parts := strings.SplitN(field, "-", 2)
		start, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid range start %q", parts[0])
		}
		end, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid range end %q", parts[1])
		}

		var values []int
		for i := start; i <= end; i++ {
			if i >= min && i <= max {
				values = append(values, i)
			}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("empty range in %q", field)
		}
		return values, nil
	}

	// Lists: n,m,o.
	if strings.Contains(field, ",") {
		var values []int
		for _, p := range strings.Split(field, ",") {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("invalid list value %q", p)
			}
			if v < min || v > max {
				return nil, fmt.Errorf("value %d out of range [%d-%d]", v, min, max)
			}
			values = append(values, v)
		}
		sort.Ints(values)
		return values, nil
	}

	v, err := strconv.Atoi(field)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q", field)
	}
	if v < min || v > max {
		return nil, fmt.Errorf("value %d out of range [%d-%d]", v, min, max)
	}
	return []int{v}, nil
}

// Next implements Schedule. It returns the first matching minute after t.
func (cs *CronSchedule) Next(t time.Time) time.Time {
	next := t.Add(time.Minute).Truncate(time.Minute)

	// One year of minutes bounds the scan for any valid expression.
	const maxIterations = 366 * 24 * 60
	for i := 0; i < maxIterations; i++ {
		if cs.matches(next) {
			return next
		}
		next = next.Add(time.Minute)
	}
	return time.Time{}
}

// String implements Schedule.
func (cs *CronSchedule) String() string {
	return "cron(" + cs.raw + ")"
}

func (cs *CronSchedule) matches(t time.Time) bool {
	return containsInt(cs.minutes, t.Minute()) &&
		containsInt(cs.hours, t.Hour()) &&
		containsInt(cs.days, t.Day()) &&
		containsInt(cs.months, int(t.Month())) &&
		containsInt(cs.weekdays, int(t.Weekday()))
}

func containsInt(values []int, v int) bool {
	for _, c := range values {
		if c == v {
			return true
		}
	}
	return false
}
