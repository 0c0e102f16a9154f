// Package timeutil provides date helpers for the assessment engine.
// Scheduled dates are calendar days: they are normalized to midnight UTC
// so the same day compares equal regardless of how it entered the system.
// No external dependencies - uses only standard library.
package timeutil

import "time"

// Common date/time formats.
const (
	// FormatDate is the wire format for scheduled dates (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTimeOfDay is the wire format for slot times (HH:MM).
	FormatTimeOfDay = "15:04"
)

// ParseDate parses a YYYY-MM-DD string into midnight UTC of that day.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(FormatDate, value)
}

// FormatDateStr formats a time as a YYYY-MM-DD string in UTC.
func FormatDateStr(t time.Time) string {
	return t.UTC().Format(FormatDate)
}

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartOfISOWeek returns midnight UTC of the Monday of the ISO week
// containing t.
func StartOfISOWeek(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(t.AddDate(0, 0, -(weekday - 1)))
}

// SameDay reports whether two times fall on the same UTC day.
func SameDay(t1, t2 time.Time) bool {
	a, b := t1.UTC(), t2.UTC()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// DaysBetween returns the absolute number of whole days between the days
// containing t1 and t2. Used for nearest-date submission matching.
func DaysBetween(t1, t2 time.Time) int {
	d := StartOfDay(t2).Sub(StartOfDay(t1))
	days := int(d.Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
