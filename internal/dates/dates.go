// Package dates holds the calendar-date helpers shared by the ledger, the
// price sources and the analytics. A date is a time.Time at UTC midnight.
package dates

import (
	"fmt"
	"time"
)

// Layout is the ISO 8601 calendar date format used at every boundary.
const Layout = "2006-01-02"

// Day is the length of one calendar day.
const Day = 24 * time.Hour

// Clock returns the current instant. Components take a Clock so "today" can be
// pinned in tests.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }

// Normalize drops the time of day and location, keeping the calendar date.
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// New builds a normalized date.
func New(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Parse reads a yyyy-MM-dd date.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected yyyy-MM-dd: %w", s, err)
	}
	return t, nil
}

// Format writes a date as yyyy-MM-dd.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Today is the normalized current date according to clock.
func Today(clock Clock) time.Time {
	if clock == nil {
		clock = SystemClock
	}
	return Normalize(clock())
}

// IsFuture reports whether date lies after today.
func IsFuture(date time.Time, clock Clock) bool {
	return Normalize(date).After(Today(clock))
}

// AddDays shifts a date by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return Normalize(t).AddDate(0, 0, n)
}

// DaysBetween is the number of whole days from start to end (negative when end
// precedes start).
func DaysBetween(start, end time.Time) int {
	return int(Normalize(end).Sub(Normalize(start)) / Day)
}
