// Package timeutil holds the zone arithmetic shared by the recurrence, schedule
// and period packages. All helpers work on wall-clock fields in a location so
// results stay correct across DST transitions.
package timeutil

import "time"

// In converts t to loc, treating a nil location as UTC.
func In(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc)
}

// Localize reinterprets the wall clock of t as a time in loc.
// The instant changes; the printed fields do not.
func Localize(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d, hh, mm, ss, t.Nanosecond(), loc)
}

// StartOfDay is local midnight of the day containing t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = In(t, loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfMonth is local midnight of the first of t's month in loc.
func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	t = In(t, loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// StartOfYear is local midnight of January 1st of t's year in loc.
func StartOfYear(t time.Time, loc *time.Location) time.Time {
	t = In(t, loc)
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

// StartOfWeek is local midnight of the most recent firstDay on or before t.
func StartOfWeek(t time.Time, loc *time.Location, firstDay time.Weekday) time.Time {
	day := StartOfDay(t, loc)
	back := (int(day.Weekday()) - int(firstDay) + 7) % 7
	return AddDays(day, -back)
}

// AddDays moves t by n calendar days keeping the wall clock, not by n*24h.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// Overlaps reports whether [start, end) touches the half-open window [a, b).
// Zero-length spans count when they sit exactly on a.
func Overlaps(start, end, a, b time.Time) bool {
	if !start.Before(b) {
		return false
	}
	return end.After(a) || start.Equal(a)
}

// Min returns the earlier of two instants.
func Min(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
