package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultCalendarSlug names the calendar events without one are filed under.
const DefaultCalendarSlug = "default"

// CalendarLike is the identity of a calendar as seen by hosts.
type CalendarLike interface {
	CalendarID() string
	CalendarSlug() string
}

// Calendar is a named grouping of events.
type Calendar struct {
	ID   string
	Name string
	Slug string
}

func (c *Calendar) CalendarID() string { return c.ID }
func (c *Calendar) CalendarSlug() string { return c.Slug }

func (c *Calendar) String() string {
	return c.Name
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases s and collapses everything but letters and digits
// into single dashes.
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// NewCalendar builds a calendar, deriving the slug from the name when slug
// is empty.
func NewCalendar(name, slug string) *Calendar {
	if slug == "" {
		slug = Slugify(name)
	}
	return &Calendar{Name: name, Slug: slug}
}

// EventsFor keeps the events whose recurrence span meets [start, end).
// A recurring event spans [start, end of recurrence], open-ended when it
// has none; a one-off event spans [start, end).
func EventsFor(events []*Event, start, end time.Time) []*Event {
	var out []*Event
	for _, ev := range events {
		if eventInWindow(ev, start, end) {
			out = append(out, ev)
		}
	}
	return out
}

func eventInWindow(ev *Event, start, end time.Time) bool {
	if !ev.Start.Before(end) {
		return false
	}
	if ev.Rule == nil {
		return ev.End.After(start)
	}
	eor, ok := ev.EndRecurringPeriod.Get()
	return !ok || !eor.Before(start)
}

// Forever is the upper bound used for open-ended windows.
var Forever = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// OccurrencesAfter merges the occurrences of the calendar's events that
// start after after.
func OccurrencesAfter(events []*Event, persisted []*Occurrence, after time.Time, expander *Expander) *MergedIterator {
	likes := EventLikes(EventsFor(events, after, Forever))
	return NewEventListManager(likes, persisted, expander).OccurrencesAfter(after)
}

// EventLikes widens a slice of events to the interface the algorithms take.
func EventLikes(events []*Event) []EventLike {
	out := make([]EventLike, len(events))
	for i, ev := range events {
		out[i] = ev
	}
	return out
}

// CalendarForObject picks the single calendar related to an object.
// No match is ErrNotFound; more than one is ErrAmbiguousCalendarLookup.
func CalendarForObject(cals []*Calendar) (*Calendar, error) {
	switch len(cals) {
	case 0:
		return nil, notFound("no calendar for object")
	case 1:
		return cals[0], nil
	}
	slugs := make([]string, len(cals))
	for i, c := range cals {
		slugs[i] = c.Slug
	}
	return nil, fmt.Errorf("%w: %s", ErrAmbiguousCalendarLookup, strings.Join(slugs, ", "))
}
