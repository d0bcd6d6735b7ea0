package period

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/libschedule/internal/timeutil"
	"github.com/cyp0633/libschedule/schedule"
)

// Kind names a calendar-aligned period length.
type Kind int

const (
	KindNone Kind = iota
	KindYear
	KindMonth
	KindWeek
	KindDay
)

func (k Kind) String() string {
	switch k {
	case KindYear:
		return "year"
	case KindMonth:
		return "month"
	case KindWeek:
		return "week"
	case KindDay:
		return "day"
	}
	return "none"
}

// ParseKind maps "year", "month", "week" and "day" onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "year":
		return KindYear, nil
	case "month":
		return KindMonth, nil
	case "week":
		return KindWeek, nil
	case "day":
		return KindDay, nil
	}
	return KindNone, fmt.Errorf("unknown period kind %q", s)
}

// step moves t by n periods of kind on the wall clock.
func (k Kind) step(t time.Time, n int) time.Time {
	switch k {
	case KindYear:
		return t.AddDate(n, 0, 0)
	case KindMonth:
		return t.AddDate(0, n, 0)
	case KindWeek:
		return timeutil.AddDays(t, 7*n)
	case KindDay:
		return timeutil.AddDays(t, n)
	}
	return t
}

// bounds computes the local-midnight window of kind containing date.
func (k Kind) bounds(date time.Time, loc *time.Location, weekStart time.Weekday) (time.Time, time.Time) {
	var start time.Time
	switch k {
	case KindYear:
		start = timeutil.StartOfYear(date, loc)
	case KindMonth:
		start = timeutil.StartOfMonth(date, loc)
	case KindWeek:
		start = timeutil.StartOfWeek(date, loc, weekStart)
	case KindDay:
		start = timeutil.StartOfDay(date, loc)
	default:
		t := timeutil.In(date, loc)
		return t, t
	}
	return start, k.step(start, 1)
}

// ForKind builds the period of kind that contains date.
func ForKind(kind Kind, events []schedule.EventLike, persisted []*schedule.Occurrence, date time.Time, options ...Option) *Period {
	p := build(kind, events, persisted, options)
	p.start, p.end = kind.bounds(date, p.loc, p.opts.WeekStart())
	return p
}

func mapOption[T any](o mo.Option[*Period], wrap func(*Period) T) mo.Option[T] {
	p, ok := o.Get()
	if !ok {
		return mo.None[T]()
	}
	return mo.Some(wrap(p))
}

const labelLayout = "Mon Jan 02 2006"

// Year is January 1st to January 1st.
type Year struct{ *Period }

func NewYear(events []schedule.EventLike, persisted []*schedule.Occurrence, date time.Time, options ...Option) *Year {
	return &Year{ForKind(KindYear, events, persisted, date, options...)}
}

func asYear(p *Period) *Year { return &Year{p} }

func (y *Year) Months() *Iterator[*Month] {
	return newIterator(y.Period, KindMonth, asMonth)
}

func (y *Year) Next() mo.Option[*Year] { return mapOption(y.Period.Next(), asYear) }
func (y *Year) Prev() mo.Option[*Year] { return mapOption(y.Period.Prev(), asYear) }

func (y *Year) String() string {
	return fmt.Sprintf("%d", y.start.Year())
}

// Month runs from the first of a month to the first of the next.
type Month struct{ *Period }

func NewMonth(events []schedule.EventLike, persisted []*schedule.Occurrence, date time.Time, options ...Option) *Month {
	return &Month{ForKind(KindMonth, events, persisted, date, options...)}
}

func asMonth(p *Period) *Month { return &Month{p} }

// Weeks tiles the month with weeks; the first and last may stick out.
func (m *Month) Weeks() *Iterator[*Week] {
	return newIterator(m.Period, KindWeek, asWeek)
}

func (m *Month) Days() *Iterator[*Day] {
	return newIterator(m.Period, KindDay, asDay)
}

// Day returns the n-th day of the month, counting from 1.
func (m *Month) Day(n int) *Day {
	date := m.start
	if n > 1 {
		date = timeutil.AddDays(date, n-1)
	}
	return asDay(m.sub(KindDay, date))
}

func (m *Month) Next() mo.Option[*Month] { return mapOption(m.Period.Next(), asMonth) }
func (m *Month) Prev() mo.Option[*Month] { return mapOption(m.Period.Prev(), asMonth) }

func (m *Month) CurrentYear() *Year {
	return asYear(m.related(KindYear, m.start))
}

func (m *Month) NextYear() *Year {
	return asYear(m.related(KindYear, m.start.AddDate(1, 0, 0)))
}

func (m *Month) PrevYear() *Year {
	return asYear(m.related(KindYear, m.start.AddDate(-1, 0, 0)))
}

// Name is the English month name.
func (m *Month) Name() string {
	return m.start.Month().String()
}

func (m *Month) Year() int {
	return m.start.Year()
}

func (m *Month) String() string {
	return m.Name()
}

// Week starts on the configured first day of the week.
type Week struct{ *Period }

func NewWeek(events []schedule.EventLike, persisted []*schedule.Occurrence, date time.Time, options ...Option) *Week {
	return &Week{ForKind(KindWeek, events, persisted, date, options...)}
}

func asWeek(p *Period) *Week { return &Week{p} }

func (w *Week) Days() *Iterator[*Day] {
	return newIterator(w.Period, KindDay, asDay)
}

func (w *Week) Next() mo.Option[*Week] { return mapOption(w.Period.Next(), asWeek) }
func (w *Week) Prev() mo.Option[*Week] { return mapOption(w.Period.Prev(), asWeek) }

func (w *Week) CurrentMonth() *Month {
	return asMonth(w.related(KindMonth, w.start))
}

func (w *Week) CurrentYear() *Year {
	return asYear(w.related(KindYear, w.start))
}

func (w *Week) String() string {
	return fmt.Sprintf("Week: %s-%s", w.start.Format(labelLayout), w.end.Format(labelLayout))
}

// Day is local midnight to local midnight, 23 or 25 hours on DST days.
type Day struct{ *Period }

func NewDay(events []schedule.EventLike, persisted []*schedule.Occurrence, date time.Time, options ...Option) *Day {
	return &Day{ForKind(KindDay, events, persisted, date, options...)}
}

func asDay(p *Period) *Day { return &Day{p} }

func (d *Day) Next() mo.Option[*Day] { return mapOption(d.Period.Next(), asDay) }
func (d *Day) Prev() mo.Option[*Day] { return mapOption(d.Period.Prev(), asDay) }

func (d *Day) CurrentWeek() *Week {
	return asWeek(d.related(KindWeek, d.start))
}

func (d *Day) CurrentMonth() *Month {
	return asMonth(d.related(KindMonth, d.start))
}

func (d *Day) CurrentYear() *Year {
	return asYear(d.related(KindYear, d.start))
}

func (d *Day) String() string {
	return fmt.Sprintf("Day: %s-%s", d.start.Format(labelLayout), d.end.Format(labelLayout))
}
