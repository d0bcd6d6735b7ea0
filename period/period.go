// Package period partitions time into windows (years, months, weeks, days
// or arbitrary spans) and reports which occurrences fall into each.
package period

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/libschedule/internal/timeutil"
	"github.com/cyp0633/libschedule/schedule"
)

// Class describes how an occurrence sits relative to a period.
type Class int

const (
	ClassStartedOnly     Class = 0
	ClassStartedAndEnded Class = 1
	ClassSpans           Class = 2
	ClassEndedOnly       Class = 3
)

func (c Class) String() string {
	switch c {
	case ClassStartedOnly:
		return "started"
	case ClassStartedAndEnded:
		return "started-and-ended"
	case ClassSpans:
		return "spans"
	case ClassEndedOnly:
		return "ended"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Partial is a classified occurrence.
type Partial struct {
	Occurrence schedule.OccurrenceLike
	Class      Class
}

// Period is a half-open window [start, end) over a set of events.
type Period struct {
	kind      Kind
	events    []schedule.EventLike
	persisted []*schedule.Occurrence
	start     time.Time
	end       time.Time
	loc       *time.Location

	pool     []*schedule.Occurrence
	hasPool  bool
	less     func(a, b *schedule.Occurrence) bool
	opts     schedule.Options
	expander *schedule.Expander

	once sync.Once
	occs []*schedule.Occurrence
}

// Option configures a Period.
type Option func(*Period)

// WithLocation sets the zone bounds are computed and reported in.
func WithLocation(loc *time.Location) Option {
	return func(p *Period) {
		p.loc = loc
	}
}

// WithPool makes the period filter pool instead of expanding its events.
func WithPool(pool []*schedule.Occurrence) Option {
	return func(p *Period) {
		p.pool = pool
		p.hasPool = true
	}
}

// WithSort overrides the occurrence order. The default is by end time.
func WithSort(less func(a, b *schedule.Occurrence) bool) Option {
	return func(p *Period) {
		p.less = less
	}
}

func WithOptions(opts schedule.Options) Option {
	return func(p *Period) {
		p.opts = opts
	}
}

// WithExpander shares an expander, and its engine cache, across periods.
func WithExpander(e *schedule.Expander) Option {
	return func(p *Period) {
		p.expander = e
	}
}

func build(kind Kind, events []schedule.EventLike, persisted []*schedule.Occurrence, options []Option) *Period {
	p := &Period{
		kind:      kind,
		events:    events,
		persisted: persisted,
		loc:       time.UTC,
		opts:      schedule.DefaultOptions(),
	}
	for _, o := range options {
		o(p)
	}
	if p.loc == nil {
		p.loc = time.UTC
	}
	if p.less == nil {
		p.less = func(a, b *schedule.Occurrence) bool { return a.Less(b) }
	}
	if p.expander == nil {
		p.expander = schedule.NewExpander(p.opts)
	}
	return p
}

// New builds a period over an explicit window.
func New(events []schedule.EventLike, persisted []*schedule.Occurrence, start, end time.Time, options ...Option) *Period {
	p := build(KindNone, events, persisted, options)
	p.start = start.In(p.loc)
	p.end = end.In(p.loc)
	return p
}

func (p *Period) Kind() Kind { return p.kind }
func (p *Period) Start() time.Time { return p.start }
func (p *Period) End() time.Time { return p.end }
func (p *Period) Location() *time.Location { return p.loc }

// Events returns the events the period was built over.
func (p *Period) Events() []schedule.EventLike {
	return p.events
}

// Occurrences returns the sorted occurrences meeting the window. They are
// computed once.
func (p *Period) Occurrences() []*schedule.Occurrence {
	p.once.Do(func() {
		var occs []*schedule.Occurrence
		if p.hasPool {
			for _, o := range p.pool {
				if timeutil.Overlaps(o.Start, o.End, p.start, p.end) {
					occs = append(occs, o)
				}
			}
		} else {
			for _, ev := range p.events {
				occs = append(occs, p.expander.GetOccurrences(ev, p.persisted, p.start, p.end)...)
			}
		}
		sort.SliceStable(occs, func(i, j int) bool { return p.less(occs[i], occs[j]) })
		p.occs = occs
	})
	return p.occs
}

// Classify places occ relative to the window. It is absent when occ is
// outside, or cancelled while cancelled occurrences are hidden.
func (p *Period) Classify(occ schedule.OccurrenceLike) mo.Option[Partial] {
	if occ.IsCancelled() && !p.opts.ShowCancelledOccurrences {
		return mo.None[Partial]()
	}
	start, end := occ.OccurrenceStart(), occ.OccurrenceEnd()
	if !timeutil.Overlaps(start, end, p.start, p.end) {
		return mo.None[Partial]()
	}
	started := p.contains(start)
	ended := p.contains(end)

	class := ClassSpans
	switch {
	case started && ended:
		class = ClassStartedAndEnded
	case started:
		class = ClassStartedOnly
	case ended:
		class = ClassEndedOnly
	}
	return mo.Some(Partial{Occurrence: occ, Class: class})
}

func (p *Period) contains(t time.Time) bool {
	return !t.Before(p.start) && t.Before(p.end)
}

// OccurrencePartials classifies every occurrence, dropping absent ones.
func (p *Period) OccurrencePartials() []Partial {
	var out []Partial
	for _, o := range p.Occurrences() {
		if partial, ok := p.Classify(o).Get(); ok {
			out = append(out, partial)
		}
	}
	return out
}

// HasOccurrences reports whether any occurrence classifies.
func (p *Period) HasOccurrences() bool {
	for _, o := range p.Occurrences() {
		if p.Classify(o).IsPresent() {
			return true
		}
	}
	return false
}

// TimeSlot returns the sub-period [start, end) when it lies within p.
func (p *Period) TimeSlot(start, end time.Time) mo.Option[*Period] {
	if start.Before(p.start) || end.After(p.end) {
		return mo.None[*Period]()
	}
	return mo.Some(New(p.events, p.persisted, start, end, p.inherited(true)...))
}

// inherited carries p's configuration to a derived period. Sub-periods
// filter p's occurrences instead of expanding again.
func (p *Period) inherited(withPool bool) []Option {
	opts := []Option{
		WithLocation(p.loc),
		WithSort(p.less),
		WithOptions(p.opts),
		WithExpander(p.expander),
	}
	if withPool {
		opts = append(opts, WithPool(p.Occurrences()))
	}
	return opts
}

func (p *Period) sub(kind Kind, date time.Time) *Period {
	return ForKind(kind, p.events, p.persisted, date, p.inherited(true)...)
}

func (p *Period) related(kind Kind, date time.Time) *Period {
	return ForKind(kind, p.events, p.persisted, date, p.inherited(false)...)
}

// Periods tiles the window with periods of kind, left to right. The first
// one contains the window start, so it may begin before it.
func (p *Period) Periods(kind Kind) *Iterator[*Period] {
	return newIterator(p, kind, func(sp *Period) *Period { return sp })
}

// NextUnbounded is the following period of the same kind, ignoring the
// navigation limit.
func (p *Period) NextUnbounded() *Period {
	return p.related(p.kind, p.end)
}

// PrevUnbounded is the preceding period of the same kind, ignoring the
// navigation limit.
func (p *Period) PrevUnbounded() *Period {
	return p.related(p.kind, p.kind.step(p.start, -1))
}

// Next is the following period, absent past the navigation limit or for
// windows without a kind.
func (p *Period) Next() mo.Option[*Period] {
	if p.kind == KindNone {
		return mo.None[*Period]()
	}
	next := p.NextUnbounded()
	if next.start.Sub(p.opts.Clock()) > p.opts.Limit() {
		return mo.None[*Period]()
	}
	return mo.Some(next)
}

// Prev is the preceding period, absent past the navigation limit or for
// windows without a kind.
func (p *Period) Prev() mo.Option[*Period] {
	if p.kind == KindNone {
		return mo.None[*Period]()
	}
	prev := p.PrevUnbounded()
	if p.opts.Clock().Sub(prev.start) > p.opts.Limit() {
		return mo.None[*Period]()
	}
	return mo.Some(prev)
}

func (p *Period) String() string {
	return fmt.Sprintf("%s - %s", p.start.Format(time.RFC3339), p.end.Format(time.RFC3339))
}

// Iterator lazily yields adjacent sub-periods.
type Iterator[T any] struct {
	parent *Period
	kind   Kind
	cur    *Period
	wrap   func(*Period) T
}

func newIterator[T any](parent *Period, kind Kind, wrap func(*Period) T) *Iterator[T] {
	it := &Iterator[T]{parent: parent, kind: kind, wrap: wrap}
	if kind != KindNone {
		it.cur = parent.sub(kind, parent.start)
	}
	return it
}

// Next returns the following sub-period, or false past the parent's end.
func (it *Iterator[T]) Next() (T, bool) {
	var zero T
	if it.cur == nil || !it.cur.start.Before(it.parent.end) {
		return zero, false
	}
	out := it.cur
	it.cur = it.parent.sub(it.kind, out.end)
	return it.wrap(out), true
}

// Collect drains the iterator.
func (it *Iterator[T]) Collect() []T {
	var out []T
	for {
		v, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}
