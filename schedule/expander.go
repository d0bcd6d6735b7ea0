package schedule

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyp0633/libschedule/internal/timeutil"
	"github.com/cyp0633/libschedule/recurrence"
)

// Expander materializes the occurrences of events over query windows.
type Expander struct {
	engine *recurrence.Engine
	opts   Options
	logger zerolog.Logger
}

// ExpanderOption configures an Expander.
type ExpanderOption func(*Expander)

// WithEngine shares a recurrence engine (and its cache) with the expander.
func WithEngine(engine *recurrence.Engine) ExpanderOption {
	return func(e *Expander) {
		e.engine = engine
	}
}

// WithLogger sets the logger for expansion problems.
func WithLogger(logger zerolog.Logger) ExpanderOption {
	return func(e *Expander) {
		e.logger = logger
	}
}

// NewExpander creates an expander. Without WithEngine it uses an uncached
// engine of its own.
func NewExpander(opts Options, options ...ExpanderOption) *Expander {
	e := &Expander{opts: opts, logger: zerolog.Nop()}
	for _, o := range options {
		o(e)
	}
	if e.engine == nil {
		e.engine = recurrence.NewEngineWithConfig(recurrence.DisabledCacheConfig)
	}
	return e
}

// Options returns the configuration the expander was built with.
func (e *Expander) Options() Options {
	return e.opts
}

// zone is the location wall-clock recurrence is computed in: the configured
// one, else the event start's. Query instants never pick it.
func (e *Expander) zone(ev EventLike) *time.Location {
	if e.opts.Location != nil {
		return e.opts.Location
	}
	return ev.EventStart().Location()
}

func (e *Expander) compile(ev EventLike) (*recurrence.Stream, error) {
	return e.engine.Compile(*ev.RecurrenceRule(), ev.EventStart(), ev.RecurrenceEnd(), e.zone(ev))
}

// GetOccurrences returns the occurrences of ev meeting [start, end), with
// persisted overrides swapped in, ordered by start then end.
//
// A broken rule yields no occurrences rather than an error; the problem is
// logged.
func (e *Expander) GetOccurrences(ev EventLike, persisted []*Occurrence, start, end time.Time) []*Occurrence {
	generated := e.occurrenceList(ev, start, end)
	rep := NewReplacer(persistedFor(ev, persisted), e.opts.ShowCancelledOccurrences)

	final := make([]*Occurrence, 0, len(generated))
	for _, occ := range generated {
		if !rep.Has(occ) {
			final = append(final, occ)
			continue
		}
		p := rep.Get(occ)
		if !timeutil.Overlaps(p.Start, p.End, start, end) {
			continue
		}
		if p.Cancelled && !e.opts.ShowCancelledOccurrences {
			continue
		}
		final = append(final, p)
	}
	final = append(final, rep.ExtrasIn(start, end)...)

	sort.SliceStable(final, func(i, j int) bool { return byStartThenEnd(final[i], final[j]) })
	return final
}

// occurrenceList produces the generated occurrences for the window before any
// override is applied.
func (e *Expander) occurrenceList(ev EventLike, start, end time.Time) []*Occurrence {
	evStart, evEnd := ev.EventStart(), ev.EventEnd()
	if ev.RecurrenceRule() == nil {
		if timeutil.Overlaps(evStart, evEnd, start, end) {
			return []*Occurrence{ev.MakeOccurrence(evStart, evEnd)}
		}
		return nil
	}

	duration := evEnd.Sub(evStart)
	rangeEnd := end
	if eor, ok := ev.RecurrenceEnd().Get(); ok && eor.Before(rangeEnd) {
		rangeEnd = eor
	}

	stream, err := e.compile(ev)
	if err != nil {
		e.logger.Error().Err(err).Str("event", ev.EventID()).Msg("cannot compile rule")
		return nil
	}

	var starts []time.Time
	if prev, ok := stream.Before(start, false).Get(); ok && prev.Add(duration).After(start) {
		starts = append(starts, prev)
	}
	if !rangeEnd.Before(start) {
		between, err := e.engine.Between(*ev.RecurrenceRule(), evStart, ev.RecurrenceEnd(), stream.Location(), start, rangeEnd)
		if err != nil {
			e.logger.Error().Err(err).Str("event", ev.EventID()).Msg("cannot expand rule")
			return nil
		}
		starts = append(starts, between...)
	}

	seen := make(map[int64]bool, len(starts))
	out := make([]*Occurrence, 0, len(starts))
	for _, s := range starts {
		// the window is half-open on the right
		if s.Equal(end) || seen[s.UnixNano()] {
			continue
		}
		seen[s.UnixNano()] = true
		out = append(out, ev.MakeOccurrence(s, s.Add(duration)))
	}
	return out
}

// GetOccurrence returns the occurrence of ev whose original start is at.
// A persisted override wins over a freshly generated occurrence.
func (e *Expander) GetOccurrence(ev EventLike, persisted []*Occurrence, at time.Time) (*Occurrence, error) {
	next := ev.EventStart()
	if ev.RecurrenceRule() != nil {
		stream, err := e.compile(ev)
		if err != nil {
			return nil, err
		}
		n, ok := stream.After(at, true).Get()
		if !ok {
			return nil, notFound("event %s has no occurrence at %s", ev.EventID(), at)
		}
		next = n
	}
	if !next.Equal(at) {
		return nil, notFound("event %s has no occurrence at %s", ev.EventID(), at)
	}

	for _, p := range persistedFor(ev, persisted) {
		if p.OriginalStart.Equal(at) {
			p.Inherit(ev)
			return p, nil
		}
	}
	return ev.MakeOccurrence(next, next.Add(ev.EventEnd().Sub(ev.EventStart()))), nil
}

// OccurrencesAfter returns a lazy iterator over the occurrences of ev that
// start after after. max caps how many generated occurrences are examined;
// zero means no cap.
func (e *Expander) OccurrencesAfter(ev EventLike, persisted []*Occurrence, after time.Time, max int) *OccurrenceIterator {
	own := persistedFor(ev, persisted)
	rep := NewReplacer(own, e.opts.ShowCancelledOccurrences)
	return e.newIterator(ev, own, rep, after, max)
}

func (e *Expander) newIterator(ev EventLike, own []*Occurrence, rep *Replacer, after time.Time, max int) *OccurrenceIterator {
	it := &OccurrenceIterator{
		ev:            ev,
		after:         after,
		max:           max,
		duration:      ev.EventEnd().Sub(ev.EventStart()),
		replacer:      rep,
		showCancelled: e.opts.ShowCancelledOccurrences,
		moved:         make(map[OccurrenceKey]bool),
	}

	for _, p := range own {
		if !p.Moved() {
			continue
		}
		it.moved[p.Key()] = true
		if p.Start.After(after) && (!p.Cancelled || it.showCancelled) {
			p.Inherit(ev)
			it.pending = append(it.pending, p)
		}
	}
	sort.Slice(it.pending, func(i, j int) bool { return byStartThenEnd(it.pending[i], it.pending[j]) })

	if ev.RecurrenceRule() == nil {
		it.single = true
		return it
	}
	stream, err := e.compile(ev)
	if err != nil {
		e.logger.Error().Err(err).Str("event", ev.EventID()).Msg("cannot compile rule")
		it.exhausted = true
		return it
	}
	it.next = stream.Iterator()
	return it
}

func persistedFor(ev EventLike, persisted []*Occurrence) []*Occurrence {
	id := ev.EventID()
	out := make([]*Occurrence, 0, len(persisted))
	for _, p := range persisted {
		if p.EventID == id {
			out = append(out, p)
		}
	}
	return out
}
