package schedule

import (
	"time"
)

// OccurrenceIterator walks the occurrences of one event after an instant.
// It is not safe for concurrent use.
type OccurrenceIterator struct {
	ev       EventLike
	after    time.Time
	duration time.Duration
	next     func() (time.Time, bool)
	single   bool

	max        int
	iterations int
	capped     bool
	exhausted  bool

	replacer      *Replacer
	showCancelled bool
	// moved holds the keys of every moved override; their generated twins
	// are never yielded.
	moved map[OccurrenceKey]bool
	// pending are moved overrides starting after the bound, by start.
	pending []*Occurrence
	head    *Occurrence
}

// Next returns the following occurrence, or false once the sequence ends.
func (it *OccurrenceIterator) Next() (*Occurrence, bool) {
	gen := it.peek()
	if len(it.pending) > 0 && !it.capped && (gen == nil || !byStartThenEnd(gen, it.pending[0])) {
		p := it.pending[0]
		it.pending = it.pending[1:]
		return p, true
	}
	if gen == nil {
		return nil, false
	}
	it.head = nil
	return gen, true
}

// Collect drains the iterator into a slice.
func (it *OccurrenceIterator) Collect() []*Occurrence {
	var out []*Occurrence
	for {
		occ, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, occ)
	}
}

// peek fills head with the next generated occurrence that survives override
// handling, leaving it in place until Next consumes it.
func (it *OccurrenceIterator) peek() *Occurrence {
	for it.head == nil {
		start, ok := it.advance()
		if !ok {
			return nil
		}
		occ := it.ev.MakeOccurrence(start, start.Add(it.duration))
		if it.moved[occ.Key()] {
			continue
		}
		occ = it.replacer.Get(occ)
		if occ.Cancelled && !it.showCancelled {
			continue
		}
		it.head = occ
	}
	return it.head
}

// advance pulls the next start after the bound, counting it against max.
func (it *OccurrenceIterator) advance() (time.Time, bool) {
	if it.exhausted || it.capped {
		return time.Time{}, false
	}
	for {
		var start time.Time
		if it.single {
			it.exhausted = true
			start = it.ev.EventStart()
			if !start.After(it.after) {
				return time.Time{}, false
			}
		} else {
			s, ok := it.next()
			if !ok {
				it.exhausted = true
				return time.Time{}, false
			}
			if !s.After(it.after) {
				continue
			}
			start = s
		}
		if it.max > 0 && it.iterations >= it.max {
			it.capped = true
			return time.Time{}, false
		}
		it.iterations++
		return start, true
	}
}
