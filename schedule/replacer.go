package schedule

import (
	"sort"
	"time"

	"github.com/cyp0633/libschedule/internal/timeutil"
)

// Replacer swaps generated occurrences for their persisted overrides.
//
// Get removes what it returns, so after a pass over the generated
// occurrences ExtrasIn yields only overrides that moved into the window from
// elsewhere. A Replacer must not be shared between concurrent expansions.
type Replacer struct {
	index         map[OccurrenceKey]*Occurrence
	showCancelled bool
}

// NewReplacer indexes persisted by (event, original start, original end).
func NewReplacer(persisted []*Occurrence, showCancelled bool) *Replacer {
	r := &Replacer{
		index:         make(map[OccurrenceKey]*Occurrence, len(persisted)),
		showCancelled: showCancelled,
	}
	for _, p := range persisted {
		r.index[p.Key()] = p
	}
	return r
}

// Has reports whether occ has a persisted counterpart still in the index.
func (r *Replacer) Has(occ *Occurrence) bool {
	_, ok := r.index[occ.Key()]
	return ok
}

// Get returns the persisted counterpart of occ and drops it from the index,
// or occ itself when there is none.
func (r *Replacer) Get(occ *Occurrence) *Occurrence {
	key := occ.Key()
	p, ok := r.index[key]
	if !ok {
		return occ
	}
	delete(r.index, key)
	if p.Event == nil {
		p.Inherit(occ.Event)
	}
	return p
}

// ExtrasIn lists unmatched overrides whose current span meets [start, end),
// skipping cancelled ones unless cancelled occurrences are shown.
func (r *Replacer) ExtrasIn(start, end time.Time) []*Occurrence {
	var out []*Occurrence
	for _, p := range r.index {
		if !timeutil.Overlaps(p.Start, p.End, start, end) {
			continue
		}
		if p.Cancelled && !r.showCancelled {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return byStartThenEnd(out[i], out[j]) })
	return out
}

// Len is the number of overrides not yet handed out.
func (r *Replacer) Len() int {
	return len(r.index)
}
