package schedule

import (
	"fmt"
	"time"
)

// State is where an occurrence sits in its lifecycle.
type State int

const (
	StateGenerated State = iota
	StatePersisted
	StateMoved
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateGenerated:
		return "generated"
	case StatePersisted:
		return "persisted"
	case StateMoved:
		return "moved"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// OccurrenceKey identifies an occurrence independently of any move.
type OccurrenceKey struct {
	EventID       string
	OriginalStart int64
	OriginalEnd   int64
}

// KeyFor builds the key of eventID's occurrence originally at [start, end).
func KeyFor(eventID string, start, end time.Time) OccurrenceKey {
	return OccurrenceKey{
		EventID:       eventID,
		OriginalStart: start.UnixNano(),
		OriginalEnd:   end.UnixNano(),
	}
}

// OccurrenceLike is the read side of an occurrence used by classification.
type OccurrenceLike interface {
	Key() OccurrenceKey
	OccurrenceStart() time.Time
	OccurrenceEnd() time.Time
	IsCancelled() bool
}

// Occurrence is one concrete instance of an event. Generated occurrences
// have no ID; persisted ones carry the override state.
type Occurrence struct {
	ID      string
	EventID string
	// Event is a non-owning back reference; it may be nil for occurrences
	// loaded without their event.
	Event         EventLike `json:"-"`
	Title         string
	Description   string
	Start         time.Time
	End           time.Time
	Cancelled     bool
	OriginalStart time.Time
	OriginalEnd   time.Time
	CreatedOn     time.Time
	UpdatedOn     time.Time
}

func (o *Occurrence) Key() OccurrenceKey {
	return KeyFor(o.EventID, o.OriginalStart, o.OriginalEnd)
}

func (o *Occurrence) OccurrenceStart() time.Time { return o.Start }
func (o *Occurrence) OccurrenceEnd() time.Time { return o.End }
func (o *Occurrence) IsCancelled() bool { return o.Cancelled }

// Persisted reports whether the occurrence has been saved.
func (o *Occurrence) Persisted() bool {
	return o.ID != ""
}

// Moved reports whether start or end differ from the originals.
func (o *Occurrence) Moved() bool {
	return !o.Start.Equal(o.OriginalStart) || !o.End.Equal(o.OriginalEnd)
}

// State derives the lifecycle state. Cancellation wins over a move.
func (o *Occurrence) State() State {
	switch {
	case !o.Persisted():
		return StateGenerated
	case o.Cancelled:
		return StateCancelled
	case o.Moved():
		return StateMoved
	}
	return StatePersisted
}

// Move reschedules the occurrence. The originals are never touched.
func (o *Occurrence) Move(start, end time.Time) {
	o.Start = start
	o.End = end
}

// Cancel marks the occurrence cancelled.
func (o *Occurrence) Cancel() {
	o.Cancelled = true
}

// Uncancel clears the cancelled flag, keeping any move.
func (o *Occurrence) Uncancel() {
	o.Cancelled = false
}

// Inherit attaches ev and fills a blank title or description from it.
func (o *Occurrence) Inherit(ev EventLike) {
	if ev == nil {
		return
	}
	o.Event = ev
	if o.EventID == "" {
		o.EventID = ev.EventID()
	}
	if o.Title == "" {
		o.Title = ev.EventTitle()
	}
	if o.Description == "" {
		o.Description = ev.EventDescription()
	}
}

// Equal compares identity: same event and same original span.
func (o *Occurrence) Equal(other *Occurrence) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.Key() == other.Key()
}

// Less is the natural ordering of occurrences: by end time.
func (o *Occurrence) Less(other *Occurrence) bool {
	return o.End.Before(other.End)
}

// Clone returns a shallow copy sharing the event back reference.
func (o *Occurrence) Clone() *Occurrence {
	c := *o
	return &c
}

func (o *Occurrence) String() string {
	return fmt.Sprintf("%s: %s to %s", o.Title, o.Start.Format(time.RFC3339), o.End.Format(time.RFC3339))
}

// CascadeShift applies an event edit to persisted occurrences: originals
// move by the deltas, the user's own start and end stay put.
func CascadeShift(occs []*Occurrence, deltaStart, deltaEnd time.Duration) {
	for _, o := range occs {
		o.OriginalStart = o.OriginalStart.Add(deltaStart)
		o.OriginalEnd = o.OriginalEnd.Add(deltaEnd)
	}
}

// byStartThenEnd orders occurrences chronologically, which is the order
// every expansion result is returned in.
func byStartThenEnd(a, b *Occurrence) bool {
	if !a.Start.Equal(b.Start) {
		return a.Start.Before(b.Start)
	}
	return a.End.Before(b.End)
}
