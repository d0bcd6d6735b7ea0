package schedule

import (
	"fmt"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/libschedule/recurrence"
)

// EventLike is everything the expansion algorithms need from an event.
// Hosts with their own event types implement it instead of converting to
// *Event.
type EventLike interface {
	EventID() string
	EventStart() time.Time
	EventEnd() time.Time
	// RecurrenceRule is nil for a one-off event.
	RecurrenceRule() *recurrence.Rule
	RecurrenceEnd() mo.Option[time.Time]
	EventTitle() string
	EventDescription() string
	MakeOccurrence(start, end time.Time) *Occurrence
}

// Event is the authoritative record an occurrence set is derived from.
type Event struct {
	ID          string
	CalendarID  string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Rule        *recurrence.Rule
	// EndRecurringPeriod bounds rule expansion, inclusively.
	EndRecurringPeriod mo.Option[time.Time]
	CreatedOn          time.Time
	UpdatedOn          time.Time
	Creator            string
	Color              string
}

func (e *Event) EventID() string { return e.ID }
func (e *Event) EventStart() time.Time { return e.Start }
func (e *Event) EventEnd() time.Time { return e.End }
func (e *Event) RecurrenceRule() *recurrence.Rule { return e.Rule }
func (e *Event) RecurrenceEnd() mo.Option[time.Time] { return e.EndRecurringPeriod }
func (e *Event) EventTitle() string { return e.Title }
func (e *Event) EventDescription() string { return e.Description }

// MakeOccurrence materializes a generated occurrence of e at [start, end).
func (e *Event) MakeOccurrence(start, end time.Time) *Occurrence {
	return &Occurrence{
		EventID:       e.ID,
		Event:         e,
		Title:         e.Title,
		Description:   e.Description,
		Start:         start,
		End:           end,
		OriginalStart: start,
		OriginalEnd:   end,
	}
}

// Duration is the length of every generated occurrence.
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Validate checks end > start and, for recurring events, that the end of
// recurrence does not precede the start.
func (e *Event) Validate() error {
	if !e.End.After(e.Start) {
		return fmt.Errorf("%w: end %s is not after start %s", ErrInvalidEvent, e.End, e.Start)
	}
	if eor, ok := e.EndRecurringPeriod.Get(); ok && e.Rule != nil && eor.Before(e.Start) {
		return fmt.Errorf("%w: end of recurrence %s precedes start %s", ErrInvalidEvent, eor, e.Start)
	}
	return nil
}

// Shift returns how far start and end move when e is edited to [start, end).
func (e *Event) Shift(start, end time.Time) (time.Duration, time.Duration) {
	return start.Sub(e.Start), end.Sub(e.End)
}

func (e *Event) String() string {
	return fmt.Sprintf("%s: %s - %s", e.Title, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// EventBuilder assembles an Event from its required fields plus options.
type EventBuilder struct {
	ev Event
}

// NewEventBuilder starts an event with the fields every event needs.
func NewEventBuilder(title string, start, end time.Time, calendarID string) *EventBuilder {
	return &EventBuilder{ev: Event{
		Title:      title,
		Start:      start,
		End:        end,
		CalendarID: calendarID,
	}}
}

func (b *EventBuilder) WithID(id string) *EventBuilder {
	b.ev.ID = id
	return b
}

func (b *EventBuilder) WithRule(rule recurrence.Rule) *EventBuilder {
	b.ev.Rule = &rule
	return b
}

func (b *EventBuilder) WithEndRecurringPeriod(t time.Time) *EventBuilder {
	b.ev.EndRecurringPeriod = mo.Some(t)
	return b
}

func (b *EventBuilder) WithDescription(description string) *EventBuilder {
	b.ev.Description = description
	return b
}

func (b *EventBuilder) WithColor(color string) *EventBuilder {
	b.ev.Color = color
	return b
}

func (b *EventBuilder) WithCreator(creator string) *EventBuilder {
	b.ev.Creator = creator
	return b
}

// Build validates and returns the event.
func (b *EventBuilder) Build() (*Event, error) {
	ev := b.ev
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}
