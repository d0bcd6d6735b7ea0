// Package feed renders calendars for other programs: iCalendar and xCal
// documents, iCalendar import, and the upcoming occurrences feed.
package feed

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
)

const ProductID = "-//libschedule//NONSGML v1.0//EN"

// Exporter turns events and their persisted occurrences into iCalendar.
type Exporter struct {
	now func() time.Time
	loc *time.Location
}

type Option func(*Exporter)

// WithClock sets the clock used for DTSTAMP.
func WithClock(now func() time.Time) Option {
	return func(x *Exporter) {
		x.now = now
	}
}

// WithLocation pins rule compilation and written times to loc. By default
// every event uses the zone of its own start.
func WithLocation(loc *time.Location) Option {
	return func(x *Exporter) {
		x.loc = loc
	}
}

func NewExporter(opts ...Option) *Exporter {
	x := &Exporter{now: time.Now}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// ExportCalendar encodes cal with the default exporter.
func ExportCalendar(cal *schedule.Calendar, events []*schedule.Event, persisted []*schedule.Occurrence) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewExporter().Encode(&buf, cal, events, persisted); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes the iCalendar document for cal to w.
func (x *Exporter) Encode(w io.Writer, cal *schedule.Calendar, events []*schedule.Event, persisted []*schedule.Occurrence) error {
	doc, err := x.Calendar(cal, events, persisted)
	if err != nil {
		return err
	}
	if err := ical.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

// Calendar builds the VCALENDAR. Every event becomes a VEVENT carrying its
// compiled RRULE; cancelled persisted occurrences become EXDATEs and moved
// ones become override VEVENTs keyed by RECURRENCE-ID.
func (x *Exporter) Calendar(cal *schedule.Calendar, events []*schedule.Event, persisted []*schedule.Occurrence) (*ical.Calendar, error) {
	doc := ical.NewCalendar()
	doc.Props.SetText(ical.PropVersion, "2.0")
	doc.Props.SetText(ical.PropProductID, ProductID)
	if cal != nil {
		doc.Props.SetText(ical.PropName, cal.Name)
	}

	now := x.now()
	stamp := now.UTC()
	zones := make(zoneSpans)
	byEvent := make(map[string][]*schedule.Occurrence)
	for _, occ := range persisted {
		byEvent[occ.EventID] = append(byEvent[occ.EventID], occ)
	}

	for _, ev := range events {
		master, err := x.eventComponent(ev, stamp, zones)
		if err != nil {
			return nil, err
		}
		doc.Children = append(doc.Children, master)

		if ev.Rule == nil {
			continue
		}
		for _, occ := range byEvent[ev.ID] {
			switch {
			case occ.Cancelled:
				exdate := ical.NewProp(ical.PropExceptionDates)
				exdate.SetDateTime(x.local(ev, occ.OriginalStart, zones))
				master.Props.Add(exdate)
			case occ.Moved():
				doc.Children = append(doc.Children, x.overrideComponent(ev, occ, stamp, zones))
			}
		}
	}
	// every TZID written above needs its definition
	doc.Children = append(zones.components(now), doc.Children...)
	return doc, nil
}

func (x *Exporter) location(ev *schedule.Event) *time.Location {
	if x.loc != nil {
		return x.loc
	}
	return ev.Start.Location()
}

// local expresses t in the event's zone so TZID matches the compiled rule,
// and records the zone for its VTIMEZONE. A zone without a usable name is
// written as UTC.
func (x *Exporter) local(ev *schedule.Event, t time.Time, zones zoneSpans) time.Time {
	loc := x.location(ev)
	if name := loc.String(); name == "" || name == "UTC" || name == "Local" {
		return t.UTC()
	}
	t = t.In(loc)
	zones.add(t)
	return t
}

func (x *Exporter) eventComponent(ev *schedule.Event, stamp time.Time, zones zoneSpans) (*ical.Component, error) {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, ev.ID)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	comp.Props.SetText(ical.PropSummary, ev.Title)
	if ev.Description != "" {
		comp.Props.SetText(ical.PropDescription, ev.Description)
	}
	comp.Props.SetDateTime(ical.PropDateTimeStart, x.local(ev, ev.Start, zones))
	comp.Props.SetDateTime(ical.PropDateTimeEnd, x.local(ev, ev.End, zones))
	if !ev.UpdatedOn.IsZero() {
		comp.Props.SetDateTime(ical.PropLastModified, ev.UpdatedOn.UTC())
	}
	if ev.Color != "" {
		comp.Props.SetText(ical.PropColor, ev.Color)
	}

	if ev.Rule != nil {
		stream, err := recurrence.Compile(*ev.Rule, ev.Start, ev.EndRecurringPeriod, x.location(ev))
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		rrule := ical.NewProp(ical.PropRecurrenceRule)
		rrule.Value = stream.RRuleString()
		comp.Props.Set(rrule)
	}
	return comp, nil
}

func (x *Exporter) overrideComponent(ev *schedule.Event, occ *schedule.Occurrence, stamp time.Time, zones zoneSpans) *ical.Component {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, ev.ID)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	comp.Props.SetDateTime(ical.PropRecurrenceID, x.local(ev, occ.OriginalStart, zones))

	title := occ.Title
	if title == "" {
		title = ev.Title
	}
	comp.Props.SetText(ical.PropSummary, title)
	if occ.Description != "" {
		comp.Props.SetText(ical.PropDescription, occ.Description)
	}
	comp.Props.SetDateTime(ical.PropDateTimeStart, x.local(ev, occ.Start, zones))
	comp.Props.SetDateTime(ical.PropDateTimeEnd, x.local(ev, occ.End, zones))
	return comp
}
