package feed

import (
	"fmt"
	"sort"
	"time"

	"github.com/emersion/go-ical"
)

const (
	// zoneHorizon is how far past the last written time (or now, whichever
	// is later) offset changes are still listed, so open-ended rules keep
	// resolving in the reader.
	zoneHorizon = 10

	maxObservances = 512

	localDateTime = "20060102T150405"
)

type zoneSpan struct {
	loc      *time.Location
	from, to time.Time
}

// zoneSpans collects the span of times written with a TZID, per zone.
type zoneSpans map[string]*zoneSpan

func (z zoneSpans) add(t time.Time) {
	loc := t.Location()
	if loc == time.UTC {
		return
	}
	span, ok := z[loc.String()]
	if !ok {
		z[loc.String()] = &zoneSpan{loc: loc, from: t, to: t}
		return
	}
	if t.Before(span.from) {
		span.from = t
	}
	if t.After(span.to) {
		span.to = t
	}
}

// components renders one VTIMEZONE per zone, sorted by TZID.
func (z zoneSpans) components(now time.Time) []*ical.Component {
	names := make([]string, 0, len(z))
	for name := range z {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*ical.Component, 0, len(names))
	for _, name := range names {
		span := z[name]
		to := span.to
		if now.After(to) {
			to = now
		}
		out = append(out, timezoneComponent(span.loc, span.from, to.AddDate(zoneHorizon, 0, 0)))
	}
	return out
}

// timezoneComponent describes loc between from and to: the observance in
// force at from, then one per offset change, each pinned with RDATE.
func timezoneComponent(loc *time.Location, from, to time.Time) *ical.Component {
	tz := ical.NewComponent(ical.CompTimezone)
	tz.Props.SetText(ical.PropTimezoneID, loc.String())

	t := from.In(loc)
	onset, _ := t.ZoneBounds()
	if onset.IsZero() {
		onset = t
	}
	tz.Children = append(tz.Children, observance(onset.In(loc)))

	for i := 0; i < maxObservances; i++ {
		_, end := t.ZoneBounds()
		if end.IsZero() || end.After(to) {
			break
		}
		t = end.In(loc)
		tz.Children = append(tz.Children, observance(t))
	}
	return tz
}

// observance starts at onset. DTSTART is the wall clock of the offset being
// left, as RFC 5545 reads it.
func observance(onset time.Time) *ical.Component {
	abbrev, offsetTo := onset.Zone()
	_, offsetFrom := onset.Add(-time.Second).Zone()

	name := ical.CompTimezoneStandard
	if onset.IsDST() {
		name = ical.CompTimezoneDaylight
	}
	comp := ical.NewComponent(name)

	wall := onset.In(time.FixedZone("", offsetFrom)).Format(localDateTime)
	setRaw(comp, ical.PropDateTimeStart, wall)
	setRaw(comp, ical.PropRecurrenceDates, wall)
	setRaw(comp, ical.PropTimezoneOffsetFrom, utcOffset(offsetFrom))
	setRaw(comp, ical.PropTimezoneOffsetTo, utcOffset(offsetTo))
	if abbrev != "" {
		comp.Props.SetText(ical.PropTimezoneName, abbrev)
	}
	return comp
}

// setRaw stores value as is, with the property's default value type.
func setRaw(comp *ical.Component, name, value string) {
	prop := ical.NewProp(name)
	prop.Value = value
	comp.Props.Set(prop)
}

// utcOffset formats seconds east of UTC as ±hhmm[ss].
func utcOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	h, m, s := seconds/3600, seconds/60%60, seconds%60
	if s != 0 {
		return fmt.Sprintf("%c%02d%02d%02d", sign, h, m, s)
	}
	return fmt.Sprintf("%c%02d%02d", sign, h, m)
}
