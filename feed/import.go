package feed

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/teambition/rrule-go"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
)

// Imported is the result of reading an iCalendar document: the master
// events and the overrides attached to them.
type Imported struct {
	Events      []*schedule.Event
	Occurrences []*schedule.Occurrence
}

// ImportEvents decodes the VEVENTs of r into events filed under calendarID.
func ImportEvents(r io.Reader, calendarID string) ([]*schedule.Event, error) {
	im, err := Import(r, calendarID)
	if err != nil {
		return nil, err
	}
	return im.Events, nil
}

// Import decodes r. RRULEs are mapped onto the rule parameter grammar with
// UNTIL becoming the end of recurrence; EXDATEs become cancelled
// occurrences and RECURRENCE-ID components moved ones.
func Import(r io.Reader, calendarID string) (*Imported, error) {
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode calendar: %w", err)
	}

	im := &Imported{}
	masters := make(map[string]*schedule.Event)
	var overrides []ical.Event

	for _, vevent := range cal.Events() {
		if vevent.Props.Get(ical.PropRecurrenceID) != nil {
			overrides = append(overrides, vevent)
			continue
		}
		ev, exdates, err := toEvent(vevent.Component, calendarID)
		if err != nil {
			return nil, err
		}
		masters[ev.ID] = ev
		im.Events = append(im.Events, ev)
		for _, ex := range exdates {
			occ := ev.MakeOccurrence(ex, ex.Add(ev.Duration()))
			occ.Cancel()
			im.Occurrences = append(im.Occurrences, occ)
		}
	}

	for _, vevent := range overrides {
		occ, err := toOverride(vevent.Component, masters)
		if err != nil {
			return nil, err
		}
		im.Occurrences = append(im.Occurrences, occ)
	}
	return im, nil
}

func toEvent(comp *ical.Component, calendarID string) (*schedule.Event, []time.Time, error) {
	uid, _ := comp.Props.Text(ical.PropUID)
	if uid == "" {
		uid = uuid.NewString()
	}
	start, end, ok := basicTimes(comp)
	if !ok {
		return nil, nil, fmt.Errorf("event %s: %w: missing DTSTART", uid, schedule.ErrInvalidEvent)
	}

	ev := &schedule.Event{
		ID:         uid,
		CalendarID: calendarID,
		Start:      start,
		End:        end,
	}
	ev.Title, _ = comp.Props.Text(ical.PropSummary)
	ev.Description, _ = comp.Props.Text(ical.PropDescription)
	ev.Color, _ = comp.Props.Text(ical.PropColor)

	if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil && prop.Value != "" {
		rule, until, err := ruleFromRRule(prop.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("event %s: %w", uid, err)
		}
		ev.Rule = &rule
		ev.EndRecurringPeriod = until
	}
	if err := ev.Validate(); err != nil {
		return nil, nil, fmt.Errorf("event %s: %w", uid, err)
	}

	var exdates []time.Time
	for _, prop := range comp.Props.Values(ical.PropExceptionDates) {
		exdates = append(exdates, parseDateList(prop.Value, prop.Params)...)
	}
	return ev, exdates, nil
}

func toOverride(comp *ical.Component, masters map[string]*schedule.Event) (*schedule.Occurrence, error) {
	uid, _ := comp.Props.Text(ical.PropUID)
	ev, ok := masters[uid]
	if !ok {
		return nil, fmt.Errorf("override of %s: %w", uid, schedule.ErrNotFound)
	}
	prop := comp.Props.Get(ical.PropRecurrenceID)
	original, err := parseDateTime(prop.Value, prop.Params)
	if err != nil {
		return nil, fmt.Errorf("override of %s: bad RECURRENCE-ID: %w", uid, err)
	}
	start, end, ok := basicTimes(comp)
	if !ok {
		start, end = original, original.Add(ev.Duration())
	}

	occ := ev.MakeOccurrence(original, original.Add(ev.Duration()))
	occ.Move(start, end)
	if title, err := comp.Props.Text(ical.PropSummary); err == nil && title != "" {
		occ.Title = title
	}
	if desc, err := comp.Props.Text(ical.PropDescription); err == nil && desc != "" {
		occ.Description = desc
	}
	if status, err := comp.Props.Text(ical.PropStatus); err == nil && strings.EqualFold(status, "CANCELLED") {
		occ.Cancel()
	}
	return occ, nil
}

// basicTimes reads DTSTART and derives the end from DTEND or DURATION.
// A date-only event without an end lasts one day; a timed one without an
// end is reported as missing, since events need a positive duration.
func basicTimes(comp *ical.Component) (start, end time.Time, ok bool) {
	start, err := comp.Props.DateTime(ical.PropDateTimeStart, nil)
	if err != nil {
		return start, end, false
	}
	if dtend, err := comp.Props.DateTime(ical.PropDateTimeEnd, nil); err == nil {
		end = dtend
	} else if durationProp := comp.Props.Get(ical.PropDuration); durationProp != nil {
		d, err := durationProp.Duration()
		if err != nil {
			return start, end, false
		}
		end = start.Add(d)
	} else if isAllDayDate(start) {
		end = start.AddDate(0, 0, 1)
	} else {
		return start, end, false
	}
	return start, end, true
}

// ruleFromRRule maps an RFC 5545 RRULE onto a Rule. Positional weekday
// prefixes such as 2TU have no equivalent in the parameter grammar and are
// reduced to the plain weekday.
func ruleFromRRule(value string) (recurrence.Rule, mo.Option[time.Time], error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return recurrence.Rule{}, mo.None[time.Time](), fmt.Errorf("bad RRULE %q: %w", value, err)
	}
	freq, err := recurrence.ParseFrequency(opt.Freq.String())
	if err != nil {
		return recurrence.Rule{}, mo.None[time.Time](), err
	}

	params := recurrence.Params{}
	setInts := func(key string, values []int) {
		if len(values) == 0 {
			return
		}
		p := make(recurrence.Param, len(values))
		for i, v := range values {
			p[i] = recurrence.Token{Int: v}
		}
		params[key] = p
	}

	if opt.Count > 0 {
		setInts(recurrence.KeyCount, []int{opt.Count})
	}
	if opt.Interval > 1 {
		setInts(recurrence.KeyInterval, []int{opt.Interval})
	}
	if strings.Contains(strings.ToUpper(value), "WKST=") {
		params[recurrence.KeyWkst] = recurrence.Param{{Int: opt.Wkst.Day(), Weekday: true}}
	}
	setInts(recurrence.KeyBySetPos, opt.Bysetpos)
	setInts(recurrence.KeyByMonth, opt.Bymonth)
	setInts(recurrence.KeyByMonthDay, opt.Bymonthday)
	setInts(recurrence.KeyByYearDay, opt.Byyearday)
	setInts(recurrence.KeyByWeekNo, opt.Byweekno)
	setInts(recurrence.KeyByHour, opt.Byhour)
	setInts(recurrence.KeyByMinute, opt.Byminute)
	setInts(recurrence.KeyBySecond, opt.Bysecond)
	setInts(recurrence.KeyByEaster, opt.Byeaster)
	if len(opt.Byweekday) > 0 {
		days := make(recurrence.Param, len(opt.Byweekday))
		for i, wd := range opt.Byweekday {
			days[i] = recurrence.Token{Int: wd.Day(), Weekday: true}
		}
		params[recurrence.KeyByWeekday] = days
	}

	until := mo.None[time.Time]()
	if !opt.Until.IsZero() {
		until = mo.Some(opt.Until)
	}
	return recurrence.Rule{Name: freq.String(), Frequency: freq, Params: params.String()}, until, nil
}

// parseDateList splits a multi-valued date property such as EXDATE.
func parseDateList(value string, params ical.Params) []time.Time {
	var out []time.Time
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if t, err := parseDateTime(part, params); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// parseDateTime reads one DATE or DATE-TIME value, honouring VALUE=DATE
// and TZID.
func parseDateTime(value string, params ical.Params) (time.Time, error) {
	if strings.EqualFold(params.Get("VALUE"), "DATE") {
		return time.ParseInLocation("20060102", value, time.UTC)
	}
	if strings.HasSuffix(value, "Z") {
		return time.Parse("20060102T150405Z", value)
	}

	loc := time.UTC
	if tzid := params.Get("TZID"); tzid != "" {
		l, err := time.LoadLocation(tzid)
		if err != nil {
			return time.Time{}, err
		}
		loc = l
	}
	if t, err := time.ParseInLocation("20060102T150405", value, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("20060102", value, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, errors.New("unrecognised date " + value)
}

// isAllDayDate checks if a time represents an all-day date (time part is midnight)
func isAllDayDate(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0
}
