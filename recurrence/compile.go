package recurrence

import (
	"fmt"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// Stream is a compiled rule: an ordered, possibly infinite, sequence of
// start instants in a fixed location.
type Stream struct {
	rule    *rrule.RRule
	loc     *time.Location
	bounded bool
}

type bound struct{ min, max int }

// Values outside these ranges are dropped before compiling.
var paramBounds = map[string]struct {
	bound
	signed bool
}{
	KeyBySecond:   {bound{0, 59}, false},
	KeyByMinute:   {bound{0, 59}, false},
	KeyByHour:     {bound{0, 23}, false},
	KeyByMonthDay: {bound{1, 31}, true},
	KeyByYearDay:  {bound{1, 366}, true},
	KeyByWeekNo:   {bound{1, 53}, true},
	KeyByMonth:    {bound{1, 12}, false},
	KeyBySetPos:   {bound{1, 366}, true},
}

// Compile turns rule into a Stream starting at start.
//
// Expansion happens on the wall clock of loc (start's own location when loc
// is nil), so a 09:00 rule stays at 09:00 local on both sides of a DST
// change. endOfRecurrence, when present, is an inclusive upper bound.
func Compile(rule Rule, start time.Time, endOfRecurrence mo.Option[time.Time], loc *time.Location) (*Stream, error) {
	if !rule.Frequency.Valid() {
		return nil, fmt.Errorf("invalid frequency %d", int(rule.Frequency))
	}
	if loc == nil {
		loc = start.Location()
	}
	dtstart := start.In(loc)

	params := narrow(clampParams(rule.ParsedParams()), rule.Frequency, dtstart)
	opt := rrule.ROption{
		Freq:    rule.Frequency.RRule(),
		Dtstart: dtstart,
	}
	until := applyParams(&opt, params, loc)

	if eor, ok := endOfRecurrence.Get(); ok {
		eor = eor.In(loc)
		if u, set := until.Get(); !set || eor.Before(u) {
			until = mo.Some(eor)
		}
	}
	if u, ok := until.Get(); ok {
		opt.Until = u
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule %q: %w", rule.Params, err)
	}
	return &Stream{
		rule:    r,
		loc:     loc,
		bounded: opt.Count > 0 || !opt.Until.IsZero(),
	}, nil
}

// clampParams drops values the underlying library would reject. Weekday
// codes only make sense for byweekday and wkst.
func clampParams(params Params) Params {
	out := params.Clone()
	for key, values := range out {
		if key == KeyByWeekday || key == KeyWkst {
			continue
		}
		b, bounded := paramBounds[key]
		var kept Param
		for _, t := range values {
			if t.Weekday {
				continue
			}
			n := t.Int
			if !bounded || (n >= b.min && n <= b.max) || (b.signed && n <= -b.min && n >= -b.max) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(out, key)
			continue
		}
		out[key] = kept
	}
	return out
}

// narrow pins each by-parameter finer than the frequency to the start's own
// value when the start already satisfies it, keeping the start's offset
// inside every period.
func narrow(params Params, freq Frequency, start time.Time) Params {
	derived := map[string]int{
		KeyByMonth:    int(start.Month()),
		KeyByMonthDay: start.Day(),
		KeyByWeekday:  (int(start.Weekday()) + 6) % 7,
		KeyByHour:     start.Hour(),
		KeyByMinute:   start.Minute(),
		KeyBySecond:   start.Second(),
	}
	for key, value := range derived {
		p, ok := params.Get(key)
		if !ok || paramRanks[key] <= freq.Rank() {
			continue
		}
		if p.Contains(value) {
			params[key] = Param{{Int: value, Weekday: key == KeyByWeekday}}
		}
	}
	return params
}

func applyParams(opt *rrule.ROption, params Params, loc *time.Location) mo.Option[time.Time] {
	until := mo.None[time.Time]()
	for key, p := range params {
		switch key {
		case KeyCount:
			if n := p[0].Int; n > 0 {
				opt.Count = n
			}
		case KeyInterval:
			if n := p[0].Int; n > 0 {
				opt.Interval = n
			}
		case KeyWkst:
			if wd := p[:1].Weekdays(); len(wd) == 1 {
				opt.Wkst = wd[0]
			}
		case KeyUntil:
			until = parseUntil(p[0].Int, loc)
		case KeyBySetPos:
			opt.Bysetpos = p.Ints()
		case KeyByMonth:
			opt.Bymonth = p.Ints()
		case KeyByMonthDay:
			opt.Bymonthday = p.Ints()
		case KeyByYearDay:
			opt.Byyearday = p.Ints()
		case KeyByWeekNo:
			opt.Byweekno = p.Ints()
		case KeyByWeekday:
			opt.Byweekday = p.Weekdays()
		case KeyByHour:
			opt.Byhour = p.Ints()
		case KeyByMinute:
			opt.Byminute = p.Ints()
		case KeyBySecond:
			opt.Bysecond = p.Ints()
		case KeyByEaster:
			opt.Byeaster = p.Ints()
		}
	}
	return until
}

// parseUntil reads YYYYMMDD (through the end of that day) or YYYYMMDDhhmmss.
func parseUntil(n int, loc *time.Location) mo.Option[time.Time] {
	s := fmt.Sprintf("%d", n)
	switch len(s) {
	case 8:
		t, err := time.ParseInLocation("20060102", s, loc)
		if err != nil {
			return mo.None[time.Time]()
		}
		return mo.Some(t.AddDate(0, 0, 1).Add(-time.Second))
	case 14:
		t, err := time.ParseInLocation("20060102150405", s, loc)
		if err != nil {
			return mo.None[time.Time]()
		}
		return mo.Some(t)
	}
	return mo.None[time.Time]()
}

// Location is the zone every emitted instant carries.
func (s *Stream) Location() *time.Location {
	return s.loc
}

// Bounded reports whether the stream is finite because of count, until or an
// end of recurrence.
func (s *Stream) Bounded() bool {
	return s.bounded
}

// Iterator returns a lazy cursor over the stream.
func (s *Stream) Iterator() func() (time.Time, bool) {
	return s.rule.Iterator()
}

// After returns the first start after t (at or after t when inc is set).
func (s *Stream) After(t time.Time, inc bool) mo.Option[time.Time] {
	return fromZero(s.rule.After(t, inc))
}

// Before returns the last start before t (at or before t when inc is set).
func (s *Stream) Before(t time.Time, inc bool) mo.Option[time.Time] {
	return fromZero(s.rule.Before(t, inc))
}

// Between lists the starts inside [a, b] (inc) or (a, b).
func (s *Stream) Between(a, b time.Time, inc bool) []time.Time {
	return s.rule.Between(a, b, inc)
}

// RRuleString renders the compiled rule in RFC 5545 form, without DTSTART.
func (s *Stream) RRuleString() string {
	return s.rule.OrigOptions.RRuleString()
}

func fromZero(t time.Time) mo.Option[time.Time] {
	if t.IsZero() {
		return mo.None[time.Time]()
	}
	return mo.Some(t)
}
