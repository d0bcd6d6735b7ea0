package recurrence

import (
	"fmt"
	"strings"

	"github.com/teambition/rrule-go"
)

// Frequency is the period on which a rule repeats.
type Frequency int

const (
	Yearly Frequency = iota
	Monthly
	Weekly
	Daily
	Hourly
	Minutely
	Secondly
)

var frequencyNames = [...]string{"YEARLY", "MONTHLY", "WEEKLY", "DAILY", "HOURLY", "MINUTELY", "SECONDLY"}

func (f Frequency) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Frequency(%d)", int(f))
	}
	return frequencyNames[f]
}

// Valid reports whether f is one of the seven frequencies.
func (f Frequency) Valid() bool {
	return f >= Yearly && f <= Secondly
}

// Rank orders frequencies from coarsest (Yearly) to finest (Secondly).
func (f Frequency) Rank() int {
	return int(f)
}

// RRule maps the frequency onto the rrule-go constant.
func (f Frequency) RRule() rrule.Frequency {
	switch f {
	case Yearly:
		return rrule.YEARLY
	case Monthly:
		return rrule.MONTHLY
	case Weekly:
		return rrule.WEEKLY
	case Daily:
		return rrule.DAILY
	case Hourly:
		return rrule.HOURLY
	case Minutely:
		return rrule.MINUTELY
	default:
		return rrule.SECONDLY
	}
}

// ParseFrequency accepts the upper or lower case name of a frequency.
func ParseFrequency(s string) (Frequency, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range frequencyNames {
		if n == name {
			return Frequency(i), nil
		}
	}
	return 0, fmt.Errorf("unknown frequency %q", s)
}

// Rule describes how an event repeats: a frequency plus by-* parameters in
// the textual "key:v,v;key:v" form.
type Rule struct {
	ID          string
	Name        string
	Description string
	Frequency   Frequency
	Params      string
}

// ParsedParams parses r.Params, dropping anything malformed.
func (r Rule) ParsedParams() Params {
	return ParseParams(r.Params)
}

func (r Rule) String() string {
	return fmt.Sprintf("Rule %s params %s", r.Name, r.Params)
}
