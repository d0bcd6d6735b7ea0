package recurrence

import (
	"sort"
	"strconv"
	"strings"

	"github.com/teambition/rrule-go"
)

// Parameter keys understood by the compiler.
const (
	KeyCount      = "count"
	KeyUntil      = "until"
	KeyInterval   = "interval"
	KeyWkst       = "wkst"
	KeyBySetPos   = "bysetpos"
	KeyByMonth    = "bymonth"
	KeyByMonthDay = "bymonthday"
	KeyByYearDay  = "byyearday"
	KeyByWeekNo   = "byweekno"
	KeyByWeekday  = "byweekday"
	KeyByHour     = "byhour"
	KeyByMinute   = "byminute"
	KeyBySecond   = "bysecond"
	KeyByEaster   = "byeaster"
)

var knownKeys = map[string]bool{
	KeyCount: true, KeyUntil: true, KeyInterval: true, KeyWkst: true,
	KeyBySetPos: true, KeyByMonth: true, KeyByMonthDay: true, KeyByYearDay: true,
	KeyByWeekNo: true, KeyByWeekday: true, KeyByHour: true, KeyByMinute: true,
	KeyBySecond: true, KeyByEaster: true,
}

// paramRanks places each by-* key on the same scale as Frequency.Rank.
var paramRanks = map[string]int{
	KeyByYearDay:  1,
	KeyByMonth:    1,
	KeyByMonthDay: 2,
	KeyByWeekNo:   2,
	KeyByWeekday:  3,
	KeyByHour:     4,
	KeyByMinute:   5,
	KeyBySecond:   6,
}

var weekdayCodes = [...]string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

var rruleWeekdays = [...]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// Token is one value of a parameter: an integer or a weekday code.
// Weekdays use 0=Monday through 6=Sunday in Int.
type Token struct {
	Int     int
	Weekday bool
}

func (t Token) String() string {
	if t.Weekday && t.Int >= 0 && t.Int < len(weekdayCodes) {
		return weekdayCodes[t.Int]
	}
	return strconv.Itoa(t.Int)
}

func parseToken(s string) (Token, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return Token{Int: n}, true
	}
	upper := strings.ToUpper(s)
	for i, code := range weekdayCodes {
		if upper == code {
			return Token{Int: i, Weekday: true}, true
		}
	}
	return Token{}, false
}

// Param is the ordered value list of one key. A single value is a scalar.
type Param []Token

// IsScalar reports whether the parameter was given a single value.
func (p Param) IsScalar() bool {
	return len(p) == 1
}

// Ints returns the integer form of every token.
func (p Param) Ints() []int {
	out := make([]int, 0, len(p))
	for _, t := range p {
		out = append(out, t.Int)
	}
	return out
}

// Weekdays returns tokens in the 0..6 range as rrule weekdays.
func (p Param) Weekdays() []rrule.Weekday {
	out := make([]rrule.Weekday, 0, len(p))
	for _, t := range p {
		if t.Int < 0 || t.Int >= len(rruleWeekdays) {
			continue
		}
		out = append(out, rruleWeekdays[t.Int])
	}
	return out
}

// Contains reports whether n is one of the parameter's integer values.
func (p Param) Contains(n int) bool {
	for _, t := range p {
		if t.Int == n {
			return true
		}
	}
	return false
}

func (p Param) String() string {
	parts := make([]string, len(p))
	for i, t := range p {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}

// Params is a parsed parameter mapping keyed by lower-case name.
type Params map[string]Param

// ParseParams parses "key:v[,v]*(;key:v[,v]*)*". It never fails: entries
// without exactly one colon, unknown keys and unparseable values are dropped.
func ParseParams(text string) Params {
	params := Params{}
	if strings.TrimSpace(text) == "" {
		return params
	}
	for _, entry := range strings.Split(text, ";") {
		kv := strings.Split(entry, ":")
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		if !knownKeys[key] {
			continue
		}
		var values Param
		for _, raw := range strings.Split(kv[1], ",") {
			if tok, ok := parseToken(raw); ok {
				values = append(values, tok)
			}
		}
		if len(values) == 0 {
			continue
		}
		params[key] = values
	}
	return params
}

// Get returns the parameter for key, if present.
func (p Params) Get(key string) (Param, bool) {
	v, ok := p[key]
	return v, ok && len(v) > 0
}

// Clone returns a copy that can be narrowed without touching p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = append(Param(nil), v...)
	}
	return out
}

// String renders the canonical textual form with keys sorted.
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+p[k].String())
	}
	return strings.Join(parts, ";")
}
