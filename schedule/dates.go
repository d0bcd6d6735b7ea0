package schedule

import (
	"strconv"
	"time"
)

var dateFields = []struct {
	name string
	def  int
}{
	{"year", 1},
	{"month", 1},
	{"day", 1},
	{"hour", 0},
	{"minute", 0},
	{"second", 0},
}

// CoerceDateDict reads year, month, day, hour, minute and second from a
// request-style mapping. Reading stops at the first missing key; later
// fields keep their defaults. With no date key at all the result is empty.
func CoerceDateDict(values map[string]string) (map[string]int, error) {
	out := make(map[string]int, len(dateFields))
	found := false
	for _, f := range dateFields {
		raw, ok := values[f.name]
		if !ok {
			break
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &DateInputError{Field: f.name, Value: raw, Err: err}
		}
		out[f.name] = n
		found = true
	}
	if !found {
		return map[string]int{}, nil
	}
	for _, f := range dateFields {
		if _, ok := out[f.name]; !ok {
			out[f.name] = f.def
		}
	}
	return out, nil
}

// DateFromDict turns a coerced mapping into an instant in loc. Out of range
// fields are rejected instead of normalized, so month 13 is an error.
func DateFromDict(d map[string]int, loc *time.Location) (time.Time, error) {
	if len(d) == 0 {
		return time.Time{}, &DateInputError{Field: "year", Value: ""}
	}
	if loc == nil {
		loc = time.UTC
	}
	t := time.Date(d["year"], time.Month(d["month"]), d["day"], d["hour"], d["minute"], d["second"], 0, loc)
	if t.Year() != d["year"] || int(t.Month()) != d["month"] || t.Day() != d["day"] ||
		t.Hour() != d["hour"] || t.Minute() != d["minute"] || t.Second() != d["second"] {
		return time.Time{}, &DateInputError{Field: "date", Value: t.String()}
	}
	return t, nil
}
