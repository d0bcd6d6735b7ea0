package recurrence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/teambition/rrule-go"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Params
	}{
		{
			name:  "scalars and lists",
			input: "count:1;bysecond:1;byminute:1,2,4,5",
			expected: Params{
				"count":    Param{{Int: 1}},
				"bysecond": Param{{Int: 1}},
				"byminute": Param{{Int: 1}, {Int: 2}, {Int: 4}, {Int: 5}},
			},
		},
		{
			name:  "weekday codes are case insensitive",
			input: "BYWEEKDAY:MO,we",
			expected: Params{
				"byweekday": Param{{Int: 0, Weekday: true}, {Int: 2, Weekday: true}},
			},
		},
		{
			name:  "malformed values are dropped",
			input: "byweekday:FR,xx;bysetpos:-1",
			expected: Params{
				"byweekday": Param{{Int: 4, Weekday: true}},
				"bysetpos":  Param{{Int: -1}},
			},
		},
		{
			name:     "entry with only bad values disappears",
			input:    "byhour:noon",
			expected: Params{},
		},
		{
			name:     "unknown keys are ignored",
			input:    "colour:3;count:2",
			expected: Params{"count": Param{{Int: 2}}},
		},
		{
			name:     "entries without a single colon are skipped",
			input:    "count;byhour:1:2;bymonth:3",
			expected: Params{"bymonth": Param{{Int: 3}}},
		},
		{name: "empty", input: "", expected: Params{}},
		{name: "blank", input: "   ", expected: Params{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseParams(tt.input))
		})
	}
}

func TestParamScalar(t *testing.T) {
	params := ParseParams("count:1;byminute:1,2")

	count, ok := params.Get(KeyCount)
	assert.True(t, ok)
	assert.True(t, count.IsScalar())

	minutes, ok := params.Get(KeyByMinute)
	assert.True(t, ok)
	assert.False(t, minutes.IsScalar())
	assert.Equal(t, []int{1, 2}, minutes.Ints())
}

func TestParamWeekdays(t *testing.T) {
	p := ParseParams("byweekday:MO,4,9").Get
	wd, ok := p(KeyByWeekday)
	assert.True(t, ok)
	// 9 is not a weekday index and is skipped
	assert.Equal(t, []rrule.Weekday{rrule.MO, rrule.FR}, wd.Weekdays())
}

func TestParamsString(t *testing.T) {
	params := ParseParams("count:3;BYWEEKDAY:mo,FR;byhour:9")
	assert.Equal(t, "byhour:9;byweekday:MO,FR;count:3", params.String())
	assert.Equal(t, params, ParseParams(params.String()))
}

func TestParseFrequency(t *testing.T) {
	for i, name := range []string{"YEARLY", "monthly", "Weekly", "DAILY", "HOURLY", "MINUTELY", "SECONDLY"} {
		f, err := ParseFrequency(name)
		assert.NoError(t, err)
		assert.Equal(t, Frequency(i), f)
	}

	_, err := ParseFrequency("FORTNIGHTLY")
	assert.Error(t, err)
	assert.Equal(t, rrule.WEEKLY, Weekly.RRule())
	assert.Equal(t, "DAILY", Daily.String())
}
