package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
)

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func loadLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

// recentEvent recurs weekly on Saturdays at 08:00 UTC until May 2008.
func recentEvent(t *testing.T) []schedule.EventLike {
	t.Helper()
	ev, err := schedule.NewEventBuilder("Recent Event", utc(2008, 1, 5, 8, 0), utc(2008, 1, 5, 9, 0), "cal").
		WithID("recent").
		WithRule(recurrence.Rule{Frequency: recurrence.Weekly}).
		WithEndRecurringPeriod(utc(2008, 5, 5, 0, 0)).
		Build()
	require.NoError(t, err)
	return []schedule.EventLike{ev}
}

func fixedClock(now time.Time) Option {
	opts := schedule.DefaultOptions()
	opts.Now = func() time.Time { return now }
	return WithOptions(opts)
}

func spans(occs []*schedule.Occurrence) [][2]time.Time {
	out := make([][2]time.Time, len(occs))
	for i, o := range occs {
		out[i] = [2]time.Time{o.Start.UTC(), o.End.UTC()}
	}
	return out
}

func TestPeriodOccurrences(t *testing.T) {
	p := New(recentEvent(t), nil, utc(2008, 1, 4, 7, 0), utc(2008, 1, 21, 7, 0))

	assert.Equal(t, [][2]time.Time{
		{utc(2008, 1, 5, 8, 0), utc(2008, 1, 5, 9, 0)},
		{utc(2008, 1, 12, 8, 0), utc(2008, 1, 12, 9, 0)},
		{utc(2008, 1, 19, 8, 0), utc(2008, 1, 19, 9, 0)},
	}, spans(p.Occurrences()))

	partials := p.OccurrencePartials()
	require.Len(t, partials, 3)
	for _, partial := range partials {
		assert.Equal(t, ClassStartedAndEnded, partial.Class)
	}

	// cached: the same slice comes back
	assert.Same(t, &p.Occurrences()[0], &p.Occurrences()[0])
}

func TestPeriodOccurrencesCustomSort(t *testing.T) {
	latestFirst := func(a, b *schedule.Occurrence) bool { return a.Start.After(b.Start) }
	p := New(recentEvent(t), nil, utc(2008, 1, 4, 7, 0), utc(2008, 1, 21, 7, 0), WithSort(latestFirst))

	occs := p.Occurrences()
	require.Len(t, occs, 3)
	assert.Equal(t, utc(2008, 1, 19, 8, 0), occs[0].Start.UTC())
}

func TestPeriodTimeSlot(t *testing.T) {
	p := New(recentEvent(t), nil, utc(2008, 1, 4, 7, 0), utc(2008, 1, 21, 7, 0))
	assert.True(t, p.HasOccurrences())

	slot, ok := p.TimeSlot(utc(2008, 1, 4, 7, 0), utc(2008, 1, 4, 7, 12)).Get()
	require.True(t, ok)
	assert.False(t, slot.HasOccurrences())

	sat, ok := p.TimeSlot(utc(2008, 1, 12, 0, 0), utc(2008, 1, 13, 0, 0)).Get()
	require.True(t, ok)
	assert.Len(t, sat.Occurrences(), 1)

	assert.True(t, p.TimeSlot(utc(2008, 1, 1, 0, 0), utc(2008, 1, 5, 0, 0)).IsAbsent())
	assert.True(t, p.TimeSlot(utc(2008, 1, 20, 0, 0), utc(2008, 1, 22, 0, 0)).IsAbsent())
}

func TestDayTimeSlot(t *testing.T) {
	day := NewDay(nil, nil, utc(2008, 2, 7, 9, 0))

	slot, ok := day.TimeSlot(utc(2008, 2, 7, 13, 30), utc(2008, 2, 7, 15, 0)).Get()
	require.True(t, ok)
	assert.Equal(t, utc(2008, 2, 7, 13, 30), slot.Start())
	assert.Equal(t, utc(2008, 2, 7, 15, 0), slot.End())

	vancouver := loadLocation(t, "America/Vancouver")
	outside := day.TimeSlot(time.Date(2016, 3, 13, 0, 0, 0, 0, vancouver), time.Date(2016, 3, 14, 0, 0, 0, 0, vancouver))
	assert.True(t, outside.IsAbsent())
}

func TestPeriodFromPool(t *testing.T) {
	events := recentEvent(t)
	start, end := utc(2008, 1, 5, 9, 0), utc(2008, 1, 5, 10, 0)

	parent := New(events, nil, start, end)
	pooled := New(events, nil, start, end, WithPool(parent.Occurrences()))

	assert.Equal(t, parent.Occurrences(), pooled.Occurrences())
	assert.Empty(t, pooled.Occurrences())
}

func TestClassify(t *testing.T) {
	p := New(nil, nil, utc(2008, 1, 4, 7, 0), utc(2008, 1, 21, 7, 0))

	tests := []struct {
		name       string
		start, end time.Time
		cancelled  bool
		expected   Class
		absent     bool
	}{
		{name: "inside", start: utc(2008, 1, 5, 8, 0), end: utc(2008, 1, 5, 9, 0), expected: ClassStartedAndEnded},
		{name: "starts inside", start: utc(2008, 1, 20, 8, 0), end: utc(2008, 1, 22, 8, 0), expected: ClassStartedOnly},
		{name: "ends inside", start: utc(2008, 1, 3, 0, 0), end: utc(2008, 1, 5, 0, 0), expected: ClassEndedOnly},
		{name: "spans", start: utc(2008, 1, 1, 0, 0), end: utc(2008, 2, 1, 0, 0), expected: ClassSpans},
		{name: "ends at period end", start: utc(2008, 1, 20, 7, 0), end: utc(2008, 1, 21, 7, 0), expected: ClassStartedOnly},
		{name: "after", start: utc(2008, 1, 22, 0, 0), end: utc(2008, 1, 22, 1, 0), absent: true},
		{name: "ends at period start", start: utc(2008, 1, 3, 7, 0), end: utc(2008, 1, 4, 7, 0), absent: true},
		{name: "starts at period end", start: utc(2008, 1, 21, 7, 0), end: utc(2008, 1, 21, 8, 0), absent: true},
		{name: "cancelled", start: utc(2008, 1, 5, 8, 0), end: utc(2008, 1, 5, 9, 0), cancelled: true, absent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occ := &schedule.Occurrence{EventID: "e", Start: tt.start, End: tt.end, OriginalStart: tt.start, OriginalEnd: tt.end, Cancelled: tt.cancelled}
			got := p.Classify(occ)
			if tt.absent {
				assert.True(t, got.IsAbsent())
				return
			}
			partial, ok := got.Get()
			require.True(t, ok)
			assert.Equal(t, tt.expected, partial.Class)
			assert.Same(t, occ, partial.Occurrence)
		})
	}
}

func TestClassifyShowCancelled(t *testing.T) {
	opts := schedule.DefaultOptions()
	opts.ShowCancelledOccurrences = true
	p := New(nil, nil, utc(2008, 1, 4, 7, 0), utc(2008, 1, 21, 7, 0), WithOptions(opts))

	occ := &schedule.Occurrence{Start: utc(2008, 1, 5, 8, 0), End: utc(2008, 1, 5, 9, 0), Cancelled: true}
	partial, ok := p.Classify(occ).Get()
	require.True(t, ok)
	assert.Equal(t, ClassStartedAndEnded, partial.Class)
}

func TestPeriodsInTimezone(t *testing.T) {
	mvd := loadLocation(t, "America/Montevideo")
	ev, err := schedule.NewEventBuilder("Every Saturday Event", time.Date(2017, 1, 7, 22, 0, 0, 0, mvd), time.Date(2017, 1, 7, 23, 0, 0, 0, mvd), "cal").
		WithID("sat").
		WithRule(recurrence.Rule{Frequency: recurrence.Daily, Params: "byweekday:SA"}).
		WithEndRecurringPeriod(time.Date(2017, 2, 1, 0, 0, 0, 0, mvd)).
		Build()
	require.NoError(t, err)

	p := New([]schedule.EventLike{ev}, nil, time.Date(2017, 1, 13, 0, 0, 0, 0, mvd), time.Date(2017, 1, 23, 0, 0, 0, 0, mvd), WithLocation(mvd))
	occs := p.Occurrences()
	require.Len(t, occs, 2)
	assert.Equal(t, time.Date(2017, 1, 14, 22, 0, 0, 0, mvd), occs[0].Start.In(mvd))
	assert.Equal(t, time.Date(2017, 1, 21, 22, 0, 0, 0, mvd), occs[1].Start.In(mvd))

	sub, ok := p.TimeSlot(time.Date(2017, 1, 13, 0, 0, 0, 0, mvd), time.Date(2017, 1, 15, 0, 0, 0, 0, mvd)).Get()
	require.True(t, ok)
	assert.Len(t, sub.Occurrences(), 1)
}

func TestWeekOccurrencesAcrossRecurrenceEnd(t *testing.T) {
	mvd := loadLocation(t, "America/Montevideo")
	ams := loadLocation(t, "Europe/Amsterdam")
	build := func(eor *time.Time) schedule.EventLike {
		b := schedule.NewEventBuilder("Test event", time.Date(2017, 1, 13, 15, 0, 0, 0, mvd), time.Date(2017, 1, 14, 15, 0, 0, 0, mvd), "cal").
			WithID("daily").
			WithRule(recurrence.Rule{Frequency: recurrence.Daily})
		if eor != nil {
			b = b.WithEndRecurringPeriod(*eor)
		}
		ev, err := b.Build()
		require.NoError(t, err)
		return ev
	}
	local := func(y int, m time.Month, d, hh int) time.Time { return time.Date(y, m, d, hh, 0, 0, 0, mvd) }
	jan20 := local(2017, 1, 20, 0)
	amsMidnight := time.Date(2017, 1, 14, 0, 0, 0, 0, ams)

	tests := []struct {
		name     string
		eor      *time.Time
		date     time.Time
		expected []time.Time
	}{
		{"inside recurrence", &jan20, local(2017, 1, 13, 0), []time.Time{local(2017, 1, 13, 15), local(2017, 1, 14, 15)}},
		{"outside recurrence", &jan20, local(2017, 1, 23, 0), nil},
		{"end in another zone", &amsMidnight, local(2017, 1, 13, 0), []time.Time{local(2017, 1, 13, 15)}},
		{
			"no end",
			nil,
			local(2018, 1, 13, 0),
			[]time.Time{
				local(2018, 1, 6, 15), local(2018, 1, 7, 15), local(2018, 1, 8, 15), local(2018, 1, 9, 15),
				local(2018, 1, 10, 15), local(2018, 1, 11, 15), local(2018, 1, 12, 15), local(2018, 1, 13, 15),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			week := NewWeek([]schedule.EventLike{build(tt.eor)}, nil, tt.date, WithLocation(mvd))
			var got []time.Time
			for _, o := range week.Occurrences() {
				got = append(got, o.Start.In(mvd))
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}
