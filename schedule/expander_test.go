package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libschedule/recurrence"
)

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func startsOf(occs []*Occurrence) []time.Time {
	out := make([]time.Time, len(occs))
	for i, o := range occs {
		out[i] = o.Start.UTC()
	}
	return out
}

// weeklyEvent is a Saturday 08:00-09:00 event recurring until May 2008.
func weeklyEvent(t *testing.T) *Event {
	t.Helper()
	ev, err := NewEventBuilder("Recurring event", utc(2008, 1, 5, 8, 0), utc(2008, 1, 5, 9, 0), "cal").
		WithID("weekly").
		WithRule(recurrence.Rule{Name: "Weekly", Frequency: recurrence.Weekly}).
		WithEndRecurringPeriod(utc(2008, 5, 5, 0, 0)).
		Build()
	require.NoError(t, err)
	return ev
}

func dailyEvent(t *testing.T, params string) *Event {
	t.Helper()
	b := NewEventBuilder("Daily", utc(2008, 1, 1, 8, 0), utc(2008, 1, 1, 9, 0), "cal").
		WithID("daily").
		WithRule(recurrence.Rule{Frequency: recurrence.Daily, Params: params})
	ev, err := b.Build()
	require.NoError(t, err)
	return ev
}

func persistedOf(ev *Event, id string, originalStart time.Time) *Occurrence {
	occ := ev.MakeOccurrence(originalStart, originalStart.Add(ev.Duration()))
	occ.ID = id
	return occ
}

func TestGetOccurrences_MonthlySmallWindow(t *testing.T) {
	ev, err := NewEventBuilder("Monthly", utc(2008, 1, 1, 0, 0), utc(2008, 1, 2, 0, 0), "cal").
		WithID("monthly").
		WithRule(recurrence.Rule{Name: "Monthly", Frequency: recurrence.Monthly}).
		Build()
	require.NoError(t, err)

	occs := NewExpander(DefaultOptions()).GetOccurrences(ev, nil, utc(2008, 1, 24, 0, 0), utc(2008, 3, 2, 0, 0))

	assert.Equal(t, []time.Time{utc(2008, 2, 1, 0, 0), utc(2008, 3, 1, 0, 0)}, startsOf(occs))
	for _, o := range occs {
		assert.Equal(t, 24*time.Hour, o.End.Sub(o.Start))
	}
}

func TestGetOccurrences_OneOffOutsideWindow(t *testing.T) {
	ev, err := NewEventBuilder("Once", utc(2008, 1, 1, 8, 0), utc(2008, 1, 1, 9, 0), "cal").Build()
	require.NoError(t, err)

	exp := NewExpander(DefaultOptions())
	assert.Empty(t, exp.GetOccurrences(ev, nil, utc(2008, 1, 24, 0, 0), utc(2008, 3, 2, 0, 0)))
	assert.Len(t, exp.GetOccurrences(ev, nil, utc(2008, 1, 1, 0, 0), utc(2008, 1, 2, 0, 0)), 1)
}

func TestGetOccurrences_MovedOccurrence(t *testing.T) {
	ev := weeklyEvent(t)
	moved := persistedOf(ev, "p1", utc(2008, 1, 12, 8, 0))
	moved.Move(utc(2008, 1, 12, 10, 0), utc(2008, 1, 12, 11, 0))

	occs := NewExpander(DefaultOptions()).GetOccurrences(ev, []*Occurrence{moved}, utc(2008, 1, 12, 0, 0), utc(2008, 1, 27, 0, 0))

	assert.Equal(t, []time.Time{utc(2008, 1, 12, 10, 0), utc(2008, 1, 19, 8, 0), utc(2008, 1, 26, 8, 0)}, startsOf(occs))
	assert.Same(t, moved, occs[0])
	assert.True(t, occs[0].Moved())
}

func TestGetOccurrences_CancelledHiddenByDefault(t *testing.T) {
	ev := weeklyEvent(t)
	cancelled := persistedOf(ev, "p2", utc(2008, 1, 19, 8, 0))
	cancelled.Cancel()

	hidden := NewExpander(DefaultOptions()).GetOccurrences(ev, []*Occurrence{cancelled}, utc(2008, 1, 12, 0, 0), utc(2008, 1, 27, 0, 0))
	assert.Equal(t, []time.Time{utc(2008, 1, 12, 8, 0), utc(2008, 1, 26, 8, 0)}, startsOf(hidden))

	opts := DefaultOptions()
	opts.ShowCancelledOccurrences = true
	shown := NewExpander(opts).GetOccurrences(ev, []*Occurrence{cancelled}, utc(2008, 1, 12, 0, 0), utc(2008, 1, 27, 0, 0))
	require.Len(t, shown, 3)
	assert.True(t, shown[1].Cancelled)
}

func TestGetOccurrences_MovedIntoWindow(t *testing.T) {
	ev := weeklyEvent(t)
	// the Feb 2nd occurrence is pulled forward into a January window
	moved := persistedOf(ev, "p3", utc(2008, 2, 2, 8, 0))
	moved.Move(utc(2008, 1, 20, 8, 0), utc(2008, 1, 20, 9, 0))
	// and the Jan 26th one is pushed out of it
	away := persistedOf(ev, "p4", utc(2008, 1, 26, 8, 0))
	away.Move(utc(2008, 3, 1, 8, 0), utc(2008, 3, 1, 9, 0))

	occs := NewExpander(DefaultOptions()).GetOccurrences(ev, []*Occurrence{moved, away}, utc(2008, 1, 12, 0, 0), utc(2008, 1, 27, 0, 0))

	assert.Equal(t, []time.Time{utc(2008, 1, 12, 8, 0), utc(2008, 1, 19, 8, 0), utc(2008, 1, 20, 8, 0)}, startsOf(occs))
}

func TestGetOccurrences_DSTStability(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	ev, err := NewEventBuilder("Standup", time.Date(2015, 3, 4, 9, 0, 0, 0, la), time.Date(2015, 3, 4, 10, 0, 0, 0, la), "cal").
		WithID("dst").
		WithRule(recurrence.Rule{Frequency: recurrence.Weekly}).
		Build()
	require.NoError(t, err)

	occs := NewExpander(DefaultOptions()).GetOccurrences(ev, nil, time.Date(2015, 3, 1, 0, 0, 0, 0, la), time.Date(2015, 3, 15, 0, 0, 0, 0, la))
	require.Len(t, occs, 2)

	_, before := occs[0].Start.Zone()
	_, after := occs[1].Start.Zone()
	assert.Equal(t, -8*3600, before)
	assert.Equal(t, -7*3600, after)
	assert.Equal(t, 9, occs[0].Start.Hour())
	assert.Equal(t, 9, occs[1].Start.Hour())
	assert.Equal(t, time.Hour, occs[1].End.Sub(occs[1].Start))
}

func TestGetOccurrences_LargeWindowWithSharedEngine(t *testing.T) {
	engine := recurrence.NewEngine()
	defer engine.Close()

	ev, err := NewEventBuilder("Tick", utc(2008, 1, 1, 0, 0), utc(2008, 1, 1, 0, 1), "cal").
		WithID("tick").
		WithRule(recurrence.Rule{Frequency: recurrence.Minutely}).
		Build()
	require.NoError(t, err)

	occs := NewExpander(DefaultOptions(), WithEngine(engine)).GetOccurrences(ev, nil, utc(2008, 1, 1, 0, 0), utc(2008, 1, 8, 0, 0))
	require.Len(t, occs, 7*24*60)
	assert.Equal(t, utc(2008, 1, 7, 23, 59), occs[len(occs)-1].Start.UTC())
}

func TestLookups_DSTWithUTCInstants(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	ev, err := NewEventBuilder("Standup", time.Date(2015, 3, 4, 9, 0, 0, 0, la), time.Date(2015, 3, 4, 10, 0, 0, 0, la), "cal").
		WithID("dst").
		WithRule(recurrence.Rule{Frequency: recurrence.Weekly}).
		Build()
	require.NoError(t, err)
	exp := NewExpander(DefaultOptions())

	tests := []struct {
		name string
		at   time.Time
	}{
		{"before the change", time.Date(2015, 3, 4, 17, 0, 0, 0, time.UTC)},
		{"after the change", time.Date(2015, 3, 11, 16, 0, 0, 0, time.UTC)},
		{"fixed offset", time.Date(2015, 3, 18, 18, 0, 0, 0, time.FixedZone("", 2*3600))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occ, err := exp.GetOccurrence(ev, nil, tt.at)
			require.NoError(t, err)
			assert.Equal(t, 9, occ.Start.In(la).Hour())
		})
	}

	t.Run("after the change is wall-clock stable", func(t *testing.T) {
		_, err := exp.GetOccurrence(ev, nil, time.Date(2015, 3, 11, 17, 0, 0, 0, time.UTC))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("occurrences after a UTC instant", func(t *testing.T) {
		occs := exp.OccurrencesAfter(ev, nil, time.Date(2015, 3, 10, 0, 0, 0, 0, time.UTC), 2).Collect()
		require.Len(t, occs, 2)
		assert.Equal(t, time.Date(2015, 3, 11, 16, 0, 0, 0, time.UTC), occs[0].Start.UTC())
		assert.Equal(t, time.Date(2015, 3, 18, 16, 0, 0, 0, time.UTC), occs[1].Start.UTC())
		for _, o := range occs {
			assert.Equal(t, 9, o.Start.In(la).Hour())
		}
	})
}

func TestGetOccurrences_Boundaries(t *testing.T) {
	a, b := utc(2024, 1, 1, 0, 0), utc(2024, 1, 2, 0, 0)
	exp := NewExpander(DefaultOptions())

	atStart := &Event{ID: "s", Start: a, End: a}
	atEnd := &Event{ID: "e", Start: b, End: b}
	assert.Len(t, exp.GetOccurrences(atStart, nil, a, b), 1)
	assert.Empty(t, exp.GetOccurrences(atEnd, nil, a, b))

	// a daily rule hitting exactly the window end is dropped
	ev := &Event{ID: "d", Start: utc(2023, 12, 1, 0, 0), End: utc(2023, 12, 1, 1, 0), Rule: &recurrence.Rule{Frequency: recurrence.Daily}}
	occs := exp.GetOccurrences(ev, nil, a, b)
	assert.Equal(t, []time.Time{a}, startsOf(occs))
}

func TestGetOccurrences_StraddlingOccurrence(t *testing.T) {
	ev := dailyEvent(t, "")
	ev.End = utc(2008, 1, 1, 20, 0)

	occs := NewExpander(DefaultOptions()).GetOccurrences(ev, nil, utc(2008, 1, 3, 12, 0), utc(2008, 1, 4, 12, 0))

	assert.Equal(t, []time.Time{utc(2008, 1, 3, 8, 0), utc(2008, 1, 4, 8, 0)}, startsOf(occs))
}

func TestGetOccurrences_Invariants(t *testing.T) {
	ev := weeklyEvent(t)
	a, b := utc(2008, 1, 1, 0, 0), utc(2008, 12, 31, 0, 0)
	occs := NewExpander(DefaultOptions()).GetOccurrences(ev, nil, a, b)
	require.NotEmpty(t, occs)

	eor, _ := ev.EndRecurringPeriod.Get()
	seen := map[OccurrenceKey]bool{}
	for i, o := range occs {
		assert.True(t, o.Start.Before(b))
		assert.True(t, o.End.After(a))
		assert.Equal(t, ev.Duration(), o.End.Sub(o.Start))
		assert.False(t, o.Start.After(eor))
		assert.False(t, seen[o.Key()])
		seen[o.Key()] = true
		if i > 0 {
			assert.False(t, o.Start.Before(occs[i-1].Start))
		}
	}
}

func TestGetOccurrence(t *testing.T) {
	ev := weeklyEvent(t)
	exp := NewExpander(DefaultOptions())

	occ, err := exp.GetOccurrence(ev, nil, utc(2008, 1, 12, 8, 0))
	require.NoError(t, err)
	assert.False(t, occ.Persisted())
	assert.Equal(t, utc(2008, 1, 12, 9, 0), occ.End.UTC())

	again, err := exp.GetOccurrence(ev, nil, occ.OriginalStart)
	require.NoError(t, err)
	assert.True(t, again.Equal(occ))

	_, err = exp.GetOccurrence(ev, nil, utc(2008, 1, 12, 9, 0))
	assert.True(t, errors.Is(err, ErrNotFound))

	moved := persistedOf(ev, "p1", utc(2008, 1, 12, 8, 0))
	moved.Move(utc(2008, 1, 13, 8, 0), utc(2008, 1, 13, 9, 0))
	got, err := exp.GetOccurrence(ev, []*Occurrence{moved}, utc(2008, 1, 12, 8, 0))
	require.NoError(t, err)
	assert.Same(t, moved, got)
}

func TestGetOccurrence_OneOff(t *testing.T) {
	ev, err := NewEventBuilder("Once", utc(2008, 1, 1, 8, 0), utc(2008, 1, 1, 9, 0), "cal").WithID("once").Build()
	require.NoError(t, err)
	exp := NewExpander(DefaultOptions())

	occ, err := exp.GetOccurrence(ev, nil, utc(2008, 1, 1, 8, 0))
	require.NoError(t, err)
	assert.Equal(t, "Once", occ.Title)

	_, err = exp.GetOccurrence(ev, nil, utc(2008, 1, 2, 8, 0))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOccurrencesAfter_MaxOccurrences(t *testing.T) {
	ev := dailyEvent(t, "")
	ev.EndRecurringPeriod = mo.Some(ev.Start.AddDate(0, 0, 10))
	exp := NewExpander(DefaultOptions())
	after := utc(2007, 12, 31, 0, 0)

	tests := []struct {
		name     string
		max      int
		expected int
	}{
		{"unbounded", 0, 11},
		{"cap below total", 4, 4},
		{"cap above total", 20, 11},
		{"single", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occs := exp.OccurrencesAfter(ev, nil, after, tt.max).Collect()
			assert.Len(t, occs, tt.expected)
		})
	}
}

func TestOccurrencesAfter_InterleavesMovedOccurrences(t *testing.T) {
	ev := dailyEvent(t, "")
	// moved into the future past the bound
	forward := persistedOf(ev, "p1", utc(2008, 1, 12, 8, 0))
	forward.Move(utc(2008, 1, 15, 7, 0), utc(2008, 1, 15, 8, 0))
	// moved to before the bound; its twin must not reappear
	backward := persistedOf(ev, "p2", utc(2008, 1, 16, 8, 0))
	backward.Move(utc(2008, 1, 10, 8, 0), utc(2008, 1, 10, 9, 0))

	it := NewExpander(DefaultOptions()).OccurrencesAfter(ev, []*Occurrence{forward, backward}, utc(2008, 1, 14, 8, 0), 0)

	var got []time.Time
	for i := 0; i < 4; i++ {
		occ, ok := it.Next()
		require.True(t, ok)
		got = append(got, occ.Start.UTC())
	}
	assert.Equal(t, []time.Time{
		utc(2008, 1, 15, 7, 0),
		utc(2008, 1, 15, 8, 0),
		utc(2008, 1, 17, 8, 0),
		utc(2008, 1, 18, 8, 0),
	}, got)
}

func TestOccurrencesAfter_Exhaustion(t *testing.T) {
	ev := dailyEvent(t, "count:3")
	it := NewExpander(DefaultOptions()).OccurrencesAfter(ev, nil, utc(2008, 1, 1, 12, 0), 0)

	assert.Equal(t, []time.Time{utc(2008, 1, 2, 8, 0), utc(2008, 1, 3, 8, 0)}, startsOf(it.Collect()))
	_, ok := it.Next()
	assert.False(t, ok)
}

func TestOccurrencesAfter_OneOff(t *testing.T) {
	ev, err := NewEventBuilder("Once", utc(2008, 1, 1, 8, 0), utc(2008, 1, 1, 9, 0), "cal").WithID("once").Build()
	require.NoError(t, err)
	exp := NewExpander(DefaultOptions())

	assert.Len(t, exp.OccurrencesAfter(ev, nil, utc(2007, 1, 1, 0, 0), 0).Collect(), 1)
	assert.Empty(t, exp.OccurrencesAfter(ev, nil, utc(2008, 1, 1, 8, 0), 0).Collect())
}
