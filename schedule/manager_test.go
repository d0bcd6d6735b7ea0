package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libschedule/recurrence"
)

func TestEventListManager_MergesChronologically(t *testing.T) {
	daily := dailyEvent(t, "")
	weekly, err := NewEventBuilder("Saturday", utc(2008, 1, 5, 10, 0), utc(2008, 1, 5, 11, 0), "cal").
		WithID("sat").
		WithRule(recurrence.Rule{Frequency: recurrence.Weekly}).
		Build()
	require.NoError(t, err)

	m := NewEventListManager([]EventLike{weekly, daily}, nil, NewExpander(DefaultOptions()))
	got := m.OccurrencesAfter(utc(2008, 1, 4, 12, 0)).Take(5)

	require.Len(t, got, 5)
	assert.Equal(t, []time.Time{
		utc(2008, 1, 5, 8, 0),
		utc(2008, 1, 5, 10, 0),
		utc(2008, 1, 6, 8, 0),
		utc(2008, 1, 7, 8, 0),
		utc(2008, 1, 8, 8, 0),
	}, startsOf(got))
	assert.Equal(t, "sat", got[1].EventID)
}

func TestEventListManager_SharedOverrides(t *testing.T) {
	daily := dailyEvent(t, "")
	weekly := weeklyEvent(t)
	cancelled := persistedOf(weekly, "p1", utc(2008, 1, 12, 8, 0))
	cancelled.Cancel()
	moved := persistedOf(daily, "p2", utc(2008, 1, 11, 8, 0))
	moved.Move(utc(2008, 1, 11, 7, 0), utc(2008, 1, 11, 8, 0))

	m := NewEventListManager([]EventLike{daily, weekly}, []*Occurrence{cancelled, moved}, NewExpander(DefaultOptions()))
	got := m.OccurrencesAfter(utc(2008, 1, 10, 12, 0)).Take(4)

	assert.Equal(t, []time.Time{
		utc(2008, 1, 11, 7, 0),
		utc(2008, 1, 12, 8, 0),
		utc(2008, 1, 13, 8, 0),
		utc(2008, 1, 14, 8, 0),
	}, startsOf(got))
	for _, o := range got {
		assert.Equal(t, "daily", o.EventID)
	}
}

func TestEventListManager_Empty(t *testing.T) {
	m := NewEventListManager(nil, nil, NewExpander(DefaultOptions()))
	it := m.OccurrencesAfter(utc(2008, 1, 1, 0, 0))
	_, ok := it.Next()
	assert.False(t, ok)
	assert.Empty(t, it.Take(3))
}

func TestEventsFor(t *testing.T) {
	oneOff, err := NewEventBuilder("Once", utc(2008, 1, 10, 8, 0), utc(2008, 1, 10, 9, 0), "cal").WithID("once").Build()
	require.NoError(t, err)
	weekly := weeklyEvent(t)
	openEnded := dailyEvent(t, "")

	tests := []struct {
		name       string
		start, end time.Time
		expected   []string
	}{
		{"all", utc(2008, 1, 1, 0, 0), utc(2008, 2, 1, 0, 0), []string{"once", "weekly", "daily"}},
		{"after the one-off", utc(2008, 1, 11, 0, 0), utc(2008, 2, 1, 0, 0), []string{"weekly", "daily"}},
		{"after end of recurrence", utc(2008, 6, 1, 0, 0), utc(2008, 7, 1, 0, 0), []string{"daily"}},
		{"before everything", utc(2007, 1, 1, 0, 0), utc(2007, 2, 1, 0, 0), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, ev := range EventsFor([]*Event{oneOff, weekly, openEnded}, tt.start, tt.end) {
				ids = append(ids, ev.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestCalendarOccurrencesAfter(t *testing.T) {
	oneOff, err := NewEventBuilder("Once", utc(2008, 1, 5, 9, 0), utc(2008, 1, 5, 9, 30), "cal").WithID("once").Build()
	require.NoError(t, err)
	weekly := weeklyEvent(t)

	got := OccurrencesAfter([]*Event{oneOff, weekly}, nil, utc(2008, 1, 1, 0, 0), NewExpander(DefaultOptions())).Take(3)

	assert.Equal(t, []time.Time{utc(2008, 1, 5, 8, 0), utc(2008, 1, 5, 9, 0), utc(2008, 1, 12, 8, 0)}, startsOf(got))
}

func TestCalendarForObject(t *testing.T) {
	work := NewCalendar("Work Stuff", "")
	home := NewCalendar("Home", "house")
	assert.Equal(t, "work-stuff", work.Slug)
	assert.Equal(t, "house", home.Slug)

	got, err := CalendarForObject([]*Calendar{work})
	require.NoError(t, err)
	assert.Same(t, work, got)

	_, err = CalendarForObject(nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = CalendarForObject([]*Calendar{work, home})
	assert.ErrorIs(t, err, ErrAmbiguousCalendarLookup)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Work Stuff":      "work-stuff",
		"  Hello, World ": "hello-world",
		"already-a-slug":  "already-a-slug",
		"UPPER_case 42":   "upper-case-42",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, Slugify(in))
		})
	}
}
