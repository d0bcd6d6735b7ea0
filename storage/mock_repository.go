package storage

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
)

// MockRepository implements the Repository interface for testing
type MockRepository struct {
	mock.Mock
}

var _ Repository = (*MockRepository)(nil)

func (m *MockRepository) LoadEvent(ctx context.Context, id string) (*schedule.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Event), args.Error(1)
}

func (m *MockRepository) ListEvents(ctx context.Context, calendarID string, w Window) ([]*schedule.Event, error) {
	args := m.Called(ctx, calendarID, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*schedule.Event), args.Error(1)
}

func (m *MockRepository) SaveEvent(ctx context.Context, ev *schedule.Event) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *MockRepository) DeleteEvent(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepository) SaveRule(ctx context.Context, rule *recurrence.Rule) error {
	return m.Called(ctx, rule).Error(0)
}

func (m *MockRepository) ListPersistedOccurrences(ctx context.Context, eventIDs []string) ([]*schedule.Occurrence, error) {
	args := m.Called(ctx, eventIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*schedule.Occurrence), args.Error(1)
}

func (m *MockRepository) SaveOccurrence(ctx context.Context, occ *schedule.Occurrence) error {
	return m.Called(ctx, occ).Error(0)
}

func (m *MockRepository) UpdateOccurrences(ctx context.Context, eventID string, deltaStart, deltaEnd time.Duration) error {
	return m.Called(ctx, eventID, deltaStart, deltaEnd).Error(0)
}

func (m *MockRepository) LoadCalendar(ctx context.Context, id string) (*schedule.Calendar, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Calendar), args.Error(1)
}

func (m *MockRepository) LoadCalendarBySlug(ctx context.Context, slug string) (*schedule.Calendar, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Calendar), args.Error(1)
}

func (m *MockRepository) SaveCalendar(ctx context.Context, cal *schedule.Calendar) error {
	return m.Called(ctx, cal).Error(0)
}

func (m *MockRepository) ListCalendars(ctx context.Context) ([]*schedule.Calendar, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*schedule.Calendar), args.Error(1)
}

func (m *MockRepository) CalendarsForObject(ctx context.Context, objectTag, distinction string) ([]*schedule.Calendar, error) {
	args := m.Called(ctx, objectTag, distinction)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*schedule.Calendar), args.Error(1)
}

func (m *MockRepository) RelateCalendar(ctx context.Context, rel Relation) error {
	return m.Called(ctx, rel).Error(0)
}

// --- Helper methods for creating test data ---

// NewMockEvent creates a one-off test event.
func NewMockEvent(id, calendarID, title string, start, end time.Time) *schedule.Event {
	return &schedule.Event{
		ID:         id,
		CalendarID: calendarID,
		Title:      title,
		Start:      start,
		End:        end,
	}
}

// NewMockRecurringEvent creates a test event repeating at freq.
func NewMockRecurringEvent(id, calendarID, title string, start, end time.Time, freq recurrence.Frequency, params string) *schedule.Event {
	ev := NewMockEvent(id, calendarID, title, start, end)
	ev.Rule = &recurrence.Rule{ID: "rule-" + id, Name: freq.String(), Frequency: freq, Params: params}
	return ev
}
