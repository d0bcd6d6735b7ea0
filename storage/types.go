package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
)

// Error types
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
)

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match both storage error types and the schedule
// sentinels, so callers above storage only check schedule.ErrNotFound.
func (e *Error) Is(target error) bool {
	if target == schedule.ErrNotFound {
		return e.Type == ErrNotFound
	}
	var other *Error
	if errors.As(target, &other) {
		return other.Type == e.Type && (other.Message == "" || other.Message == e.Message)
	}
	return false
}

// NotFound builds an ErrNotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{Type: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// Window bounds an event listing. A zero Start or End leaves that side open.
type Window struct {
	Start time.Time
	End   time.Time
}

// Keep reports whether ev can have occurrences inside w.
func (w Window) Keep(ev *schedule.Event) bool {
	end := w.End
	if end.IsZero() {
		end = schedule.Forever
	}
	return len(schedule.EventsFor([]*schedule.Event{ev}, w.Start, end)) == 1
}

// Relation ties a calendar to an arbitrary host object. ObjectTag is an
// opaque "<type>:<id>" string; Distinction separates several relations to
// the same object.
type Relation struct {
	CalendarID  string `db:"calendar_id" json:"calendar_id"`
	ObjectTag   string `db:"object_tag" json:"object_tag"`
	Distinction string `db:"distinction" json:"distinction"`
}

// Repository is the persistence contract for events, rules, persisted
// occurrences and calendars.
type Repository interface {
	// Event operations
	LoadEvent(ctx context.Context, id string) (*schedule.Event, error)
	ListEvents(ctx context.Context, calendarID string, w Window) ([]*schedule.Event, error)
	// SaveEvent inserts or updates ev, assigning an ID when it has none. A
	// rule without an ID is saved first.
	SaveEvent(ctx context.Context, ev *schedule.Event) error
	// DeleteEvent removes the event and all its persisted occurrences.
	DeleteEvent(ctx context.Context, id string) error

	SaveRule(ctx context.Context, rule *recurrence.Rule) error

	// Occurrence operations
	ListPersistedOccurrences(ctx context.Context, eventIDs []string) ([]*schedule.Occurrence, error)
	SaveOccurrence(ctx context.Context, occ *schedule.Occurrence) error
	// UpdateOccurrences shifts the original start and end of every persisted
	// occurrence of eventID. Current start and end are left alone.
	UpdateOccurrences(ctx context.Context, eventID string, deltaStart, deltaEnd time.Duration) error

	// Calendar operations
	LoadCalendar(ctx context.Context, id string) (*schedule.Calendar, error)
	LoadCalendarBySlug(ctx context.Context, slug string) (*schedule.Calendar, error)
	SaveCalendar(ctx context.Context, cal *schedule.Calendar) error
	ListCalendars(ctx context.Context) ([]*schedule.Calendar, error)
	// CalendarsForObject lists calendars related to objectTag. An empty
	// distinction matches every relation.
	CalendarsForObject(ctx context.Context, objectTag, distinction string) ([]*schedule.Calendar, error)
	RelateCalendar(ctx context.Context, rel Relation) error
}
