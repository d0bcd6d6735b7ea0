package schedule

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an event, occurrence or calendar lookup
	// has no match.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguousCalendarLookup is returned when more than one calendar
	// matches an object that should have exactly one.
	ErrAmbiguousCalendarLookup = errors.New("more than one calendar matched")
	// ErrInvalidDateInput is returned when a partial date cannot be coerced.
	ErrInvalidDateInput = errors.New("invalid date input")
	// ErrInvalidEvent is returned by EventBuilder.Build for inconsistent times.
	ErrInvalidEvent = errors.New("invalid event")
)

// DateInputError names the date field that failed to coerce.
type DateInputError struct {
	Field string
	Value string
	Err   error
}

func (e *DateInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s=%q: %v", ErrInvalidDateInput, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: %s=%q", ErrInvalidDateInput, e.Field, e.Value)
}

func (e *DateInputError) Unwrap() error {
	return ErrInvalidDateInput
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
