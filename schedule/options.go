package schedule

import (
	"context"
	"net/url"
	"time"
)

// DefaultPrevNextLimit is how far period navigation may wander from now.
const DefaultPrevNextLimit = 62208000 * time.Second

// User is the caller identity handed to permission checks. A nil *User is
// an anonymous caller.
type User struct {
	ID            string
	Authenticated bool
}

// EventsFunc produces the event set a host shows for a calendar.
type EventsFunc func(ctx context.Context, cal *Calendar, params url.Values) ([]*Event, error)

// Options is the configuration threaded through calendars, expanders and
// periods. The zero value is not useful; start from DefaultOptions.
type Options struct {
	// FirstDayOfWeek is 0 for Sunday, 1 for Monday.
	FirstDayOfWeek int
	// ShowCancelledOccurrences makes cancelled occurrences visible to
	// classification and extras.
	ShowCancelledOccurrences bool

	CheckEventPermission      func(ev *Event, user *User) bool
	CheckCalendarPermission   func(cal *Calendar, user *User) bool
	CheckOccurrencePermission func(occ *Occurrence, user *User) bool
	GetEventsFor              EventsFunc

	PrevNextLimit            time.Duration
	OccurrenceCancelRedirect string
	EventNamePlaceholder     string
	UseFullCalendar          bool
	// FeedListLength is the number of items in the upcoming feed.
	FeedListLength int

	// Location pins rule expansion to one zone. When nil each event expands in
	// the zone of its own start.
	Location *time.Location
	// Now is the clock used for navigation limits and feeds.
	Now func() time.Time
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	o := Options{
		FirstDayOfWeek:       0,
		PrevNextLimit:        DefaultPrevNextLimit,
		EventNamePlaceholder: "Event Name",
		FeedListLength:       10,
		Now:                  time.Now,
	}
	o.CheckEventPermission = func(_ *Event, user *User) bool {
		return user != nil && user.Authenticated
	}
	o.CheckCalendarPermission = func(_ *Calendar, user *User) bool {
		return user != nil && user.Authenticated
	}
	// CheckOccurrencePermission stays nil so OccurrenceAllowed follows
	// whatever event check the host installs.
	return o
}

// WeekStart maps FirstDayOfWeek onto time.Weekday.
func (o Options) WeekStart() time.Weekday {
	if o.FirstDayOfWeek == 1 {
		return time.Monday
	}
	return time.Sunday
}

// Clock returns o.Now, falling back to time.Now.
func (o Options) Clock() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// Limit returns PrevNextLimit, falling back to the default.
func (o Options) Limit() time.Duration {
	if o.PrevNextLimit <= 0 {
		return DefaultPrevNextLimit
	}
	return o.PrevNextLimit
}

// EventAllowed consults CheckEventPermission, denying when it is unset.
func (o Options) EventAllowed(ev *Event, user *User) bool {
	return o.CheckEventPermission != nil && o.CheckEventPermission(ev, user)
}

// CalendarAllowed consults CheckCalendarPermission, denying when it is unset.
func (o Options) CalendarAllowed(cal *Calendar, user *User) bool {
	return o.CheckCalendarPermission != nil && o.CheckCalendarPermission(cal, user)
}

// OccurrenceAllowed consults CheckOccurrencePermission, falling back to the
// event check.
func (o Options) OccurrenceAllowed(occ *Occurrence, user *User) bool {
	if o.CheckOccurrencePermission != nil {
		return o.CheckOccurrencePermission(occ, user)
	}
	ev, _ := occ.Event.(*Event)
	return o.EventAllowed(ev, user)
}
