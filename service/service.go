// Package service orchestrates the schedule engine over a repository: it
// owns event edits and their cascade, occurrence overrides, calendar
// lookups and the period views a host renders.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyp0633/libschedule/period"
	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
	"github.com/cyp0633/libschedule/storage"
)

// ErrForbidden is returned when a permission callback rejects the caller.
var ErrForbidden = errors.New("permission denied")

type Service struct {
	repo     storage.Repository
	opts     schedule.Options
	engine   *recurrence.Engine
	expander *schedule.Expander
	logger   zerolog.Logger
}

type Option func(*Service)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithOptions(opts schedule.Options) Option {
	return func(s *Service) {
		s.opts = opts
	}
}

// WithEngine shares one recurrence engine, and its compile cache, across
// services.
func WithEngine(engine *recurrence.Engine) Option {
	return func(s *Service) {
		s.engine = engine
	}
}

func New(repo storage.Repository, options ...Option) *Service {
	s := &Service{
		repo:   repo,
		opts:   schedule.DefaultOptions(),
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}

	expanderOpts := []schedule.ExpanderOption{schedule.WithLogger(s.logger)}
	if s.engine != nil {
		expanderOpts = append(expanderOpts, schedule.WithEngine(s.engine))
	}
	s.expander = schedule.NewExpander(s.opts, expanderOpts...)
	return s
}

func (s *Service) Options() schedule.Options {
	return s.opts
}

// Event operations

// CreateEvent stores ev, filing it under the default calendar when it names
// none.
func (s *Service) CreateEvent(ctx context.Context, ev *schedule.Event) error {
	if ev.CalendarID == "" {
		cal, err := s.DefaultCalendar(ctx)
		if err != nil {
			return err
		}
		ev.CalendarID = cal.ID
	}
	if err := s.repo.SaveEvent(ctx, ev); err != nil {
		return err
	}
	s.logger.Debug().Str("event", ev.ID).Str("calendar", ev.CalendarID).Msg("event created")
	return nil
}

// UpdateEvent saves an edited event. When its start or end moved, the
// original span of every persisted occurrence moves by the same amounts so
// the overrides keep matching their generated twins.
func (s *Service) UpdateEvent(ctx context.Context, ev *schedule.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	prev, err := s.repo.LoadEvent(ctx, ev.ID)
	if err != nil {
		return err
	}

	deltaStart, deltaEnd := prev.Shift(ev.Start, ev.End)
	if deltaStart != 0 || deltaEnd != 0 {
		if err := s.repo.UpdateOccurrences(ctx, ev.ID, deltaStart, deltaEnd); err != nil {
			return fmt.Errorf("cascade event %s: %w", ev.ID, err)
		}
		s.logger.Debug().Str("event", ev.ID).
			Dur("delta_start", deltaStart).Dur("delta_end", deltaEnd).
			Msg("persisted occurrences shifted")
	}
	return s.repo.SaveEvent(ctx, ev)
}

func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	if err := s.repo.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.logger.Debug().Str("event", id).Msg("event deleted")
	return nil
}

// Occurrence operations

// OccurrencesInWindow expands every event of the calendar over [start, end)
// and returns the occurrences in chronological order.
func (s *Service) OccurrencesInWindow(ctx context.Context, calendarSlug string, start, end time.Time) ([]*schedule.Occurrence, error) {
	data, err := s.CalendarData(ctx, calendarSlug, storage.Window{Start: start, End: end})
	if err != nil {
		return nil, err
	}

	var out []*schedule.Occurrence
	for _, ev := range data.Events {
		out = append(out, s.expander.GetOccurrences(ev, data.Persisted, start, end)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].End.Before(out[j].End)
	})
	return out, nil
}

// GetOccurrence returns the occurrence of eventID originally starting at
// at, persisted or generated.
func (s *Service) GetOccurrence(ctx context.Context, eventID string, at time.Time) (*schedule.Occurrence, error) {
	ev, err := s.repo.LoadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	persisted, err := s.repo.ListPersistedOccurrences(ctx, []string{eventID})
	if err != nil {
		return nil, err
	}
	return s.expander.GetOccurrence(ev, persisted, at)
}

// MoveOccurrence reschedules one occurrence to [start, end).
func (s *Service) MoveOccurrence(ctx context.Context, eventID string, originalStart, start, end time.Time, user *schedule.User) (*schedule.Occurrence, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end %s is not after start %s", schedule.ErrInvalidEvent, end, start)
	}
	return s.mutate(ctx, eventID, originalStart, user, "moved", func(occ *schedule.Occurrence) {
		occ.Move(start, end)
	})
}

func (s *Service) CancelOccurrence(ctx context.Context, eventID string, originalStart time.Time, user *schedule.User) (*schedule.Occurrence, error) {
	return s.mutate(ctx, eventID, originalStart, user, "cancelled", (*schedule.Occurrence).Cancel)
}

func (s *Service) UncancelOccurrence(ctx context.Context, eventID string, originalStart time.Time, user *schedule.User) (*schedule.Occurrence, error) {
	return s.mutate(ctx, eventID, originalStart, user, "uncancelled", (*schedule.Occurrence).Uncancel)
}

// mutate loads the occurrence, checks the caller may change it, applies
// change and persists the result. A generated occurrence is persisted on
// its first change.
func (s *Service) mutate(ctx context.Context, eventID string, originalStart time.Time, user *schedule.User, verb string, change func(*schedule.Occurrence)) (*schedule.Occurrence, error) {
	occ, err := s.GetOccurrence(ctx, eventID, originalStart)
	if err != nil {
		return nil, err
	}
	if !s.opts.OccurrenceAllowed(occ, user) {
		return nil, ErrForbidden
	}

	change(occ)
	if err := s.repo.SaveOccurrence(ctx, occ); err != nil {
		return nil, err
	}
	s.logger.Debug().Str("event", eventID).Str("occurrence", occ.ID).Msg("occurrence " + verb)
	return occ, nil
}

// Calendar operations

// CalendarData is a calendar with the events a view shows and their
// persisted occurrences.
type CalendarData struct {
	Calendar  *schedule.Calendar
	Events    []*schedule.Event
	Persisted []*schedule.Occurrence
}

// EventLikes returns the events as the interface the engine consumes.
func (d *CalendarData) EventLikes() []schedule.EventLike {
	return schedule.EventLikes(d.Events)
}

// CalendarData loads the calendar by slug with its events inside w. A host
// installed Options.GetEventsFor replaces the repository listing.
func (s *Service) CalendarData(ctx context.Context, calendarSlug string, w storage.Window) (*CalendarData, error) {
	cal, err := s.repo.LoadCalendarBySlug(ctx, calendarSlug)
	if err != nil {
		return nil, err
	}

	var events []*schedule.Event
	if s.opts.GetEventsFor != nil {
		events, err = s.opts.GetEventsFor(ctx, cal, windowParams(w))
	} else {
		events, err = s.repo.ListEvents(ctx, cal.ID, w)
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	persisted, err := s.repo.ListPersistedOccurrences(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &CalendarData{Calendar: cal, Events: events, Persisted: persisted}, nil
}

func windowParams(w storage.Window) url.Values {
	params := url.Values{}
	if !w.Start.IsZero() {
		params.Set("start", w.Start.Format(time.RFC3339))
	}
	if !w.End.IsZero() {
		params.Set("end", w.End.Format(time.RFC3339))
	}
	return params
}

// Period builds the kind period containing date over the calendar's events.
// Every event is loaded so navigation away from date stays complete.
func (s *Service) Period(ctx context.Context, calendarSlug string, kind period.Kind, date time.Time) (*period.Period, error) {
	data, err := s.CalendarData(ctx, calendarSlug, storage.Window{})
	if err != nil {
		return nil, err
	}
	options := []period.Option{period.WithOptions(s.opts), period.WithExpander(s.expander)}
	if s.opts.Location != nil {
		options = append(options, period.WithLocation(s.opts.Location))
	} else if date.Location() != time.UTC {
		options = append(options, period.WithLocation(date.Location()))
	}
	return period.ForKind(kind, data.EventLikes(), data.Persisted, date, options...), nil
}

// Upcoming returns the next n occurrences of the calendar after now. A
// non-positive n uses Options.FeedListLength.
func (s *Service) Upcoming(ctx context.Context, calendarSlug string, n int) ([]*schedule.Occurrence, error) {
	if n <= 0 {
		n = s.opts.FeedListLength
	}
	now := s.opts.Clock()
	data, err := s.CalendarData(ctx, calendarSlug, storage.Window{Start: now})
	if err != nil {
		return nil, err
	}
	return schedule.OccurrencesAfter(data.Events, data.Persisted, now, s.expander).Take(n), nil
}

func (s *Service) Calendar(ctx context.Context, slug string) (*schedule.Calendar, error) {
	return s.repo.LoadCalendarBySlug(ctx, slug)
}

// DefaultCalendar returns the calendar filed under the default slug,
// creating it on first use.
func (s *Service) DefaultCalendar(ctx context.Context) (*schedule.Calendar, error) {
	cal, err := s.repo.LoadCalendarBySlug(ctx, schedule.DefaultCalendarSlug)
	if err == nil {
		return cal, nil
	}
	if !errors.Is(err, schedule.ErrNotFound) {
		return nil, err
	}

	cal = schedule.NewCalendar(schedule.DefaultCalendarSlug, schedule.DefaultCalendarSlug)
	if err := s.repo.SaveCalendar(ctx, cal); err != nil {
		return nil, err
	}
	s.logger.Info().Str("calendar", cal.ID).Msg("default calendar created")
	return cal, nil
}

// CalendarForObject returns the one calendar related to objectTag.
func (s *Service) CalendarForObject(ctx context.Context, objectTag, distinction string) (*schedule.Calendar, error) {
	cals, err := s.repo.CalendarsForObject(ctx, objectTag, distinction)
	if err != nil {
		return nil, err
	}
	return schedule.CalendarForObject(cals)
}

// GetOrCreateCalendarForObject returns the calendar related to objectTag,
// creating one named name and relating it when there is none. An ambiguous
// lookup is returned as is.
func (s *Service) GetOrCreateCalendarForObject(ctx context.Context, objectTag, name, distinction string) (*schedule.Calendar, error) {
	cal, err := s.CalendarForObject(ctx, objectTag, distinction)
	if err == nil || !errors.Is(err, schedule.ErrNotFound) {
		return cal, err
	}

	if name == "" {
		name = objectTag
	}
	cal = schedule.NewCalendar(name, "")
	if err := s.repo.SaveCalendar(ctx, cal); err != nil {
		return nil, err
	}
	rel := storage.Relation{CalendarID: cal.ID, ObjectTag: objectTag, Distinction: distinction}
	if err := s.repo.RelateCalendar(ctx, rel); err != nil {
		return nil, err
	}
	s.logger.Debug().Str("calendar", cal.Slug).Str("object", objectTag).Msg("calendar created for object")
	return cal, nil
}

// Warm computes the upcoming occurrences of every calendar, pulling their
// persisted occurrences through any cache the repository carries. It
// returns how many calendars were visited.
func (s *Service) Warm(ctx context.Context) (int, error) {
	cals, err := s.repo.ListCalendars(ctx)
	if err != nil {
		return 0, err
	}
	for _, cal := range cals {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, err := s.Upcoming(ctx, cal.Slug, 0); err != nil {
			s.logger.Error().Err(err).Str("calendar", cal.Slug).Msg("warming upcoming occurrences failed")
			continue
		}
	}
	return len(cals), nil
}
