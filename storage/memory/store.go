// memory based implementation for testing and single-process hosts
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
	"github.com/cyp0633/libschedule/storage"
)

// Store implements storage.Repository using in-memory maps. Values are
// copied on the way in and out so callers never share state with the store.
type Store struct {
	mu          sync.RWMutex
	events      map[string]*schedule.Event
	rules       map[string]*recurrence.Rule
	occurrences map[string]*schedule.Occurrence // key: occurrence ID
	calendars   map[string]*schedule.Calendar
	relations   []storage.Relation
	logger      zerolog.Logger
	now         func() time.Time
}

var _ storage.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for write tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the clock stamping created and updated times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new in-memory storage
func New(opts ...Option) *Store {
	s := &Store{
		events:      make(map[string]*schedule.Event),
		rules:       make(map[string]*recurrence.Rule),
		occurrences: make(map[string]*schedule.Occurrence),
		calendars:   make(map[string]*schedule.Calendar),
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func copyEvent(ev *schedule.Event) *schedule.Event {
	c := *ev
	if ev.Rule != nil {
		r := *ev.Rule
		c.Rule = &r
	}
	return &c
}

func copyOccurrence(occ *schedule.Occurrence) *schedule.Occurrence {
	c := occ.Clone()
	c.Event = nil
	return c
}

func copyCalendar(cal *schedule.Calendar) *schedule.Calendar {
	c := *cal
	return &c
}

// Event operations

func (s *Store) LoadEvent(_ context.Context, id string) (*schedule.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, storage.NotFound("event %s not found", id)
	}
	return copyEvent(ev), nil
}

func (s *Store) ListEvents(_ context.Context, calendarID string, w storage.Window) ([]*schedule.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*schedule.Event
	for _, ev := range s.events {
		if calendarID != "" && ev.CalendarID != calendarID {
			continue
		}
		if !w.Keep(ev) {
			continue
		}
		events = append(events, copyEvent(ev))
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

func (s *Store) SaveEvent(ctx context.Context, ev *schedule.Event) error {
	if err := ev.Validate(); err != nil {
		return &storage.Error{Type: storage.ErrInvalidInput, Message: "invalid event", Err: err}
	}
	if ev.Rule != nil && ev.Rule.ID == "" {
		if err := s.SaveRule(ctx, ev.Rule); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.CalendarID != "" {
		if _, ok := s.calendars[ev.CalendarID]; !ok {
			return storage.NotFound("calendar %s not found", ev.CalendarID)
		}
	}

	now := s.now()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if prev, ok := s.events[ev.ID]; ok {
		ev.CreatedOn = prev.CreatedOn
	} else if ev.CreatedOn.IsZero() {
		ev.CreatedOn = now
	}
	ev.UpdatedOn = now
	s.events[ev.ID] = copyEvent(ev)

	s.logger.Debug().Str("event", ev.ID).Msg("event saved")
	return nil
}

func (s *Store) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return storage.NotFound("event %s not found", id)
	}
	delete(s.events, id)

	removed := 0
	for key, occ := range s.occurrences {
		if occ.EventID == id {
			delete(s.occurrences, key)
			removed++
		}
	}

	s.logger.Debug().Str("event", id).Int("occurrences", removed).Msg("event deleted")
	return nil
}

func (s *Store) SaveRule(_ context.Context, rule *recurrence.Rule) error {
	if !rule.Frequency.Valid() {
		return &storage.Error{Type: storage.ErrInvalidInput, Message: "invalid rule frequency " + rule.Frequency.String()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	r := *rule
	s.rules[rule.ID] = &r
	return nil
}

// Occurrence operations

func (s *Store) ListPersistedOccurrences(_ context.Context, eventIDs []string) ([]*schedule.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = true
	}

	var out []*schedule.Occurrence
	for _, occ := range s.occurrences {
		if wanted[occ.EventID] {
			out = append(out, copyOccurrence(occ))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OriginalStart.Equal(out[j].OriginalStart) {
			return out[i].OriginalStart.Before(out[j].OriginalStart)
		}
		return out[i].EventID < out[j].EventID
	})
	return out, nil
}

func (s *Store) SaveOccurrence(_ context.Context, occ *schedule.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[occ.EventID]; !ok {
		return storage.NotFound("event %s not found", occ.EventID)
	}

	key := occ.Key()
	for id, other := range s.occurrences {
		if id != occ.ID && other.Key() == key {
			return &storage.Error{
				Type:    storage.ErrAlreadyExists,
				Message: "occurrence already persisted as " + id,
			}
		}
	}

	now := s.now()
	if occ.ID == "" {
		occ.ID = uuid.NewString()
		occ.CreatedOn = now
	} else if _, ok := s.occurrences[occ.ID]; !ok {
		return storage.NotFound("occurrence %s not found", occ.ID)
	}
	occ.UpdatedOn = now
	s.occurrences[occ.ID] = copyOccurrence(occ)

	s.logger.Debug().Str("event", occ.EventID).Str("occurrence", occ.ID).Msg("occurrence saved")
	return nil
}

func (s *Store) UpdateOccurrences(_ context.Context, eventID string, deltaStart, deltaEnd time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var occs []*schedule.Occurrence
	for _, occ := range s.occurrences {
		if occ.EventID == eventID {
			occs = append(occs, occ)
		}
	}
	schedule.CascadeShift(occs, deltaStart, deltaEnd)

	s.logger.Debug().Str("event", eventID).Int("occurrences", len(occs)).
		Dur("delta_start", deltaStart).Dur("delta_end", deltaEnd).Msg("occurrences shifted")
	return nil
}

// Calendar operations

func (s *Store) LoadCalendar(_ context.Context, id string) (*schedule.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cal, ok := s.calendars[id]
	if !ok {
		return nil, storage.NotFound("calendar %s not found", id)
	}
	return copyCalendar(cal), nil
}

func (s *Store) LoadCalendarBySlug(_ context.Context, slug string) (*schedule.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cal := range s.calendars {
		if cal.Slug == slug {
			return copyCalendar(cal), nil
		}
	}
	return nil, storage.NotFound("calendar %q not found", slug)
}

func (s *Store) SaveCalendar(_ context.Context, cal *schedule.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cal.Slug == "" {
		cal.Slug = schedule.Slugify(cal.Name)
	}
	for id, other := range s.calendars {
		if id != cal.ID && other.Slug == cal.Slug {
			return &storage.Error{
				Type:    storage.ErrAlreadyExists,
				Message: "calendar slug " + cal.Slug + " already exists",
			}
		}
	}
	if cal.ID == "" {
		cal.ID = uuid.NewString()
	}
	s.calendars[cal.ID] = copyCalendar(cal)
	return nil
}

func (s *Store) ListCalendars(_ context.Context) ([]*schedule.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*schedule.Calendar, 0, len(s.calendars))
	for _, cal := range s.calendars {
		out = append(out, copyCalendar(cal))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *Store) CalendarsForObject(_ context.Context, objectTag, distinction string) ([]*schedule.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []*schedule.Calendar
	for _, rel := range s.relations {
		if rel.ObjectTag != objectTag || (distinction != "" && rel.Distinction != distinction) {
			continue
		}
		cal, ok := s.calendars[rel.CalendarID]
		if !ok || seen[cal.ID] {
			continue
		}
		seen[cal.ID] = true
		out = append(out, copyCalendar(cal))
	}
	return out, nil
}

func (s *Store) RelateCalendar(_ context.Context, rel storage.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calendars[rel.CalendarID]; !ok {
		return storage.NotFound("calendar %s not found", rel.CalendarID)
	}
	for _, existing := range s.relations {
		if existing == rel {
			return nil
		}
	}
	s.relations = append(s.relations, rel)
	return nil
}
