package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/cyp0633/libschedule/schedule"
	"github.com/cyp0633/libschedule/storage"
)

type calendarRow struct {
	ID   string `db:"id"`
	Name string `db:"name"`
	Slug string `db:"slug"`
}

func (r calendarRow) toCalendar() *schedule.Calendar {
	return &schedule.Calendar{ID: r.ID, Name: r.Name, Slug: r.Slug}
}

func toCalendars(rows []calendarRow) []*schedule.Calendar {
	out := make([]*schedule.Calendar, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCalendar())
	}
	return out
}

// Calendar operations

func (s *Store) LoadCalendar(ctx context.Context, id string) (*schedule.Calendar, error) {
	var row calendarRow
	if err := s.db.GetContext(ctx, &row, `SELECT id, name, slug FROM calendars WHERE id = $1;`, id); err != nil {
		return nil, translate(err, "calendar "+id)
	}
	return row.toCalendar(), nil
}

func (s *Store) LoadCalendarBySlug(ctx context.Context, slug string) (*schedule.Calendar, error) {
	var row calendarRow
	if err := s.db.GetContext(ctx, &row, `SELECT id, name, slug FROM calendars WHERE slug = $1;`, slug); err != nil {
		return nil, translate(err, "calendar "+slug)
	}
	return row.toCalendar(), nil
}

func (s *Store) SaveCalendar(ctx context.Context, cal *schedule.Calendar) error {
	if cal.Slug == "" {
		cal.Slug = schedule.Slugify(cal.Name)
	}
	if cal.ID == "" {
		cal.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO calendars (id, name, slug) VALUES ($1,$2,$3)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, slug = EXCLUDED.slug;`,
		cal.ID, cal.Name, cal.Slug)
	if err != nil {
		s.logger.Error().Err(err).Str("calendar", cal.Slug).Msg("SaveCalendar failed")
		return translate(err, "calendar slug "+cal.Slug)
	}
	return nil
}

func (s *Store) ListCalendars(ctx context.Context) ([]*schedule.Calendar, error) {
	var rows []calendarRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, slug FROM calendars ORDER BY slug;`); err != nil {
		return nil, err
	}
	return toCalendars(rows), nil
}

// CalendarsForObject lists the calendars related to objectTag, narrowed to
// one distinction when it is non-empty.
func (s *Store) CalendarsForObject(ctx context.Context, objectTag, distinction string) ([]*schedule.Calendar, error) {
	const q = `
	SELECT DISTINCT c.id, c.name, c.slug
	  FROM calendars c
	  JOIN calendar_relations r ON r.calendar_id = c.id
	 WHERE r.object_tag = $1 AND ($2 = '' OR r.distinction = $2)
	 ORDER BY c.slug;`

	var rows []calendarRow
	if err := s.db.SelectContext(ctx, &rows, q, objectTag, distinction); err != nil {
		s.logger.Error().Err(err).Str("object", objectTag).Msg("CalendarsForObject failed")
		return nil, err
	}
	return toCalendars(rows), nil
}

func (s *Store) RelateCalendar(ctx context.Context, rel storage.Relation) error {
	_, err := s.db.NamedExecContext(ctx, `
	INSERT INTO calendar_relations (calendar_id, object_tag, distinction)
	VALUES (:calendar_id, :object_tag, :distinction)
	ON CONFLICT DO NOTHING;`, rel)
	if err != nil {
		return translate(err, "calendar "+rel.CalendarID)
	}
	return nil
}
