package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/cyp0633/libschedule/recurrence"
	"github.com/cyp0633/libschedule/schedule"
	"github.com/cyp0633/libschedule/storage"
)

type eventRow struct {
	ID                 string         `db:"id"`
	CalendarID         sql.NullString `db:"calendar_id"`
	Title              string         `db:"title"`
	Description        string         `db:"description"`
	Start              time.Time      `db:"start_at"`
	End                time.Time      `db:"end_at"`
	EndRecurringPeriod sql.NullTime   `db:"end_recurring_period"`
	Creator            string         `db:"creator"`
	Color              string         `db:"color"`
	CreatedOn          time.Time      `db:"created_on"`
	UpdatedOn          time.Time      `db:"updated_on"`
	RuleID             sql.NullString `db:"rule_id"`
	RuleName           sql.NullString `db:"rule_name"`
	RuleDescription    sql.NullString `db:"rule_description"`
	RuleFrequency      sql.NullString `db:"rule_frequency"`
	RuleParams         sql.NullString `db:"rule_params"`
}

const eventSelect = `
	SELECT e.id, e.calendar_id, e.title, e.description, e.start_at, e.end_at,
	       e.end_recurring_period, e.creator, e.color, e.created_on, e.updated_on,
	       e.rule_id, r.name AS rule_name, r.description AS rule_description,
	       r.frequency AS rule_frequency, r.params AS rule_params
	  FROM events e
	  LEFT JOIN rules r ON r.id = e.rule_id`

func (r eventRow) toEvent() (*schedule.Event, error) {
	ev := &schedule.Event{
		ID:          r.ID,
		CalendarID:  r.CalendarID.String,
		Title:       r.Title,
		Description: r.Description,
		Start:       r.Start,
		End:         r.End,
		Creator:     r.Creator,
		Color:       r.Color,
		CreatedOn:   r.CreatedOn,
		UpdatedOn:   r.UpdatedOn,
	}
	if r.EndRecurringPeriod.Valid {
		ev.EndRecurringPeriod = mo.Some(r.EndRecurringPeriod.Time)
	}
	if r.RuleID.Valid {
		freq, err := recurrence.ParseFrequency(r.RuleFrequency.String)
		if err != nil {
			return nil, &storage.Error{Type: storage.ErrInvalidInput, Message: "rule " + r.RuleID.String, Err: err}
		}
		ev.Rule = &recurrence.Rule{
			ID:          r.RuleID.String,
			Name:        r.RuleName.String,
			Description: r.RuleDescription.String,
			Frequency:   freq,
			Params:      r.RuleParams.String,
		}
	}
	return ev, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(o mo.Option[time.Time]) sql.NullTime {
	t, ok := o.Get()
	return sql.NullTime{Time: t, Valid: ok}
}

// Event operations

func (s *Store) LoadEvent(ctx context.Context, id string) (*schedule.Event, error) {
	var row eventRow
	if err := s.db.GetContext(ctx, &row, eventSelect+` WHERE e.id = $1;`, id); err != nil {
		return nil, translate(err, "event "+id)
	}
	return row.toEvent()
}

func (s *Store) ListEvents(ctx context.Context, calendarID string, w storage.Window) ([]*schedule.Event, error) {
	end := w.End
	if end.IsZero() {
		end = schedule.Forever
	}
	const filter = `
	 WHERE ($1 = '' OR e.calendar_id = $1)
	   AND e.start_at < $2
	   AND ((e.rule_id IS NULL AND e.end_at > $3)
	        OR (e.rule_id IS NOT NULL AND (e.end_recurring_period IS NULL OR e.end_recurring_period >= $3)))
	 ORDER BY e.start_at, e.id;`

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, eventSelect+filter, calendarID, end, w.Start); err != nil {
		s.logger.Error().Err(err).Str("calendar", calendarID).Msg("ListEvents failed")
		return nil, err
	}
	events := make([]*schedule.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := row.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
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
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	var ruleID sql.NullString
	if ev.Rule != nil {
		ruleID = nullString(ev.Rule.ID)
	}

	const q = `
	INSERT INTO events
	  (id, calendar_id, title, description, start_at, end_at, rule_id,
	   end_recurring_period, creator, color, created_on, updated_on)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
	ON CONFLICT (id) DO UPDATE SET
	  calendar_id = EXCLUDED.calendar_id,
	  title = EXCLUDED.title,
	  description = EXCLUDED.description,
	  start_at = EXCLUDED.start_at,
	  end_at = EXCLUDED.end_at,
	  rule_id = EXCLUDED.rule_id,
	  end_recurring_period = EXCLUDED.end_recurring_period,
	  creator = EXCLUDED.creator,
	  color = EXCLUDED.color,
	  updated_on = now()
	RETURNING created_on, updated_on;`

	var stamps struct {
		CreatedOn time.Time `db:"created_on"`
		UpdatedOn time.Time `db:"updated_on"`
	}
	err := s.db.GetContext(ctx, &stamps, q,
		ev.ID, nullString(ev.CalendarID), ev.Title, ev.Description, ev.Start, ev.End, ruleID,
		nullTime(ev.EndRecurringPeriod), ev.Creator, ev.Color)
	if err != nil {
		s.logger.Error().Err(err).Str("event", ev.ID).Msg("SaveEvent failed")
		return translate(err, "event "+ev.ID)
	}
	ev.CreatedOn, ev.UpdatedOn = stamps.CreatedOn, stamps.UpdatedOn
	return nil
}

// DeleteEvent relies on the foreign key cascade to drop occurrences.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1;`, id)
	if err != nil {
		s.logger.Error().Err(err).Str("event", id).Msg("DeleteEvent failed")
		return err
	}
	return expectRow(res, "event "+id)
}

func (s *Store) SaveRule(ctx context.Context, rule *recurrence.Rule) error {
	if !rule.Frequency.Valid() {
		return &storage.Error{Type: storage.ErrInvalidInput, Message: "invalid rule frequency " + rule.Frequency.String()}
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO rules (id, name, description, frequency, params)
	VALUES ($1,$2,$3,$4,$5)
	ON CONFLICT (id) DO UPDATE SET
	  name = EXCLUDED.name,
	  description = EXCLUDED.description,
	  frequency = EXCLUDED.frequency,
	  params = EXCLUDED.params;`,
		rule.ID, rule.Name, rule.Description, rule.Frequency.String(), rule.Params)
	if err != nil {
		s.logger.Error().Err(err).Str("rule", rule.ID).Msg("SaveRule failed")
	}
	return err
}
