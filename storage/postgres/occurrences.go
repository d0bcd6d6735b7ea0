package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cyp0633/libschedule/schedule"
)

type occurrenceRow struct {
	ID            string    `db:"id"`
	EventID       string    `db:"event_id"`
	Title         string    `db:"title"`
	Description   string    `db:"description"`
	Start         time.Time `db:"start_at"`
	End           time.Time `db:"end_at"`
	Cancelled     bool      `db:"cancelled"`
	OriginalStart time.Time `db:"original_start"`
	OriginalEnd   time.Time `db:"original_end"`
	CreatedOn     time.Time `db:"created_on"`
	UpdatedOn     time.Time `db:"updated_on"`
}

func (r occurrenceRow) toOccurrence() *schedule.Occurrence {
	return &schedule.Occurrence{
		ID:            r.ID,
		EventID:       r.EventID,
		Title:         r.Title,
		Description:   r.Description,
		Start:         r.Start,
		End:           r.End,
		Cancelled:     r.Cancelled,
		OriginalStart: r.OriginalStart,
		OriginalEnd:   r.OriginalEnd,
		CreatedOn:     r.CreatedOn,
		UpdatedOn:     r.UpdatedOn,
	}
}

// Occurrence operations

func (s *Store) ListPersistedOccurrences(ctx context.Context, eventIDs []string) ([]*schedule.Occurrence, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	const q = `
	SELECT id, event_id, title, description, start_at, end_at, cancelled,
	       original_start, original_end, created_on, updated_on
	  FROM occurrences
	 WHERE event_id = ANY($1)
	 ORDER BY original_start, event_id;`

	var rows []occurrenceRow
	if err := s.db.SelectContext(ctx, &rows, q, pq.Array(eventIDs)); err != nil {
		s.logger.Error().Err(err).Strs("events", eventIDs).Msg("ListPersistedOccurrences failed")
		return nil, err
	}
	out := make([]*schedule.Occurrence, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toOccurrence())
	}
	return out, nil
}

// SaveOccurrence inserts a new override when occ has no ID and updates
// the stored one otherwise.
func (s *Store) SaveOccurrence(ctx context.Context, occ *schedule.Occurrence) error {
	if occ.ID == "" {
		id := uuid.NewString()
		const q = `
		INSERT INTO occurrences
		  (id, event_id, title, description, start_at, end_at, cancelled,
		   original_start, original_end, created_on, updated_on)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
		RETURNING created_on, updated_on;`

		var stamps struct {
			CreatedOn time.Time `db:"created_on"`
			UpdatedOn time.Time `db:"updated_on"`
		}
		err := s.db.GetContext(ctx, &stamps, q, id, occ.EventID, occ.Title, occ.Description,
			occ.Start, occ.End, occ.Cancelled, occ.OriginalStart, occ.OriginalEnd)
		if err != nil {
			s.logger.Error().Err(err).Str("event", occ.EventID).Msg("SaveOccurrence insert failed")
			return translate(err, "occurrence of event "+occ.EventID)
		}
		occ.ID = id
		occ.CreatedOn, occ.UpdatedOn = stamps.CreatedOn, stamps.UpdatedOn
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
	UPDATE occurrences
	   SET title = $2, description = $3, start_at = $4, end_at = $5,
	       cancelled = $6, original_start = $7, original_end = $8, updated_on = now()
	 WHERE id = $1;`,
		occ.ID, occ.Title, occ.Description, occ.Start, occ.End,
		occ.Cancelled, occ.OriginalStart, occ.OriginalEnd)
	if err != nil {
		s.logger.Error().Err(err).Str("occurrence", occ.ID).Msg("SaveOccurrence update failed")
		return translate(err, "occurrence "+occ.ID)
	}
	return expectRow(res, "occurrence "+occ.ID)
}

// UpdateOccurrences shifts the original span of every override of eventID;
// the overridden start and end stay put. Durations travel as microseconds,
// the resolution of timestamptz.
//
// A shift by the recurrence interval moves one row onto the key another row
// still holds, so uniqueness is only checked at commit.
func (s *Store) UpdateOccurrences(ctx context.Context, eventID string, deltaStart, deltaEnd time.Duration) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			s.logger.Error().Err(err).Str("event", eventID).Msg("UpdateOccurrences failed")
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SET CONSTRAINTS occurrences_original_key DEFERRED;`); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `
	UPDATE occurrences
	   SET original_start = original_start + ($2 * interval '1 microsecond'),
	       original_end   = original_end   + ($3 * interval '1 microsecond'),
	       updated_on     = now()
	 WHERE event_id = $1;`,
		eventID, deltaStart.Microseconds(), deltaEnd.Microseconds()); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return translate(err, "occurrences of event "+eventID)
	}
	return nil
}
