// Package postgres stores events, rules, persisted occurrences and calendars
// in PostgreSQL through sqlx and the lib/pq driver.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/cyp0633/libschedule/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	maxRetries    = 10
	retryInterval = 2 * time.Second

	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Store implements storage.Repository on PostgreSQL.
type Store struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

var _ storage.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New wraps an open connection.
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a PostgreSQL connection, retrying while the server comes up.
func Connect(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	s := New(nil, opts...)
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		var db *sqlx.DB
		db, err = sqlx.ConnectContext(ctx, "postgres", dsn)
		if err == nil {
			s.db = db
			s.logger.Info().Msg("connected to database")
			return s, nil
		}

		s.logger.Error().Err(err).
			Int("attempt", attempt).
			Msgf("failed to connect to database, retrying in %s", retryInterval)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	return nil, fmt.Errorf("could not connect to database after %d attempts: %w", maxRetries, err)
}

// Migrate executes the embedded "*.up.sql" files in name order.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("failed to glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		stmt, err := migrations.ReadFile(file)
		if err != nil {
			return fmt.Errorf("could not read migration %q: %w", file, err)
		}
		if len(stmt) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, string(stmt)); err != nil {
			return fmt.Errorf("error executing migration %q: %w", file, err)
		}
		s.logger.Debug().Str("migration", file).Msg("migration applied")
	}
	return nil
}

// DB exposes the underlying connection.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// translate maps driver errors onto storage errors.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NotFound("%s not found", what)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case uniqueViolation:
			return &storage.Error{Type: storage.ErrAlreadyExists, Message: what + " already exists", Err: err}
		case foreignKeyViolation:
			return &storage.Error{Type: storage.ErrNotFound, Message: what + " references a missing row", Err: err}
		}
	}
	return err
}

// expectRow turns an update that touched nothing into ErrNotFound.
func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.NotFound("%s not found", what)
	}
	return nil
}
