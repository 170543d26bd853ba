package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/crimson-sun/rollcall/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS attendee_logs (
	record_id    UUID PRIMARY KEY,
	type         TEXT NOT NULL CHECK (type IN ('join', 'leave')),
	attendee_id  TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	event_id     TEXT NOT NULL,
	webinar_name TEXT NOT NULL DEFAULT '',
	timestamp    TIMESTAMPTZ NOT NULL
);
ALTER TABLE attendee_logs ADD COLUMN IF NOT EXISTS webinar_name TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS attendee_logs_event_ts ON attendee_logs (event_id, timestamp);
`

const insertQuery = `
	INSERT INTO attendee_logs (record_id, type, attendee_id, display_name, event_id, webinar_name, timestamp)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (record_id) DO NOTHING
`

// Sink persists events to the attendee_logs table. Inserts are keyed by the
// event's record ID so redelivery is a no-op.
type Sink struct {
	db          *sql.DB
	webinarName string
}

// Option configures a Sink.
type Option func(*Sink)

// WithWebinarName sets the session name stored in every row's webinar_name
// column.
func WithWebinarName(name string) Option {
	return func(s *Sink) { s.webinarName = name }
}

// New returns a Sink writing through db. The caller owns db unless Close is
// used.
func New(db *sql.DB, opts ...Option) *Sink {
	s := &Sink{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to dsn with the lib/pq driver and pings it.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres sink: ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates attendee_logs and its index if missing.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres sink: ensure schema: %w", err)
	}
	return nil
}

func (s *Sink) Write(ctx context.Context, event model.Event) error {
	_, err := s.db.ExecContext(ctx, insertQuery,
		event.ID, string(event.Type), event.Identity, event.DisplayName, event.EventID, s.webinarName, event.Timestamp.UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return fmt.Errorf("postgres sink: insert %s (%s): %w", event.ID, pqErr.Code.Name(), err)
		}
		return fmt.Errorf("postgres sink: insert %s: %w", event.ID, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Sink) Close() error {
	return s.db.Close()
}
