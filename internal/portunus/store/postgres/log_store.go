// Package postgres keeps the event log in a shared PostgreSQL database so
// several edge devices can report to one place. Rows are scoped by
// device id.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS edge_events (
  seq         BIGSERIAL PRIMARY KEY,
  record_id   TEXT        NOT NULL UNIQUE,
  device_id   TEXT        NOT NULL,
  occurred_at TIMESTAMPTZ NOT NULL,
  uid         TEXT        NOT NULL,
  label       TEXT        NOT NULL,
  outcome     TEXT        NOT NULL,
  state       TEXT
);
CREATE INDEX IF NOT EXISTS idx_edge_events_device ON edge_events(device_id, seq);`

// Open connects with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return conn, nil
}

type LogStore struct {
	conn      *sql.DB
	deviceID  string
	withState bool
	loc       *time.Location
}

func NewLogStore(conn *sql.DB, deviceID string, withState bool, loc *time.Location) *LogStore {
	if loc == nil {
		loc = time.UTC
	}
	return &LogStore{conn: conn, deviceID: deviceID, withState: withState, loc: loc}
}

var _ store.LogStore = (*LogStore)(nil)

func (s *LogStore) Init(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure edge_events: %w", err)
	}
	return nil
}

func (s *LogStore) Append(ctx context.Context, rec types.Record) error {
	var state any
	if rec.State != "" {
		state = rec.State
	}
	if _, err := s.conn.ExecContext(ctx, `
INSERT INTO edge_events(record_id, device_id, occurred_at, uid, label, outcome, state)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, s.deviceID, rec.Timestamp.UTC(), rec.UID, rec.Label, rec.Outcome, state,
	); err != nil {
		return fmt.Errorf("append edge_event: %w", err)
	}
	return nil
}

func (s *LogStore) Clear(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM edge_events WHERE device_id = $1`, s.deviceID); err != nil {
		return fmt.Errorf("clear edge_events: %w", err)
	}
	return nil
}

func (s *LogStore) ReadAll(ctx context.Context) ([]types.Record, error) {
	rows, err := s.conn.QueryContext(ctx, `
SELECT record_id, occurred_at, uid, label, outcome, state
FROM edge_events
WHERE device_id = $1
ORDER BY seq`, s.deviceID)
	if err != nil {
		return nil, fmt.Errorf("query edge_events: %w", err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		var (
			rec   types.Record
			state sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.UID, &rec.Label, &rec.Outcome, &state); err != nil {
			return nil, fmt.Errorf("scan edge_event: %w", err)
		}
		rec.Timestamp = rec.Timestamp.In(s.loc)
		rec.State = state.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edge_events: %w", err)
	}
	return out, nil
}

func (s *LogStore) Export(ctx context.Context, w io.Writer) error {
	recs, err := s.ReadAll(ctx)
	if err != nil {
		return err
	}
	return store.WriteText(w, s.withState, recs)
}
