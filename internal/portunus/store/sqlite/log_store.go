// Package sqlite keeps the event log in the embedded sqlite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/edge/internal/db"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

// LogStore reads through conn and writes through the single-writer
// worker.
type LogStore struct {
	conn      *sql.DB
	writer    *dbpkg.Worker
	deviceID  string
	withState bool
	loc       *time.Location
}

func NewLogStore(conn *sql.DB, writer *dbpkg.Worker, deviceID string, withState bool, loc *time.Location) *LogStore {
	if loc == nil {
		loc = time.UTC
	}
	return &LogStore{conn: conn, writer: writer, deviceID: deviceID, withState: withState, loc: loc}
}

var _ store.LogStore = (*LogStore)(nil)

// Init is a no-op: the schema is applied by db.Open.
func (s *LogStore) Init(context.Context) error { return nil }

func (s *LogStore) Append(ctx context.Context, rec types.Record) error {
	var state any
	if rec.State != "" {
		state = rec.State
	}
	ts := rec.Timestamp.In(s.loc)

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO edge_events(
  record_id, device_id, occurred_at, occurred_ms, uid, label, outcome, state
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.ID, s.deviceID, ts.Format(types.TimestampLayout), ts.UnixMilli(),
			rec.UID, rec.Label, rec.Outcome, state,
		); err != nil {
			return fmt.Errorf("append edge_event: %w", err)
		}
		return nil
	})
}

func (s *LogStore) Clear(ctx context.Context) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM edge_events WHERE device_id = ?;`, s.deviceID); err != nil {
			return fmt.Errorf("clear edge_events: %w", err)
		}
		return nil
	})
}

func (s *LogStore) ReadAll(ctx context.Context) ([]types.Record, error) {
	rows, err := s.conn.QueryContext(ctx, `
SELECT record_id, occurred_ms, uid, label, outcome, state
FROM edge_events
WHERE device_id = ?
ORDER BY seq;
`, s.deviceID)
	if err != nil {
		return nil, fmt.Errorf("query edge_events: %w", err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		var (
			rec   types.Record
			ms    int64
			state sql.NullString
		)
		if err := rows.Scan(&rec.ID, &ms, &rec.UID, &rec.Label, &rec.Outcome, &state); err != nil {
			return nil, fmt.Errorf("scan edge_event: %w", err)
		}
		rec.Timestamp = time.UnixMilli(ms).In(s.loc)
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
