// Package eventlog is the controller's record of decisions: a durable
// store plus a small in-memory ring of the latest entries.
package eventlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

const DefaultRingSize = 10

// ErrArchive wraps a failed pre-clear archive. The log is left intact.
var ErrArchive = errors.New("archive before clear failed")

// Archiver copies the exported log somewhere before it is cleared.
type Archiver interface {
	Archive(ctx context.Context, name string, body io.Reader) error
}

type Config struct {
	RingSize int
	Location *time.Location
}

type Log struct {
	store    store.LogStore
	ring     *Ring
	archiver Archiver
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger

	// mu orders appends against clears and guards counts.
	mu     sync.Mutex
	counts map[string]int
}

func New(st store.LogStore, cfg Config, logger *zap.Logger) *Log {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		store:  st,
		ring:   NewRing(cfg.RingSize),
		loc:    cfg.Location,
		now:    time.Now,
		logger: logger,
		counts: make(map[string]int),
	}
}

// SetArchiver enables archiving on Clear. nil disables it.
func (l *Log) SetArchiver(a Archiver) { l.archiver = a }

// Open initialises the store and rebuilds per-identity counts and the
// ring from existing rows.
func (l *Log) Open(ctx context.Context) error {
	if err := l.store.Init(ctx); err != nil {
		return fmt.Errorf("init log store: %w", err)
	}
	recs, err := l.store.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("load log: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.counts)
	l.ring.Reset()
	for _, r := range recs {
		l.counts[r.UID]++
		l.ring.Push(r)
	}
	l.logger.Info("event log opened", zap.Int("records", len(recs)))
	if sk, ok := l.store.(skipCounter); ok && sk.Skipped() > 0 {
		l.logger.Warn("unparseable log rows skipped", zap.Int("rows", sk.Skipped()))
	}
	return nil
}

// skipCounter is implemented by stores that drop rows they cannot parse.
type skipCounter interface {
	Skipped() int
}

// Append records rec. The ring and counts are updated even when the
// durable write fails so the status view and toggle sequence stay
// consistent; the write error is returned for the caller to count.
func (l *Log) Append(ctx context.Context, rec types.Record) (types.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}
	rec.Timestamp = rec.Timestamp.In(l.loc)

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.store.Append(ctx, rec)
	l.ring.Push(rec)
	l.counts[rec.UID]++
	if err != nil {
		return rec, fmt.Errorf("append record: %w", err)
	}
	return rec, nil
}

// Clear archives the current log (when an archiver is set), truncates the
// durable store, and empties the ring and counts.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.archiver != nil {
		var buf bytes.Buffer
		if err := l.store.Export(ctx, &buf); err != nil {
			return fmt.Errorf("%w: export: %v", ErrArchive, err)
		}
		name := l.now().In(l.loc).Format("20060102T150405") + ".csv"
		if err := l.archiver.Archive(ctx, name, &buf); err != nil {
			return fmt.Errorf("%w: %v", ErrArchive, err)
		}
		l.logger.Info("event log archived", zap.String("name", name))
	}

	if err := l.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear log store: %w", err)
	}
	l.ring.Reset()
	clear(l.counts)
	return nil
}

func (l *Log) Export(ctx context.Context, w io.Writer) error {
	return l.store.Export(ctx, w)
}

func (l *Log) ReadAll(ctx context.Context) ([]types.Record, error) {
	return l.store.ReadAll(ctx)
}

// Recent returns the ring contents, most recent first.
func (l *Log) Recent() []types.Record { return l.ring.Items() }

// Occurrences returns the number of records for uid since the last clear.
func (l *Log) Occurrences(uid string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[uid]
}
