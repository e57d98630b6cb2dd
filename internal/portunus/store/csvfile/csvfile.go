// Package csvfile stores the event log as a flat comma-separated text
// file with a header row.
package csvfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

type Store struct {
	path      string
	withState bool
	loc       *time.Location

	mu      sync.Mutex
	skipped int
}

// New returns a store for path. withState adds the toggle state column.
// loc is the zone the timestamp column is written in.
func New(path string, withState bool, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{path: path, withState: withState, loc: loc}
}

var _ store.LogStore = (*Store)(nil)

func (s *Store) header() string {
	return strings.Join(types.Header(s.withState), ",") + "\n"
}

// Init creates the file with its header if it does not exist.
func (s *Store) Init(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat log file: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir log dir: %w", err)
		}
	}
	return s.truncateLocked()
}

func (s *Store) Append(_ context.Context, rec types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	rec.Timestamp = rec.Timestamp.In(s.loc)
	if _, err := f.WriteString(rec.Line(s.withState) + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("append log row: %w", err)
	}
	return f.Close()
}

func (s *Store) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.truncateLocked()
}

func (s *Store) truncateLocked() error {
	if err := os.WriteFile(s.path, []byte(s.header()), 0o644); err != nil {
		return fmt.Errorf("write log header: %w", err)
	}
	return nil
}

// ReadAll parses every data row. Rows that do not parse are skipped and
// counted; see Skipped.
func (s *Store) ReadAll(context.Context) ([]types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped = 0

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var out []types.Record
	sc := bufio.NewScanner(f)
	first := true
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if first {
			first = false
			if strings.HasPrefix(line, "timestamp,") {
				continue
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := types.ParseRow(strings.Split(line, ","), s.loc)
		if err != nil {
			s.skipped++
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	return out, nil
}

// Skipped reports how many rows the last ReadAll could not parse.
func (s *Store) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// Export copies the file verbatim.
func (s *Store) Export(_ context.Context, w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("export log file: %w", err)
	}
	return nil
}
