// Package memory is an in-process LogStore for tests and dev runs.
package memory

import (
	"context"
	"io"
	"sync"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

type LogStore struct {
	withState bool

	mu   sync.Mutex
	recs []types.Record

	// FailAppend, when set, is returned by Append. Test hook.
	FailAppend error
}

func NewLogStore(withState bool) *LogStore {
	return &LogStore{withState: withState}
}

var _ store.LogStore = (*LogStore)(nil)

func (s *LogStore) Init(context.Context) error { return nil }

func (s *LogStore) Append(_ context.Context, rec types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppend != nil {
		return s.FailAppend
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *LogStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = nil
	return nil
}

func (s *LogStore) ReadAll(context.Context) ([]types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Record, len(s.recs))
	copy(out, s.recs)
	return out, nil
}

func (s *LogStore) Export(ctx context.Context, w io.Writer) error {
	recs, _ := s.ReadAll(ctx)
	return store.WriteText(w, s.withState, recs)
}
