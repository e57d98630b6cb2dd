package eventlog

import (
	"sync"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

// Ring keeps the newest records, most recent first.
type Ring struct {
	mu    sync.Mutex
	size  int
	items []types.Record
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{size: size, items: make([]types.Record, 0, size)}
}

// Push inserts r at the front and evicts the oldest entry past capacity.
func (r *Ring) Push(rec types.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) < r.size {
		r.items = append(r.items, types.Record{})
	}
	copy(r.items[1:], r.items[:len(r.items)-1])
	r.items[0] = rec
}

// Items returns a copy, most recent first.
func (r *Ring) Items() []types.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Record, len(r.items))
	copy(out, r.items)
	return out
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = r.items[:0]
}
