package sensor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/edge/internal/hw"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

// DefaultReadTimeout bounds a single reader poll.
const DefaultReadTimeout = 100 * time.Millisecond

// Tag reads identity tags and remembers which UIDs it has seen.
type Tag struct {
	reader  hw.TagReader
	timeout time.Duration
	now     func() time.Time

	mu     sync.Mutex
	seen   map[string]struct{}
	closed bool
}

func NewTag(reader hw.TagReader, timeout time.Duration, now func() time.Time) *Tag {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &Tag{
		reader:  reader,
		timeout: timeout,
		now:     now,
		seen:    make(map[string]struct{}),
	}
}

// Poll emits EventTag for every successful read, including repeats of a
// tag still held at the antenna.
func (t *Tag) Poll(ctx context.Context) (*types.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	raw, err := t.reader.ReadUID(t.timeout)
	if errors.Is(err, hw.ErrNoTag) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	uid := FormatUID(raw)

	t.mu.Lock()
	_, known := t.seen[uid]
	t.seen[uid] = struct{}{}
	t.mu.Unlock()

	return &types.Event{Kind: types.EventTag, UID: uid, At: t.now(), FirstSighting: !known}, nil
}

// Seen returns every UID observed so far, sorted.
func (t *Tag) Seen() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.seen))
	for uid := range t.seen {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out
}

func (t *Tag) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.reader.Close()
}

// FormatUID renders raw tag bytes as upper-case hex, two digits per byte.
func FormatUID(raw []byte) string {
	var b strings.Builder
	for _, c := range raw {
		fmt.Fprintf(&b, "%02X", c)
	}
	return b.String()
}
