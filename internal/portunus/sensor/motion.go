package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/edge/internal/hw"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

// Motion is an edge detector over a binary input such as a PIR sensor.
type Motion struct {
	pin hw.Input
	now func() time.Time

	mu   sync.Mutex
	last bool
}

func NewMotion(pin hw.Input, now func() time.Time) *Motion {
	if now == nil {
		now = time.Now
	}
	return &Motion{pin: pin, now: now}
}

// Poll emits EventMotion on a rising edge and EventMotionCleared on a
// falling edge.
func (m *Motion) Poll(ctx context.Context) (*types.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	level := m.pin.Read()

	m.mu.Lock()
	defer m.mu.Unlock()
	if level == m.last {
		return nil, nil
	}
	m.last = level

	kind := types.EventMotionCleared
	if level {
		kind = types.EventMotion
	}
	return &types.Event{Kind: kind, At: m.now()}, nil
}
