// Package actuator drives the buzzer, servo lock and LEDs in response to
// policy decisions.
package actuator

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

// Actuator reacts to a decision. Apply blocks for the length of the
// physical action.
type Actuator interface {
	Apply(ctx context.Context, d types.Decision) error
}

// Set applies every member in order and joins their errors.
type Set []Actuator

func (s Set) Apply(ctx context.Context, d types.Decision) error {
	var errs []error
	for _, a := range s {
		if a == nil {
			continue
		}
		if err := a.Apply(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// wait sleeps for d or until ctx ends.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
