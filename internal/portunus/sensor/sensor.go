// Package sensor turns raw hardware readings into discrete events.
package sensor

import (
	"context"
	"errors"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

var (
	// ErrDecode marks a reading that could not be decoded. Callers treat
	// it as "no event" and count it.
	ErrDecode = errors.New("sensor decode failure")
	// ErrClosed is returned once the sensor has been closed.
	ErrClosed = errors.New("sensor closed")
)

// Sensor yields at most one event per Poll. (nil, nil) means nothing
// happened.
type Sensor interface {
	Poll(ctx context.Context) (*types.Event, error)
}
