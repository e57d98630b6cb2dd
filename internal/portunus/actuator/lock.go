package actuator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Portunus/edge/internal/hw"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

// Lock modes.
const (
	LockNone  = "none"
	LockPulse = "pulse"
	LockDoor  = "door"
)

// ErrDoorOpen is returned when the door switch did not report closed
// within the configured timeout. The lock is re-engaged regardless.
var ErrDoorOpen = errors.New("door did not close")

// Lock opens a servo latch for granted identities.
type Lock struct {
	mode  string
	servo *Servo
	door  hw.Input
	led   *Indicator

	// Timings; defaults match the deployed latch.
	PulseSettle  time.Duration // 0° dwell before opening
	OpenHold     time.Duration
	DoorPoll     time.Duration
	CloseTimeout time.Duration // 0 = wait until ctx ends
	GrantFlash   time.Duration // green LED when no latch is fitted
}

func NewLock(mode string, servo *Servo, door hw.Input, led *Indicator, closeTimeout time.Duration) *Lock {
	if led == nil {
		led = NewIndicator(nil, nil)
	}
	return &Lock{
		mode:         mode,
		servo:        servo,
		door:         door,
		led:          led,
		PulseSettle:  300 * time.Millisecond,
		OpenHold:     time.Second,
		DoorPoll:     50 * time.Millisecond,
		CloseTimeout: closeTimeout,
		GrantFlash:   time.Second,
	}
}

// Open runs the release sequence for the configured mode.
func (l *Lock) Open(ctx context.Context) error {
	switch l.mode {
	case LockPulse:
		return l.pulse(ctx)
	case LockDoor:
		return l.holdDoor(ctx)
	default:
		return l.led.Flash(ctx, Green, l.GrantFlash)
	}
}

// pulse: 0° → settle → 90° → hold → 0°, green LED lit throughout.
func (l *Lock) pulse(ctx context.Context) (err error) {
	if err := l.led.Set(Green, true); err != nil {
		return err
	}
	defer func() { err = errors.Join(err, l.led.Set(Green, false)) }()

	if err := l.servo.Move(AngleLocked); err != nil {
		return err
	}
	if err := wait(ctx, l.PulseSettle); err != nil {
		return l.servo.Move(AngleLocked)
	}
	if err := l.servo.Move(AngleOpen); err != nil {
		return err
	}
	_ = wait(ctx, l.OpenHold)
	return l.servo.Move(AngleLocked)
}

// holdDoor: open, show green for OpenHold, then hold open until the door
// switch reads closed (low) before relocking.
func (l *Lock) holdDoor(ctx context.Context) error {
	if err := l.servo.Move(AngleOpen); err != nil {
		return err
	}
	if err := l.led.Flash(ctx, Green, l.OpenHold); err != nil {
		return errors.Join(err, l.servo.Move(AngleLocked))
	}

	waitErr := l.waitClosed(ctx)
	return errors.Join(waitErr, l.servo.Move(AngleLocked))
}

func (l *Lock) waitClosed(ctx context.Context) error {
	if l.door == nil {
		return nil
	}
	if l.CloseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.CloseTimeout)
		defer cancel()
	}

	poll := l.DoorPoll
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	for l.door.Read() {
		if err := wait(ctx, poll); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w within %s", ErrDoorOpen, l.CloseTimeout)
			}
			return nil
		}
	}
	return nil
}

// Gate reacts to access decisions: open on grant, red LED on deny.
type Gate struct {
	Lock      *Lock
	Indicator *Indicator
	DenyFlash time.Duration
}

func NewGate(lock *Lock, led *Indicator) *Gate {
	return &Gate{Lock: lock, Indicator: led, DenyFlash: 500 * time.Millisecond}
}

func (g *Gate) Apply(ctx context.Context, d types.Decision) error {
	switch d.Action {
	case types.ActionGrant:
		return g.Lock.Open(ctx)
	case types.ActionDeny:
		return g.Indicator.Flash(ctx, Red, g.DenyFlash)
	default:
		return nil
	}
}
