package actuator

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/Portunus/edge/internal/hw"
)

type Color int

const (
	Green Color = iota
	Red
)

// Indicator drives the green and red status LEDs. Either may be nil.
type Indicator struct {
	green hw.Output
	red   hw.Output
}

func NewIndicator(green, red hw.Output) *Indicator {
	return &Indicator{green: green, red: red}
}

func (i *Indicator) pin(c Color) hw.Output {
	if c == Red {
		return i.red
	}
	return i.green
}

func (i *Indicator) Set(c Color, on bool) error {
	p := i.pin(c)
	if p == nil {
		return nil
	}
	return p.Set(on)
}

// Flash lights one LED for d. The LED is switched off even if ctx ends.
func (i *Indicator) Flash(ctx context.Context, c Color, d time.Duration) error {
	if err := i.Set(c, true); err != nil {
		return err
	}
	werr := wait(ctx, d)
	if errors.Is(werr, context.Canceled) {
		werr = nil
	}
	return errors.Join(werr, i.Set(c, false))
}

// Blink flashes both LEDs together n times; used as the startup signal.
func (i *Indicator) Blink(ctx context.Context, n int, d time.Duration) error {
	for k := 0; k < n; k++ {
		if err := errors.Join(i.Set(Green, true), i.Set(Red, true)); err != nil {
			return err
		}
		if err := wait(ctx, d); err != nil {
			return errors.Join(i.Set(Green, false), i.Set(Red, false))
		}
		if err := errors.Join(i.Set(Green, false), i.Set(Red, false)); err != nil {
			return err
		}
		if err := wait(ctx, d); err != nil {
			return nil
		}
	}
	return nil
}
