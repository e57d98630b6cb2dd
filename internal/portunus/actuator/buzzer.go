package actuator

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/Portunus/edge/internal/hw"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

// Tone and sweep parameters.
const (
	ToneHz       = 440
	ToneDuty     = 512.0 / 1023.0
	ToneDuration = 500 * time.Millisecond

	SweepLowHz  = 300
	SweepHighHz = 1200
	SweepStepHz = 4
	SweepDelay  = 10 * time.Millisecond
)

type Buzzer struct {
	pwm hw.PWM

	// StepDelay is the dwell per sweep step.
	StepDelay time.Duration
}

func NewBuzzer(pwm hw.PWM) *Buzzer {
	return &Buzzer{pwm: pwm, StepDelay: SweepDelay}
}

// ShortAlert plays one fixed tone for d.
func (b *Buzzer) ShortAlert(ctx context.Context, freqHz int, duty float64, d time.Duration) (err error) {
	if err := b.pwm.PWM(duty, freqHz); err != nil {
		return err
	}
	defer func() { err = errors.Join(err, b.pwm.Halt()) }()

	if werr := wait(ctx, d); werr != nil && !errors.Is(werr, context.Canceled) {
		return werr
	}
	return nil
}

// SweepAlarm ramps the tone up from SweepLowHz to SweepHighHz and back.
// Cancellation is checked at every step; a cancelled sweep returns
// ctx.Err() with the buzzer silenced.
func (b *Buzzer) SweepAlarm(ctx context.Context) (err error) {
	defer func() { err = errors.Join(err, b.pwm.Halt()) }()

	step := func(f int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.pwm.PWM(ToneDuty, f); err != nil {
			return err
		}
		return wait(ctx, b.StepDelay)
	}

	for f := SweepLowHz; f <= SweepHighHz; f += SweepStepHz {
		if err := step(f); err != nil {
			return err
		}
	}
	for f := SweepHighHz; f >= SweepLowHz; f -= SweepStepHz {
		if err := step(f); err != nil {
			return err
		}
	}
	return nil
}

// Alerter plays the short tone for accepted motion alerts.
type Alerter struct {
	Buzzer *Buzzer
}

func (a Alerter) Apply(ctx context.Context, d types.Decision) error {
	if d.Action != types.ActionAlert {
		return nil
	}
	return a.Buzzer.ShortAlert(ctx, ToneHz, ToneDuty, ToneDuration)
}
