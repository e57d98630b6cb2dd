// Package hw defines the hardware capabilities the controller drives and
// two boards that provide them: a periph.io board for real GPIO/SPI and a
// simulated board for desktops and tests.
package hw

import (
	"errors"
	"time"
)

// ErrNoTag is returned by a TagReader when no card answered within the
// read timeout. It is not a failure.
var ErrNoTag = errors.New("no tag present")

// Input is a digital input pin.
type Input interface {
	Read() bool
}

// Output is a digital output pin.
type Output interface {
	Set(high bool) error
}

// PWM is a pulse-width-modulated output. duty is in [0,1].
type PWM interface {
	PWM(duty float64, freqHz int) error
	Halt() error
}

// TagReader reads the UID of a tag held at the antenna.
type TagReader interface {
	ReadUID(timeout time.Duration) ([]byte, error)
	Close() error
}

// Board is the set of devices a controller variant may use. Unused devices
// may be nil.
type Board struct {
	Motion   Input
	Door     Input
	Buzzer   PWM
	Servo    PWM
	LEDGreen Output
	LEDRed   Output
	Reader   TagReader

	closers []func() error
}

// Close releases every device that holds OS resources.
func (b *Board) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
