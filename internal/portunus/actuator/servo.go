package actuator

import "github.com/BrandonDHaskell/Portunus/edge/internal/hw"

const (
	servoHz     = 50
	servoPeriod = 20000.0 // µs
	servoMinUS  = 500.0
	servoMaxUS  = 2500.0
	servoMaxDeg = 180.0

	AngleLocked = 0
	AngleOpen   = 90
)

type Servo struct {
	pwm hw.PWM
}

func NewServo(pwm hw.PWM) *Servo { return &Servo{pwm: pwm} }

// Move positions the horn at angle degrees, clamped to [0,180].
func (s *Servo) Move(angle int) error {
	return s.pwm.PWM(ServoDuty(angle), servoHz)
}

// ServoDuty maps an angle to the duty cycle of a 500–2500 µs pulse in a
// 20 ms frame.
func ServoDuty(angle int) float64 {
	a := float64(angle)
	if a < 0 {
		a = 0
	}
	if a > servoMaxDeg {
		a = servoMaxDeg
	}
	pulse := servoMinUS + a/servoMaxDeg*(servoMaxUS-servoMinUS)
	return pulse / servoPeriod
}
