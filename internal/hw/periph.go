package hw

import (
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/mfrc522"
	"periph.io/x/host/v3"
)

// PeriphConfig names the pins to open. An empty name leaves the device nil.
type PeriphConfig struct {
	Motion   string
	Door     string
	Buzzer   string
	Servo    string
	LEDGreen string
	LEDRed   string

	// RFID reader over SPI. Reader is opened only when WithReader is set.
	WithReader bool
	SPIPort    string // "" = first registered port
	RFIDReset  string
	RFIDIRQ    string
}

// OpenPeriph initialises the periph host drivers and opens the configured
// pins. Failure here is a startup failure.
func OpenPeriph(cfg PeriphConfig) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	b := &Board{}

	var err error
	if b.Motion, err = openInput(cfg.Motion, gpio.PullDown); err != nil {
		return nil, err
	}
	if b.Door, err = openInput(cfg.Door, gpio.PullDown); err != nil {
		return nil, err
	}
	if b.Buzzer, err = openPWM(cfg.Buzzer); err != nil {
		return nil, err
	}
	if b.Servo, err = openPWM(cfg.Servo); err != nil {
		return nil, err
	}
	if b.LEDGreen, err = openOutput(cfg.LEDGreen); err != nil {
		return nil, err
	}
	if b.LEDRed, err = openOutput(cfg.LEDRed); err != nil {
		return nil, err
	}

	if cfg.WithReader {
		r, err := openReader(cfg)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Reader = r
		b.closers = append(b.closers, r.Close)
	}

	return b, nil
}

func lookup(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio %s not found", name)
	}
	return p, nil
}

func openInput(name string, pull gpio.Pull) (Input, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	p, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if err := p.In(pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("gpio %s input: %w", name, err)
	}
	return periphInput{p}, nil
}

func openOutput(name string) (Output, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	p, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("gpio %s output: %w", name, err)
	}
	return periphOutput{p}, nil
}

func openPWM(name string) (PWM, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	p, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return periphPWM{p}, nil
}

type periphInput struct{ p gpio.PinIn }

func (i periphInput) Read() bool { return i.p.Read() == gpio.High }

type periphOutput struct{ p gpio.PinOut }

func (o periphOutput) Set(high bool) error {
	if high {
		return o.p.Out(gpio.High)
	}
	return o.p.Out(gpio.Low)
}

type periphPWM struct{ p gpio.PinIO }

func (w periphPWM) PWM(duty float64, freqHz int) error {
	if duty < 0 {
		duty = 0
	}
	if duty > 1 {
		duty = 1
	}
	d := gpio.Duty(float64(gpio.DutyMax) * duty)
	return w.p.PWM(d, physic.Frequency(freqHz)*physic.Hertz)
}

func (w periphPWM) Halt() error {
	if err := w.p.Halt(); err != nil {
		return err
	}
	return w.p.Out(gpio.Low)
}

type periphReader struct {
	dev   *mfrc522.Dev
	close func() error
}

func openReader(cfg PeriphConfig) (*periphReader, error) {
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("spi open %q: %w", cfg.SPIPort, err)
	}
	reset, err := lookup(cfg.RFIDReset)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	irq, err := lookup(cfg.RFIDIRQ)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	dev, err := mfrc522.NewSPI(port, reset, irq)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("mfrc522 init: %w", err)
	}
	return &periphReader{dev: dev, close: port.Close}, nil
}

// ReadUID maps the driver's IRQ wait timeout to ErrNoTag so an empty
// antenna is not reported as a decode failure.
func (r *periphReader) ReadUID(timeout time.Duration) ([]byte, error) {
	uid, err := r.dev.ReadUID(timeout)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "timeout") {
			return nil, ErrNoTag
		}
		return nil, err
	}
	return uid, nil
}

func (r *periphReader) Close() error {
	_ = r.dev.Halt()
	return r.close()
}
