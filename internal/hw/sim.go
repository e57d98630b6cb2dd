package hw

import (
	"sync"
	"time"
)

// SimPin is an in-memory pin usable as Input, Output and PWM.
type SimPin struct {
	mu     sync.Mutex
	level  bool
	duty   float64
	freqHz int
	freqs  []int
	duties []float64
	halts  int
	writes []bool
}

// SetLevel drives the simulated input level.
func (p *SimPin) SetLevel(high bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = high
}

func (p *SimPin) Read() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *SimPin) Set(high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = high
	p.writes = append(p.writes, high)
	return nil
}

func (p *SimPin) PWM(duty float64, freqHz int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.duty = duty
	p.freqHz = freqHz
	p.freqs = append(p.freqs, freqHz)
	p.duties = append(p.duties, duty)
	return nil
}

func (p *SimPin) Halt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.duty = 0
	p.freqHz = 0
	p.halts++
	return nil
}

// Writes returns every level passed to Set, in order.
func (p *SimPin) Writes() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.writes...)
}

// Frequencies returns every frequency passed to PWM, in order.
func (p *SimPin) Frequencies() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.freqs...)
}

// Duties returns every duty cycle passed to PWM, in order.
func (p *SimPin) Duties() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.duties...)
}

// Duty returns the last duty cycle and frequency.
func (p *SimPin) Duty() (float64, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty, p.freqHz
}

func (p *SimPin) Halts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.halts
}

// SimRead is one scripted reader response.
type SimRead struct {
	UID []byte
	Err error
}

// SimReader replays scripted reads; once drained it reports ErrNoTag.
type SimReader struct {
	mu     sync.Mutex
	queue  []SimRead
	closed bool
}

func (r *SimReader) Push(reads ...SimRead) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, reads...)
}

func (r *SimReader) ReadUID(_ time.Duration) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil, ErrNoTag
	}
	next := r.queue[0]
	r.queue = r.queue[1:]
	return next.UID, next.Err
}

func (r *SimReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// SimBoard bundles one simulated pin per role so tests can reach them
// without type assertions.
type SimBoard struct {
	Board

	MotionPin *SimPin
	DoorPin   *SimPin
	BuzzerPin *SimPin
	ServoPin  *SimPin
	GreenPin  *SimPin
	RedPin    *SimPin
	TagReader *SimReader
}

func NewSimBoard() *SimBoard {
	sb := &SimBoard{
		MotionPin: &SimPin{},
		DoorPin:   &SimPin{},
		BuzzerPin: &SimPin{},
		ServoPin:  &SimPin{},
		GreenPin:  &SimPin{},
		RedPin:    &SimPin{},
		TagReader: &SimReader{},
	}
	sb.Board = Board{
		Motion:   sb.MotionPin,
		Door:     sb.DoorPin,
		Buzzer:   sb.BuzzerPin,
		Servo:    sb.ServoPin,
		LEDGreen: sb.GreenPin,
		LEDRed:   sb.RedPin,
		Reader:   sb.TagReader,
	}
	sb.closers = append(sb.closers, sb.TagReader.Close)
	return sb
}
