// Package metrics counts steady-state failures that the controller
// swallows to stay available, and exposes them to Prometheus.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "portunus_edge"

// Failure counter names, as they appear in the status snapshot.
const (
	SensorDecode = "sensor_decode_errors"
	SensorFault  = "sensor_faults"
	LogWrite     = "log_write_errors"
	Actuator     = "actuator_errors"
	Notify       = "notify_errors"
	Archive      = "archive_errors"
)

var names = []string{SensorDecode, SensorFault, LogWrite, Actuator, Notify, Archive}

var help = map[string]string{
	SensorDecode: "Sensor readings that could not be decoded.",
	SensorFault:  "Sensor polls that failed for reasons other than decoding.",
	LogWrite:     "Durable log appends that failed.",
	Actuator:     "Actuator operations that returned an error.",
	Notify:       "Outbound notifications that failed or timed out.",
	Archive:      "Log archives that failed before a clear.",
}

// Failures is a fixed set of monotonic counters.
type Failures struct {
	counters map[string]*atomic.Uint64
}

func NewFailures() *Failures {
	f := &Failures{counters: make(map[string]*atomic.Uint64, len(names))}
	for _, n := range names {
		f.counters[n] = new(atomic.Uint64)
	}
	return f
}

// Inc bumps the named counter. Unknown names are ignored.
func (f *Failures) Inc(name string) {
	if c, ok := f.counters[name]; ok {
		c.Add(1)
	}
}

func (f *Failures) Get(name string) uint64 {
	if c, ok := f.counters[name]; ok {
		return c.Load()
	}
	return 0
}

// Snapshot returns every counter by name.
func (f *Failures) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, len(f.counters))
	for n, c := range f.counters {
		out[n] = c.Load()
	}
	return out
}

// Register exposes each counter as a CounterFunc on reg.
func (f *Failures) Register(reg prometheus.Registerer) error {
	for _, n := range names {
		c := f.counters[n]
		err := reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      n + "_total",
			Help:      help[n],
		}, func() float64 { return float64(c.Load()) }))
		if err != nil {
			return err
		}
	}
	return nil
}

// RegisterGauge exposes fn as a gauge.
func RegisterGauge(reg prometheus.Registerer, name, helpText string, fn func() float64) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      helpText,
	}, fn))
}

// BoolGauge adapts a predicate for RegisterGauge.
func BoolGauge(fn func() bool) func() float64 {
	return func() float64 {
		if fn() {
			return 1
		}
		return 0
	}
}
