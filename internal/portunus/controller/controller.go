// Package controller runs the main control loop: poll a sensor, evaluate
// the event, then record, notify and actuate.
package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/edge/internal/metrics"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/actuator"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/eventlog"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/notify"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/policy"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/sensor"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

// Loop states reported in the status snapshot.
const (
	StatusIdle    = "Idle"
	StatusActive  = "Active"
	StatusStopped = "Stopped"
)

const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultMaxSweeps    = 10

	// A wall clock earlier than this has never been set.
	minSyncedYear = 2020
)

type Config struct {
	PollInterval time.Duration
	MaxSweeps    int
	// FatalLogWrites stops the loop on the first failed durable append.
	FatalLogWrites bool
	StartupBlinks  int
}

type Deps struct {
	Sensor    sensor.Sensor
	Evaluator *policy.Evaluator
	State     *policy.State
	Log       *eventlog.Log

	// Optional.
	Notifier  notify.Notifier
	Actuators actuator.Actuator
	Buzzer    *actuator.Buzzer
	Indicator *actuator.Indicator
	Failures  *metrics.Failures
	Logger    *zap.Logger
	Now       func() time.Time
}

type Controller struct {
	cfg       Config
	sensor    sensor.Sensor
	eval      *policy.Evaluator
	state     *policy.State
	log       *eventlog.Log
	notifier  notify.Notifier
	actuators actuator.Actuator
	buzzer    *actuator.Buzzer
	indicator *actuator.Indicator
	failures  *metrics.Failures
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	status string
}

func New(cfg Config, d Deps) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxSweeps <= 0 {
		cfg.MaxSweeps = DefaultMaxSweeps
	}
	if d.Failures == nil {
		d.Failures = metrics.NewFailures()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Controller{
		cfg:       cfg,
		sensor:    d.Sensor,
		eval:      d.Evaluator,
		state:     d.State,
		log:       d.Log,
		notifier:  d.Notifier,
		actuators: d.Actuators,
		buzzer:    d.Buzzer,
		indicator: d.Indicator,
		failures:  d.Failures,
		logger:    d.Logger,
		now:       d.Now,
		status:    StatusIdle,
	}
}

// Status returns Idle, Active (handling an event) or Stopped.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) setStatus(s string) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Run polls until ctx is cancelled (returning nil) or a fatal error
// occurs. Actuation blocks the loop; only an alarm sweep is interruptible
// from outside.
func (c *Controller) Run(ctx context.Context) error {
	defer c.setStatus(StatusStopped)

	c.startup(ctx)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.Step(ctx); err != nil {
			c.logger.Error("control loop stopped", zap.Error(err))
			return err
		}
		select {
		case <-ctx.Done():
			c.logger.Info("control loop exiting")
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Controller) startup(ctx context.Context) {
	if now := c.now(); now.Year() < minSyncedYear {
		c.logger.Warn("clock not synced", zap.Time("now", now))
	}

	if c.indicator != nil && c.cfg.StartupBlinks > 0 {
		if err := c.indicator.Blink(ctx, c.cfg.StartupBlinks, 100*time.Millisecond); err != nil {
			c.failures.Inc(metrics.Actuator)
			c.logger.Error("startup blink", zap.Error(err))
		}
	}
	c.logger.Info("control loop started",
		zap.String("policy", c.eval.Kind()),
		zap.Duration("poll_interval", c.cfg.PollInterval))
}

// Step runs one poll-evaluate-apply cycle. It returns an error only when
// the loop cannot continue.
func (c *Controller) Step(ctx context.Context) error {
	ev, err := c.sensor.Poll(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, sensor.ErrClosed):
		return err
	case errors.Is(err, sensor.ErrDecode):
		c.failures.Inc(metrics.SensorDecode)
		c.logger.Debug("sensor decode", zap.Error(err))
		return nil
	default:
		c.failures.Inc(metrics.SensorFault)
		c.logger.Error("sensor poll", zap.Error(err))
		return nil
	}
	if ev == nil {
		return nil
	}

	c.logEvent(*ev)

	at := ev.At
	if at.IsZero() {
		at = c.now()
		ev.At = at
	}
	d := c.eval.Evaluate(*ev, at)
	if !d.Recorded() {
		return nil
	}

	c.setStatus(StatusActive)
	defer c.setStatus(StatusIdle)

	return c.apply(ctx, d)
}

func (c *Controller) apply(ctx context.Context, d types.Decision) error {
	rec, err := c.log.Append(ctx, types.NewRecord(d, c.eval.Location()))
	if err != nil {
		c.failures.Inc(metrics.LogWrite)
		c.logger.Error("log append", zap.Error(err))
		if c.cfg.FatalLogWrites {
			return err
		}
	}

	c.logger.Info("decision",
		zap.String("action", d.Action.String()),
		zap.String("uid", rec.UID),
		zap.String("label", rec.Label),
		zap.String("state", rec.State),
		zap.String("mode", d.Mode))

	c.notify(ctx, rec)

	if d.Action == types.ActionAlarm {
		c.alarm(ctx)
		return nil
	}
	if c.actuators != nil {
		if err := c.actuators.Apply(ctx, d); err != nil && ctx.Err() == nil {
			c.failures.Inc(metrics.Actuator)
			c.logger.Error("actuate", zap.String("action", d.Action.String()), zap.Error(err))
		}
	}
	return nil
}

// notify is best-effort; the fanout bounds each notifier.
func (c *Controller) notify(ctx context.Context, rec types.Record) {
	if c.notifier == nil {
		return
	}
	err := c.notifier.Notify(ctx, rec)
	if err == nil {
		return
	}
	n := 1
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		n = len(joined.Unwrap())
	}
	for range n {
		c.failures.Inc(metrics.Notify)
	}
	c.logger.Warn("notify", zap.Int("failed", n), zap.Error(err))
}

// alarm sweeps the buzzer up to MaxSweeps times while the alarm stays
// active. StopAlarm cancels the sweep in progress.
func (c *Controller) alarm(ctx context.Context) {
	alarmCtx, gen := c.state.BeginAlarm(ctx)
	defer c.state.EndAlarm(gen)

	if c.indicator != nil {
		_ = c.indicator.Set(actuator.Red, true)
		defer func() { _ = c.indicator.Set(actuator.Red, false) }()
	}
	if c.buzzer == nil {
		return
	}

	c.logger.Warn("alarm raised", zap.Int("max_sweeps", c.cfg.MaxSweeps))
	for i := 0; i < c.cfg.MaxSweeps; i++ {
		err := c.buzzer.SweepAlarm(alarmCtx)
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			c.logger.Info("alarm cancelled", zap.Int("sweeps", i))
		} else {
			c.failures.Inc(metrics.Actuator)
			c.logger.Error("alarm sweep", zap.Error(err))
		}
		return
	}
}

func (c *Controller) logEvent(ev types.Event) {
	switch ev.Kind {
	case types.EventTag:
		if ev.FirstSighting {
			c.logger.Info("tag read", zap.String("uid", ev.UID), zap.Bool("first", true))
		} else {
			c.logger.Debug("tag read", zap.String("uid", ev.UID))
		}
	case types.EventMotion:
		c.logger.Info("motion detected")
	case types.EventMotionCleared:
		c.logger.Info("motion cleared")
	}
}
