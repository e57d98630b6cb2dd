// Package policy decides what to do with a sensor event.
package policy

import (
	"time"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/registry"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

// Policy kinds.
const (
	BusinessHours = "business_hours"
	Debounce      = "debounce"
	Access        = "access"
	Toggle        = "toggle"
)

// Hours is a half-open hour-of-day range [Start, End).
type Hours struct {
	Start int
	End   int
}

func (h Hours) IsBusiness(hour int) bool { return h.Start <= hour && hour < h.End }

type Config struct {
	Kind          string
	Hours         Hours
	AlertInterval time.Duration
	Location      *time.Location
}

// Counter reports how many log records exist for a uid since the last
// clear.
type Counter interface {
	Occurrences(uid string) int
}

type Evaluator struct {
	cfg      Config
	state    *State
	registry *registry.Registry
	counts   Counter
}

// NewEvaluator wires the evaluator. counts may be nil unless Kind is Toggle.
func NewEvaluator(cfg Config, st *State, reg *registry.Registry, counts Counter) *Evaluator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if reg == nil {
		reg = registry.New(nil)
	}
	return &Evaluator{cfg: cfg, state: st, registry: reg, counts: counts}
}

func (e *Evaluator) Kind() string { return e.cfg.Kind }

func (e *Evaluator) Location() *time.Location { return e.cfg.Location }

// Evaluate returns the decision for ev at now. The only side effect is
// claiming the alert slot on an accepted Alert.
func (e *Evaluator) Evaluate(ev types.Event, now time.Time) types.Decision {
	switch ev.Kind {
	case types.EventTag:
		return e.evaluateTag(ev)
	case types.EventMotion:
		return e.evaluateMotion(ev, now)
	default:
		return types.Decision{Action: types.ActionIgnore, Event: ev}
	}
}

func (e *Evaluator) evaluateTag(ev types.Event) types.Decision {
	label, ok := e.registry.Lookup(ev.UID)
	if !ok {
		return types.Decision{Action: types.ActionDeny, Event: ev, Label: types.LabelUnauthorized}
	}

	d := types.Decision{Action: types.ActionGrant, Event: ev, Label: label}
	if e.cfg.Kind == Toggle && e.counts != nil {
		d.State = ToggleState(e.counts.Occurrences(ev.UID) + 1)
	}
	return d
}

func (e *Evaluator) evaluateMotion(ev types.Event, now time.Time) types.Decision {
	business, mode := e.EffectiveMode(now)
	if !business {
		return types.Decision{Action: types.ActionAlarm, Event: ev, Mode: mode}
	}
	if e.state.TryAlert(now, e.cfg.AlertInterval) {
		return types.Decision{Action: types.ActionAlert, Event: ev, Mode: mode}
	}
	return types.Decision{Action: types.ActionSuppressed, Event: ev, Mode: mode}
}

// IsBusinessHours reports the raw wall-clock flag, ignoring overrides.
func (e *Evaluator) IsBusinessHours(now time.Time) bool {
	return e.cfg.Hours.IsBusiness(now.In(e.cfg.Location).Hour())
}

// EffectiveMode applies override precedence to the wall-clock flag. A
// force override only bites during business hours and a disable override
// only after hours. The debounce policy has no after-hours mode.
func (e *Evaluator) EffectiveMode(now time.Time) (bool, string) {
	if e.cfg.Kind == Debounce {
		return true, types.ModeBusiness
	}

	business := e.IsBusinessHours(now)
	o := e.state.Overrides()
	switch {
	case o.ForceAfterHours && business:
		business = false
	case o.DisableAfterHours && !business:
		business = true
	}

	if business {
		return true, types.ModeBusiness
	}
	return false, types.ModeAfterHours
}

// ToggleState maps the nth occurrence of an identity to its state.
func ToggleState(n int) string {
	if n%2 == 1 {
		return types.StateCheckedOut
	}
	return types.StateCheckedIn
}
