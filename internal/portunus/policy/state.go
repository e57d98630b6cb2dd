package policy

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

// State is the policy state shared by the control loop and the control
// surfaces (HTTP, MQTT). Every read-modify-write happens under mu.
type State struct {
	mu sync.Mutex

	force   bool
	disable bool

	alerted   bool
	lastAlert time.Time

	alarmActive bool
	alarmGen    uint64
	cancelAlarm context.CancelFunc
}

func NewState() *State { return &State{} }

// ForceAfterHours sets the force override and clears the disable override.
func (s *State) ForceAfterHours() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.force, s.disable = true, false
}

// DisableAfterHours sets the disable override and clears the force override.
func (s *State) DisableAfterHours() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.force, s.disable = false, true
}

func (s *State) ResetOverrides() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.force, s.disable = false, false
}

func (s *State) Overrides() types.Overrides {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.Overrides{ForceAfterHours: s.force, DisableAfterHours: s.disable}
}

// TryAlert claims the alert slot when at least interval has passed since
// the last accepted alert. The check and the update are one step.
func (s *State) TryAlert(now time.Time, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alerted && now.Sub(s.lastAlert) < interval {
		return false
	}
	s.alerted = true
	s.lastAlert = now
	return true
}

// LastAlert returns the time of the last accepted alert.
func (s *State) LastAlert() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAlert, s.alerted
}

// BeginAlarm marks the alarm active and returns a context that StopAlarm
// cancels. The returned generation is passed to EndAlarm.
func (s *State) BeginAlarm(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelAlarm != nil {
		s.cancelAlarm()
	}
	s.alarmGen++
	s.alarmActive = true
	s.cancelAlarm = cancel
	return ctx, s.alarmGen
}

// StopAlarm cancels a running sweep and clears alarm_active. It reports
// whether an alarm was active.
func (s *State) StopAlarm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.alarmActive
	if s.cancelAlarm != nil {
		s.cancelAlarm()
		s.cancelAlarm = nil
	}
	s.alarmActive = false
	return was
}

// EndAlarm is called by the loop when its sweeps finish. It is a no-op if
// a newer alarm has started since gen.
func (s *State) EndAlarm(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.alarmGen {
		return
	}
	if s.cancelAlarm != nil {
		s.cancelAlarm()
		s.cancelAlarm = nil
	}
	s.alarmActive = false
}

func (s *State) AlarmActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alarmActive
}
