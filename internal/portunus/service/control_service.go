package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/edge/internal/metrics"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/eventlog"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/policy"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

var ErrUnknownCommand = errors.New("unknown command")

// Command is a control action shared by the HTTP and MQTT surfaces. Its
// value is the route name without the leading slash.
type Command string

const (
	CmdForceAfterHours   Command = "force-after-hours"
	CmdDisableAfterHours Command = "disable-after-hours"
	CmdResetOverrides    Command = "reset-overrides"
	CmdStopAlarm         Command = "stop-alarm"
	CmdClear             Command = "clear"
)

// ParseCommand accepts "stop-alarm", "/stop-alarm" and surrounding space.
func ParseCommand(s string) (Command, error) {
	c := Command(strings.ToLower(strings.Trim(strings.TrimSpace(s), "/")))
	switch c {
	case CmdForceAfterHours, CmdDisableAfterHours, CmdResetOverrides, CmdStopAlarm, CmdClear:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// LoopStatus reports the control loop's current mode.
type LoopStatus interface {
	Status() string
}

type ControlService struct {
	device    string
	state     *policy.State
	evaluator *policy.Evaluator
	log       *eventlog.Log
	failures  *metrics.Failures
	withState bool
	logger    *zap.Logger
	now       func() time.Time

	loop LoopStatus
}

type Deps struct {
	DeviceID  string
	State     *policy.State
	Evaluator *policy.Evaluator
	Log       *eventlog.Log
	Failures  *metrics.Failures
	Logger    *zap.Logger
	Now       func() time.Time
}

func NewControlService(d Deps) *ControlService {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Failures == nil {
		d.Failures = metrics.NewFailures()
	}
	return &ControlService{
		device:    d.DeviceID,
		state:     d.State,
		evaluator: d.Evaluator,
		log:       d.Log,
		failures:  d.Failures,
		withState: d.Evaluator.Kind() == policy.Toggle,
		logger:    d.Logger,
		now:       d.Now,
	}
}

// SetLoop attaches the control loop for status reporting.
func (s *ControlService) SetLoop(l LoopStatus) { s.loop = l }

// Execute applies cmd. Only CmdClear can fail.
func (s *ControlService) Execute(ctx context.Context, cmd Command) error {
	switch cmd {
	case CmdForceAfterHours:
		s.state.ForceAfterHours()
	case CmdDisableAfterHours:
		s.state.DisableAfterHours()
	case CmdResetOverrides:
		s.state.ResetOverrides()
	case CmdStopAlarm:
		if s.state.StopAlarm() {
			s.logger.Info("alarm stopped")
		}
	case CmdClear:
		if err := s.log.Clear(ctx); err != nil {
			if errors.Is(err, eventlog.ErrArchive) {
				s.failures.Inc(metrics.Archive)
			}
			s.logger.Error("clear log failed", zap.Error(err))
			return err
		}
		s.logger.Info("event log cleared")
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, string(cmd))
	}
	s.logger.Info("control command", zap.String("command", string(cmd)))
	return nil
}

// Snapshot assembles the status query response.
func (s *ControlService) Snapshot() types.Snapshot {
	now := s.now()
	_, mode := s.evaluator.EffectiveMode(now)

	recent := s.log.Recent()
	events := make([][2]string, 0, len(recent))
	for _, r := range recent {
		events = append(events, [2]string{r.Timestamp.Format(types.TimestampLayout), r.Summary()})
	}

	loop := "Idle"
	if s.loop != nil {
		loop = s.loop.Status()
	}

	return types.Snapshot{
		Device:      s.device,
		Clock:       now.In(s.evaluator.Location()).Format(types.ClockLayout),
		Business:    yesNo(s.evaluator.IsBusinessHours(now)),
		Mode:        mode,
		Loop:        loop,
		Events:      events,
		Overrides:   s.state.Overrides(),
		AlarmActive: s.state.AlarmActive(),
		Failures:    s.failures.Snapshot(),
	}
}

// Export streams the durable log in its text form.
func (s *ControlService) Export(ctx context.Context, w io.Writer) error {
	return s.log.Export(ctx, w)
}

// Records returns every durable record, oldest first.
func (s *ControlService) Records(ctx context.Context) ([]types.Record, error) {
	return s.log.ReadAll(ctx)
}

// WithState reports whether exports carry the toggle state column.
func (s *ControlService) WithState() bool { return s.withState }

func (s *ControlService) Device() string { return s.device }

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
