package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portunus/edge/internal/metrics"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/eventlog"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/notify"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/policy"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

var zone = time.FixedZone("UTC-8", -8*3600)

type fixture struct {
	svc      *service.ControlService
	state    *policy.State
	log      *eventlog.Log
	store    *memory.LogStore
	failures *metrics.Failures
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()

	st := memory.NewLogStore(false)
	lg := eventlog.New(st, eventlog.Config{RingSize: 10, Location: zone}, nil)
	require.NoError(t, lg.Open(context.Background()))

	state := policy.NewState()
	eval := policy.NewEvaluator(policy.Config{
		Kind:     policy.BusinessHours,
		Hours:    policy.Hours{Start: 9, End: 17},
		Location: zone,
	}, state, nil, nil)

	failures := metrics.NewFailures()
	svc := service.NewControlService(service.Deps{
		DeviceID:  "front-door",
		State:     state,
		Evaluator: eval,
		Log:       lg,
		Failures:  failures,
		Now:       func() time.Time { return now },
	})
	return &fixture{svc: svc, state: state, log: lg, store: st, failures: failures}
}

type loop string

func (l loop) Status() string { return string(l) }

type failingArchiver struct{}

func (failingArchiver) Archive(context.Context, string, io.Reader) error {
	return errors.New("bucket unreachable")
}

// ═══════════════════════════════════════════════════════════════════════════
// Commands
// ═══════════════════════════════════════════════════════════════════════════

func TestParseCommand(t *testing.T) {
	cases := map[string]service.Command{
		"stop-alarm":           service.CmdStopAlarm,
		"/clear":               service.CmdClear,
		"  Force-After-Hours\n": service.CmdForceAfterHours,
	}
	for in, want := range cases {
		got, err := service.ParseCommand(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := service.ParseCommand("reboot")
	assert.ErrorIs(t, err, service.ErrUnknownCommand)
}

func TestExecute_Overrides(t *testing.T) {
	f := newFixture(t, time.Date(2026, 5, 1, 10, 0, 0, 0, zone))
	ctx := context.Background()

	require.NoError(t, f.svc.Execute(ctx, service.CmdForceAfterHours))
	snap := f.svc.Snapshot()
	assert.True(t, snap.Overrides.ForceAfterHours)
	assert.Equal(t, types.ModeAfterHours, snap.Mode)

	require.NoError(t, f.svc.Execute(ctx, service.CmdDisableAfterHours))
	snap = f.svc.Snapshot()
	assert.False(t, snap.Overrides.ForceAfterHours)
	assert.True(t, snap.Overrides.DisableAfterHours)

	require.NoError(t, f.svc.Execute(ctx, service.CmdResetOverrides))
	assert.Equal(t, types.Overrides{}, f.svc.Snapshot().Overrides)

	assert.ErrorIs(t, f.svc.Execute(ctx, service.Command("reboot")), service.ErrUnknownCommand)
}

func TestSnapshot_BusinessIsWallClockUnderOverrides(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, time.Date(2026, 5, 1, 10, 0, 0, 0, zone))
	require.NoError(t, f.svc.Execute(ctx, service.CmdForceAfterHours))
	snap := f.svc.Snapshot()
	assert.Equal(t, "Yes", snap.Business)
	assert.Equal(t, types.ModeAfterHours, snap.Mode)

	f = newFixture(t, time.Date(2026, 5, 1, 20, 0, 0, 0, zone))
	require.NoError(t, f.svc.Execute(ctx, service.CmdDisableAfterHours))
	snap = f.svc.Snapshot()
	assert.Equal(t, "No", snap.Business)
	assert.Equal(t, types.ModeBusiness, snap.Mode)
}

func TestControlService_ConcurrentReadsAndCommands(t *testing.T) {
	f := newFixture(t, time.Date(2026, 5, 1, 10, 0, 0, 0, zone))
	ctx := context.Background()

	const workers, rounds = 4, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(3)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_, err := f.log.Append(ctx, types.Record{
					UID:     "A1745C3EB7",
					Label:   "Tool 1",
					Outcome: types.OutcomeGranted,
				})
				assert.NoError(t, err)
			}
		}(w)
		go func(w int) {
			defer wg.Done()
			cmds := []service.Command{service.CmdForceAfterHours, service.CmdDisableAfterHours, service.CmdResetOverrides}
			for i := 0; i < rounds; i++ {
				assert.NoError(t, f.svc.Execute(ctx, cmds[(i+w)%len(cmds)]))
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				snap := f.svc.Snapshot()
				assert.LessOrEqual(t, len(snap.Events), 10)
				assert.False(t, snap.Overrides.ForceAfterHours && snap.Overrides.DisableAfterHours)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, f.log.Recent(), 10)
	assert.Equal(t, workers*rounds, f.log.Occurrences("A1745C3EB7"))
	o := f.svc.Snapshot().Overrides
	assert.False(t, o.ForceAfterHours && o.DisableAfterHours)
}

func TestExecute_StopAlarm(t *testing.T) {
	f := newFixture(t, time.Date(2026, 5, 1, 22, 0, 0, 0, zone))

	alarmCtx, gen := f.state.BeginAlarm(context.Background())
	defer f.state.EndAlarm(gen)
	require.True(t, f.svc.Snapshot().AlarmActive)

	require.NoError(t, f.svc.Execute(context.Background(), service.CmdStopAlarm))
	select {
	case <-alarmCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("alarm context not cancelled")
	}

	// No alarm running is not an error.
	require.NoError(t, f.svc.Execute(context.Background(), service.CmdStopAlarm))
}

func TestExecute_Clear(t *testing.T) {
	f := newFixture(t, time.Date(2026, 5, 1, 10, 0, 0, 0, zone))
	ctx := context.Background()

	_, err := f.log.Append(ctx, types.Record{
		Timestamp: time.Date(2026, 5, 1, 10, 0, 0, 0, zone),
		UID:       "42-45-5C-3E-65",
		Label:     "Tool 2",
		Outcome:   types.OutcomeGranted,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Execute(ctx, service.CmdClear))

	recs, err := f.svc.Records(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Empty(t, f.svc.Snapshot().Events)
}

func TestExecute_ClearArchiveFailure(t *testing.T) {
	f := newFixture(t, time.Date(2026, 5, 1, 10, 0, 0, 0, zone))
	ctx := context.Background()
	f.log.SetArchiver(failingArchiver{})

	_, err := f.log.Append(ctx, types.Record{
		Timestamp: time.Date(2026, 5, 1, 10, 0, 0, 0, zone),
		UID:       "AA",
		Label:     "A",
		Outcome:   types.OutcomeGranted,
	})
	require.NoError(t, err)

	err = f.svc.Execute(ctx, service.CmdClear)
	assert.ErrorIs(t, err, eventlog.ErrArchive)
	assert.Equal(t, uint64(1), f.failures.Get(metrics.Archive))

	recs, err := f.svc.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "failed archive must leave the log intact")
}

// ═══════════════════════════════════════════════════════════════════════════
// Snapshot
// ═══════════════════════════════════════════════════════════════════════════

func TestSnapshot_Fields(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 5, 0, zone)
	f := newFixture(t, now)
	f.svc.SetLoop(loop("Active"))
	ctx := context.Background()

	for i, uid := range []string{"AA", "BB"} {
		_, err := f.log.Append(ctx, types.Record{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			UID:       uid,
			Label:     "User " + uid,
			Outcome:   types.OutcomeGranted,
		})
		require.NoError(t, err)
	}

	snap := f.svc.Snapshot()
	assert.Equal(t, "front-door", snap.Device)
	assert.Equal(t, "05/01/2026 10:00:05", snap.Clock)
	assert.Equal(t, "Yes", snap.Business)
	assert.Equal(t, types.ModeBusiness, snap.Mode)
	assert.Equal(t, "Active", snap.Loop)
	require.Len(t, snap.Events, 2)
	assert.Equal(t, "2026-05-01 10:00:06", snap.Events[0][0], "most recent first")
	assert.Equal(t, "User BB", snap.Events[0][1])
	assert.Contains(t, snap.Failures, metrics.LogWrite)
}

func TestSnapshot_AfterHoursAndDefaultLoop(t *testing.T) {
	f := newFixture(t, time.Date(2026, 5, 1, 20, 0, 0, 0, zone))

	snap := f.svc.Snapshot()
	assert.Equal(t, "No", snap.Business)
	assert.Equal(t, types.ModeAfterHours, snap.Mode)
	assert.Equal(t, "Idle", snap.Loop)
	assert.NotNil(t, snap.Events)
}

func TestExport(t *testing.T) {
	f := newFixture(t, time.Date(2026, 5, 1, 10, 0, 0, 0, zone))
	ctx := context.Background()

	_, err := f.log.Append(ctx, types.Record{
		Timestamp: time.Date(2026, 5, 1, 10, 0, 0, 0, zone),
		UID:       "AA",
		Label:     "A",
		Outcome:   types.OutcomeGranted,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(ctx, &buf))
	assert.Equal(t, "timestamp,uid,username\n2026-05-01 10:00:00,AA,A\n", buf.String())
	assert.False(t, f.svc.WithState())
}

// ═══════════════════════════════════════════════════════════════════════════
// Heartbeat
// ═══════════════════════════════════════════════════════════════════════════

type message struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
}

func (p *fakePublisher) Publish(topic string, _ byte, retained bool, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, message{topic: topic, retained: retained, payload: payload})
	return nil
}

func (p *fakePublisher) Messages() []message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message(nil), p.msgs...)
}

func TestHeartbeat_PublishesSnapshot(t *testing.T) {
	f := newFixture(t, time.Date(2026, 5, 1, 10, 0, 0, 0, zone))
	pub := &fakePublisher{}

	hb := service.NewHeartbeatPublisher(f.svc, pub, service.HeartbeatConfig{
		Interval:    10 * time.Millisecond,
		TopicPrefix: "portunus/front-door",
	}, nil)
	hb.Start(context.Background())

	require.Eventually(t, func() bool { return len(pub.Messages()) >= 2 },
		time.Second, 5*time.Millisecond)
	hb.Stop()

	msgs := pub.Messages()
	assert.Equal(t, "portunus/front-door/heartbeat", msgs[0].topic)
	assert.True(t, msgs[0].retained)

	var snap types.Snapshot
	require.NoError(t, json.Unmarshal(msgs[0].payload, &snap))
	assert.Equal(t, "front-door", snap.Device)

	n := len(pub.Messages())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, len(pub.Messages()), "no publishes after Stop")
}

func TestHeartbeat_DisabledWithoutPublisher(t *testing.T) {
	f := newFixture(t, time.Now())

	hb := service.NewHeartbeatPublisher(f.svc, nil, service.HeartbeatConfig{Interval: time.Millisecond}, nil)
	hb.Start(context.Background())
	hb.Stop()
	hb.Stop()
}

func TestHeartbeat_StopsOnContextCancel(t *testing.T) {
	f := newFixture(t, time.Now())
	pub := &fakePublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	hb := service.NewHeartbeatPublisher(f.svc, pub, service.HeartbeatConfig{
		Interval:    time.Hour,
		TopicPrefix: "p",
	}, nil)
	hb.Start(ctx)
	require.Eventually(t, func() bool { return len(pub.Messages()) == 1 },
		time.Second, 5*time.Millisecond)

	cancel()
	hb.Stop()
}

// ═══════════════════════════════════════════════════════════════════════════
// MQTT commands
// ═══════════════════════════════════════════════════════════════════════════

type fakeSubscriber struct {
	topic   string
	handler notify.MessageHandler
}

func (s *fakeSubscriber) Subscribe(topic string, _ byte, h notify.MessageHandler) error {
	s.topic = topic
	s.handler = h
	return nil
}

func TestListenCommands(t *testing.T) {
	f := newFixture(t, time.Date(2026, 5, 1, 10, 0, 0, 0, zone))
	sub := &fakeSubscriber{}

	require.NoError(t, service.ListenCommands(sub, "portunus/front-door", f.svc, nil))
	assert.Equal(t, "portunus/front-door/command", sub.topic)

	require.NoError(t, sub.handler(sub.topic, []byte("force-after-hours")))
	assert.True(t, f.state.Overrides().ForceAfterHours)

	err := sub.handler(sub.topic, []byte("open-sesame"))
	assert.ErrorIs(t, err, service.ErrUnknownCommand)
}
