package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/edge/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/edge/internal/metrics"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/eventlog"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/policy"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

var zone = time.FixedZone("UTC-8", -8*3600)

// flakyStore fails reads on demand after the log has been opened.
type flakyStore struct {
	*memory.LogStore
	failRead bool
}

var errDisk = errors.New("disk unreadable")

func (s *flakyStore) ReadAll(ctx context.Context) ([]types.Record, error) {
	if s.failRead {
		return nil, errDisk
	}
	return s.LogStore.ReadAll(ctx)
}

func (s *flakyStore) Export(ctx context.Context, w io.Writer) error {
	if s.failRead {
		return errDisk
	}
	return s.LogStore.Export(ctx, w)
}

type harness struct {
	ts    *httptest.Server
	log   *eventlog.Log
	store *flakyStore
}

type option func(*httpapi.Dependencies)

func withToken(hash string) option {
	return func(d *httpapi.Dependencies) { d.TokenHash = hash }
}

func withGatherer(g prometheus.Gatherer) option {
	return func(d *httpapi.Dependencies) { d.Gatherer = g }
}

// newHarness wires the full dependency graph over an in-memory store with
// the clock pinned to 10:00 local, inside business hours.
func newHarness(t *testing.T, failures *metrics.Failures, opts ...option) *harness {
	t.Helper()

	st := &flakyStore{LogStore: memory.NewLogStore(false)}
	lg := eventlog.New(st, eventlog.Config{RingSize: 10, Location: zone}, nil)
	require.NoError(t, lg.Open(context.Background()))

	state := policy.NewState()
	eval := policy.NewEvaluator(policy.Config{
		Kind:     policy.BusinessHours,
		Hours:    policy.Hours{Start: 9, End: 17},
		Location: zone,
	}, state, nil, nil)

	svc := service.NewControlService(service.Deps{
		DeviceID:  "front-door",
		State:     state,
		Evaluator: eval,
		Log:       lg,
		Failures:  failures,
		Now:       func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, zone) },
	})

	d := httpapi.Dependencies{Addr: "127.0.0.1:0", Control: svc}
	for _, o := range opts {
		o(&d)
	}
	srv := httpapi.NewServer(d)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{ts: ts, log: lg, store: st}
}

func (h *harness) append(t *testing.T, uid, label string) {
	t.Helper()
	_, err := h.log.Append(context.Background(), types.Record{
		Timestamp: time.Date(2026, 5, 1, 10, 0, 0, 0, zone),
		UID:       uid,
		Label:     label,
		Outcome:   types.OutcomeGranted,
	})
	require.NoError(t, err)
}

func get(t *testing.T, url string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func status(t *testing.T, h *harness) types.Snapshot {
	t.Helper()
	resp, body := get(t, h.ts.URL+"/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap types.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	return snap
}

// ═══════════════════════════════════════════════════════════════════════════
// Status
// ═══════════════════════════════════════════════════════════════════════════

func TestStatus_JSON(t *testing.T) {
	h := newHarness(t, nil)
	h.append(t, "42455C3E65", "Tool 2")

	resp, body := get(t, h.ts.URL+"/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	for _, k := range []string{"clock", "business", "mode", "events", "overrides", "alarm_active", "failures"} {
		assert.Contains(t, raw, k)
	}

	snap := status(t, h)
	assert.Equal(t, "05/01/2026 10:00:00", snap.Clock)
	assert.Equal(t, "Yes", snap.Business)
	assert.Equal(t, types.ModeBusiness, snap.Mode)
	require.Len(t, snap.Events, 1)
	assert.Equal(t, [2]string{"2026-05-01 10:00:00", "Tool 2"}, snap.Events[0])
}

func TestStatus_Protobuf(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := get(t, h.ts.URL+"/status", http.Header{"Accept": {"application/x-protobuf"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-protobuf", resp.Header.Get("Content-Type"))

	var msg structpb.Struct
	require.NoError(t, proto.Unmarshal(body, &msg))
	assert.Equal(t, types.ModeBusiness, msg.GetFields()["mode"].GetStringValue())
	assert.Equal(t, "Yes", msg.GetFields()["business"].GetStringValue())
}

func TestUnknownRoute_Dashboard(t *testing.T) {
	h := newHarness(t, nil)

	for _, p := range []string{"/", "/favicon.ico", "/nope?x=1"} {
		resp, body := get(t, h.ts.URL+p, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, p)
		assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"), p)
		assert.Contains(t, string(body), "<h1>Portunus</h1>")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Control commands
// ═══════════════════════════════════════════════════════════════════════════

func TestForceAfterHoursThenReset(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := get(t, h.ts.URL+"/force-after-hours", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true,"action":"force-after-hours"}`, string(body))

	snap := status(t, h)
	assert.Equal(t, types.ModeAfterHours, snap.Mode)
	assert.Equal(t, "Yes", snap.Business)

	resp, _ = get(t, h.ts.URL+"/reset-overrides", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snap = status(t, h)
	assert.Equal(t, types.ModeBusiness, snap.Mode)
	assert.Equal(t, types.Overrides{}, snap.Overrides)
}

func TestDisableAfterHoursAndStopAlarm(t *testing.T) {
	h := newHarness(t, nil)

	resp, _ := get(t, h.ts.URL+"/disable-after-hours", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, status(t, h).Overrides.DisableAfterHours)

	resp, body := get(t, h.ts.URL+"/stop-alarm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true,"action":"stop-alarm"}`, string(body))
	assert.False(t, status(t, h).AlarmActive)
}

func TestClearThenExportIsHeaderOnly(t *testing.T) {
	h := newHarness(t, nil)
	h.append(t, "AA", "Alice")
	h.append(t, "BB", "Bob")

	resp, body := get(t, h.ts.URL+"/clear", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Log Cleared")

	resp, body = get(t, h.ts.URL+"/log.csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "timestamp,uid,username\n", string(body))
	assert.Empty(t, status(t, h).Events)
}

// ═══════════════════════════════════════════════════════════════════════════
// Exports
// ═══════════════════════════════════════════════════════════════════════════

func TestLogCSV(t *testing.T) {
	h := newHarness(t, nil)
	h.append(t, "AA", "Alice")

	resp, body := get(t, h.ts.URL+"/log.csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="front-door-log.csv"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "timestamp,uid,username\n2026-05-01 10:00:00,AA,Alice\n", string(body))
}

func TestLogCSV_ReadFailure500(t *testing.T) {
	h := newHarness(t, nil)
	h.store.failRead = true

	resp, _ := get(t, h.ts.URL+"/log.csv", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, _ = get(t, h.ts.URL+"/log.xlsx", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestLogXLSX(t *testing.T) {
	h := newHarness(t, nil)
	h.append(t, "AA", "Alice")
	h.append(t, "BB", "Bob")

	resp, body := get(t, h.ts.URL+"/log.xlsx", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="front-door-log.xlsx"`, resp.Header.Get("Content-Disposition"))

	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Log")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"timestamp", "uid", "username", "outcome"}, rows[0])
	assert.Equal(t, []string{"2026-05-01 10:00:00", "BB", "Bob", types.OutcomeGranted}, rows[2])
}

// ═══════════════════════════════════════════════════════════════════════════
// Auth / metrics / server lifecycle
// ═══════════════════════════════════════════════════════════════════════════

func TestControlToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	h := newHarness(t, nil, withToken(string(hash)))

	resp, _ := get(t, h.ts.URL+"/force-after-hours", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, status(t, h).Overrides.ForceAfterHours)

	resp, _ = get(t, h.ts.URL+"/force-after-hours", http.Header{"X-Portunus-Token": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = get(t, h.ts.URL+"/force-after-hours", http.Header{"X-Portunus-Token": {"s3cret"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, h.ts.URL+"/reset-overrides?token=s3cret", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Read-only routes stay open.
	resp, _ = get(t, h.ts.URL+"/log.csv", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	failures := metrics.NewFailures()
	reg := prometheus.NewRegistry()
	require.NoError(t, failures.Register(reg))
	failures.Inc(metrics.LogWrite)

	h := newHarness(t, failures, withGatherer(reg))

	resp, body := get(t, h.ts.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "portunus_edge_log_write_errors_total 1")

	assert.Equal(t, uint64(1), status(t, h).Failures[metrics.LogWrite])
}

func TestMetrics_NotConfigured(t *testing.T) {
	h := newHarness(t, nil)
	resp, _ := get(t, h.ts.URL+"/metrics", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ListenServeShutdown(t *testing.T) {
	srv := httpapi.NewServer(httpapi.Dependencies{Addr: "127.0.0.1:0", Control: controlFor(t)})
	ln, err := srv.Listen()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, _ := get(t, "http://"+ln.Addr().String()+"/status", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.Close, "keep-alives are disabled")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done)
}

func controlFor(t *testing.T) *service.ControlService {
	t.Helper()
	lg := eventlog.New(memory.NewLogStore(false), eventlog.Config{Location: zone}, nil)
	require.NoError(t, lg.Open(context.Background()))
	state := policy.NewState()
	return service.NewControlService(service.Deps{
		DeviceID:  "front-door",
		State:     state,
		Evaluator: policy.NewEvaluator(policy.Config{Kind: policy.BusinessHours, Hours: policy.Hours{Start: 9, End: 17}, Location: zone}, state, nil, nil),
		Log:       lg,
	})
}
