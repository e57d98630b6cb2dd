package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/service"
)

type Dependencies struct {
	Logger  *zap.Logger
	Addr    string
	Control *service.ControlService

	// TokenHash is a bcrypt hash guarding the mutating routes. Empty
	// leaves them open.
	TokenHash string

	// Gatherer backs /metrics. nil serves 404 there.
	Gatherer prometheus.Gatherer
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	control    *service.ControlService
	tokenHash  []byte
	metrics    http.Handler
}

// route is matched against the request path by substring, in order.
type route struct {
	match   string
	mutates bool
	handle  http.HandlerFunc
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	s := &Server{
		logger:  d.Logger,
		control: d.Control,
	}
	if d.TokenHash != "" {
		s.tokenHash = []byte(d.TokenHash)
	}
	if d.Gatherer != nil {
		s.metrics = promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})
	}

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           loggingMiddleware(d.Logger, http.HandlerFunc(s.dispatch)),
		ReadHeaderTimeout: 500 * time.Millisecond,
		ReadTimeout:       2 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	// One request per connection.
	s.httpServer.SetKeepAlivesEnabled(false)

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Listen binds the address. A bind failure is a startup failure, so it is
// split from Serve.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("http listen %s: %w", s.httpServer.Addr, err)
	}
	return ln, nil
}

// Serve blocks until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Start() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() []route {
	return []route{
		{match: "/status", handle: s.handleStatus},
		{match: "/force-after-hours", mutates: true, handle: s.command(service.CmdForceAfterHours)},
		{match: "/disable-after-hours", mutates: true, handle: s.command(service.CmdDisableAfterHours)},
		{match: "/reset-overrides", mutates: true, handle: s.command(service.CmdResetOverrides)},
		{match: "/stop-alarm", mutates: true, handle: s.command(service.CmdStopAlarm)},
		{match: "/clear", mutates: true, handle: s.handleClear},
		{match: "/log.xlsx", handle: s.handleXLSX},
		{match: "/log.csv", handle: s.handleCSV},
		{match: "/metrics", handle: s.handleMetrics},
	}
}

// dispatch never fails on an unknown path; it serves the dashboard.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	for _, rt := range s.routes() {
		if !strings.Contains(r.URL.Path, rt.match) {
			continue
		}
		if rt.mutates && !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "control token required")
			return
		}
		rt.handle(w, r)
		return
	}
	s.handleDashboard(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.control.Snapshot()

	if wantsProtobuf(r) {
		msg, err := snapshotToProto(snap)
		if err != nil {
			s.logger.Error("status encode", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

type ackResponse struct {
	OK     bool   `json:"ok"`
	Action string `json:"action"`
}

func (s *Server) command(cmd service.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.control.Execute(r.Context(), cmd); err != nil {
			s.logger.Error("control command", zap.String("command", string(cmd)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, ackResponse{OK: true, Action: string(cmd)})
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.control.Execute(r.Context(), service.CmdClear); err != nil {
		http.Error(w, "clear failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeHTML(w, http.StatusOK, clearedPage)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	s.metrics.ServeHTTP(w, r)
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeHTML(w, http.StatusOK, dashboardPage)
}
