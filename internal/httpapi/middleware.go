package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const tokenHeader = "X-Portunus-Token"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("dur", time.Since(start)),
		)
	})
}

// authorized checks the control token against the configured bcrypt hash.
// With no hash configured every request passes.
func (s *Server) authorized(r *http.Request) bool {
	if len(s.tokenHash) == 0 {
		return true
	}
	token := r.Header.Get(tokenHeader)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(s.tokenHash, []byte(token)) == nil
}
