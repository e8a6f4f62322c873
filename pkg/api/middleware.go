package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sunblaze-ucb/cybergym-server/pkg/metrics"
	"github.com/sunblaze-ucb/cybergym-server/pkg/types"
)

// requireAPIKey guards an operator endpoint. A missing or wrong key is
// answered exactly like an unknown route, so the guarded surface is
// not discoverable by probing.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(s.apiKeyName)
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			s.handleNotFound(w, r)
			return
		}
		next(w, r)
	}
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// recoveryMiddleware turns a handler panic into the generic 500 every
// other unexpected failure gets.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error().Interface("panic", v).
					Str("path", r.URL.Path).Msg("Handler panicked")
				s.writeJSON(w, http.StatusInternalServerError,
					&types.HTTPError{Detail: fmt.Sprintf("Unexpected error: %v", v)})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("Request handled")
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		timer := metrics.NewTimer()
		next.ServeHTTP(rec, r)
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.URL.Path)
		metrics.APIRequestsTotal.WithLabelValues(
			r.URL.Path, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}
