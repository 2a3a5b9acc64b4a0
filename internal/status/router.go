package status

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stefannilsson/arduino-iot-js/internal/cloud"
)

// requestTimeout caps each request, health checks included.
const requestTimeout = 10 * time.Second

// Report is the body of GET /status.
type Report struct {
	Version       string            `json:"version"`
	State         string            `json:"state"`
	Connected     bool              `json:"connected"`
	Subscriptions []string          `json:"subscriptions"`
	Checks        map[string]string `json:"checks,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)

	return r
}

// handleHealth answers 200 while the cloud session is connected and every
// sink is healthy, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.cloud.State()
	checks, healthy := s.runChecks(r.Context())

	status, code := "ok", http.StatusOK
	if state != cloud.StateConnected || !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status": status,
		"state":  state.String(),
		"checks": checks,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := s.cloud.State()
	checks, _ := s.runChecks(r.Context())

	topics := s.cloud.SubscribedTopics()
	if topics == nil {
		topics = []string{}
	}

	writeJSON(w, http.StatusOK, Report{
		Version:       s.version,
		State:         state.String(),
		Connected:     state == cloud.StateConnected,
		Subscriptions: topics,
		Checks:        checks,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	})
}

// runChecks runs every sink check in name order. Results are "ok" or the
// error text.
func (s *Server) runChecks(ctx context.Context) (map[string]string, bool) {
	if len(s.checks) == 0 {
		return nil, true
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	slices.Sort(names)

	results := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := s.checks[name].HealthCheck(checkCtx)
		cancel()

		if err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}

// loggingMiddleware logs each request with method, path, status and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}
