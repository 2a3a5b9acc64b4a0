// Package status serves a small HTTP endpoint describing a running watch
// session: cloud connection state, retained subscriptions and the health
// of the configured sinks.
//
//	srv, err := status.New(status.Deps{Config: cfg.Status, Logger: logger, Cloud: client})
//	srv.Start(ctx)
//	defer srv.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/stefannilsson/arduino-iot-js/internal/cloud"
	"github.com/stefannilsson/arduino-iot-js/internal/infrastructure/config"
)

const (
	// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
	gracefulShutdownTimeout = 5 * time.Second

	// checkTimeout bounds each sink health check.
	checkTimeout = 2 * time.Second

	readHeaderTimeout = 5 * time.Second
)

// Logger is the logging surface the server needs.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// CloudState reports the cloud session. *cloud.Client implements it.
type CloudState interface {
	State() cloud.State
	SubscribedTopics() []string
}

// Checker is a sink that can report its health, such as the history
// database or the InfluxDB client.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the status server.
type Deps struct {
	Config  config.StatusConfig
	Logger  Logger
	Cloud   CloudState
	Checks  map[string]Checker
	Version string
}

// Server is the HTTP status server.
type Server struct {
	cfg     config.StatusConfig
	logger  Logger
	cloud   CloudState
	checks  map[string]Checker
	version string
	started time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a status server. It does not listen until Start is called.
//
// Parameters:
//   - deps: Config, logger and cloud session are required; checks are optional
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Cloud == nil {
		return nil, fmt.Errorf("cloud session is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		cloud:   deps.Cloud,
		checks:  deps.Checks,
		version: deps.Version,
		started: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// Returns:
//   - error: If the address cannot be bound or the server already started
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("status server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	srv := s.server
	go func() {
		s.logger.Info("status server listening", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts the server down. Safe to call before Start.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("status server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	return nil
}
