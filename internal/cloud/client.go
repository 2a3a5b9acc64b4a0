package cloud

import (
	"context"
	"fmt"
	"sync"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// State is the lifecycle state of the held connection.
type State int

// Connection states.
const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateOffline
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateOffline:
		return "offline"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Client owns at most one live Connection and multiplexes topic
// subscriptions over it.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscribe, Unsubscribe and subscription replay are serialised so that
//     every topic maps to exactly one transport subscription.
//   - Handlers for one topic run in the order the transport delivered the
//     messages.
type Client struct {
	builders []ConnectionBuilder
	logger   Logger

	// mu guards the held connection and everything describing it.
	mu      sync.Mutex
	conn    Connection
	state   State
	options Options
	// gen changes whenever conn is replaced or released; events carrying an
	// older generation are ignored.
	gen uint64
	// settle completes a handshake still waiting in connect.
	settle func(error)
	// cancelRecovery stops a background session renewal, if one runs.
	cancelRecovery context.CancelFunc
	// renewals holds the cancel funcs of UpdateToken calls in flight, keyed
	// by renewSeq at the time they started.
	renewals map[uint64]context.CancelFunc
	renewSeq uint64

	// opMu serialises subscription changes against the wire.
	opMu sync.Mutex

	subMu  sync.RWMutex
	topics map[string]*topicEntry
	order  []string

	// renewMu allows one session renewal at a time.
	renewMu sync.Mutex
}

// NewClient returns a client that builds connections with the first
// matching builder.
func NewClient(builders ...ConnectionBuilder) *Client {
	return &Client{
		builders: builders,
		logger:   nopLogger{},
		topics:   make(map[string]*topicEntry),
		renewals: make(map[uint64]context.CancelFunc),
	}
}

// From connects a new client over an existing connection.
func From(ctx context.Context, conn Connection, opts Options) (*Client, error) {
	c := NewClient(&existingConnection{conn: conn})
	if err := c.Connect(ctx, opts); err != nil {
		return nil, err
	}
	return c, nil
}

// SetLogger sets a logger for lifecycle, renewal and handler panic logging.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if logger == nil {
		logger = nopLogger{}
	}
	c.logger = logger
}

func (c *Client) getLogger() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// Connect builds a connection from opts and waits until the transport
// reports it connected.
//
// Returns:
//   - ErrAlreadyConnected if a connection is already held
//   - ErrNoBuilderMatched if no builder accepts opts
//   - *ConnectError if the transport fails before the handshake completes
//   - ctx.Err() if ctx ends first; the attempt is abandoned
func (c *Client) Connect(ctx context.Context, opts Options) error {
	return c.connect(ctx, opts, true)
}

// connect is Connect with control over whether the first EventConnect fires
// the OnConnected hook. Session renewal fires the hook itself after replay.
func (c *Client) connect(ctx context.Context, opts Options, notify bool) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		return err
	}

	opts = opts.withDefaults()
	builder := c.selectBuilder(opts)
	if builder == nil {
		c.mu.Unlock()
		return ErrNoBuilderMatched
	}

	conn, err := builder.Build(opts)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("building connection: %w", err)
	}

	result := make(chan error, 1)
	var once sync.Once
	settle := func(err error) {
		once.Do(func() { result <- err })
	}

	c.gen++
	gen := c.gen
	c.conn = conn
	c.state = StateConnecting
	c.options = opts
	c.settle = settle
	c.mu.Unlock()

	c.attach(conn, gen, notify, settle)

	if err := conn.Open(); err != nil {
		c.release(gen)
		return asConnectError(err)
	}

	select {
	case err := <-result:
		if err != nil {
			c.release(gen)
			return err
		}
		return nil
	case <-ctx.Done():
		c.release(gen)
		return ctx.Err()
	}
}

func (c *Client) selectBuilder(opts Options) ConnectionBuilder {
	for _, b := range c.builders {
		if b.CanBuild(opts) {
			return b
		}
	}
	return nil
}

// attach wires the connection's events to the client. settle receives the
// outcome of the handshake.
func (c *Client) attach(conn Connection, gen uint64, notify bool, settle func(error)) {
	conn.On(EventConnect, func(error) {
		c.handleConnect(gen, notify, settle)
	})
	conn.On(EventOffline, func(error) {
		c.handleOffline(gen)
	})
	conn.On(EventDisconnect, func(error) {
		c.handleDisconnect(gen)
	})
	conn.On(EventError, func(err error) {
		c.handleError(gen, err, settle)
	})
	conn.OnMessage(func(msg Message) {
		c.dispatch(gen, msg)
	})
}

func (c *Client) handleConnect(gen uint64, notify bool, settle func(error)) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	first := c.state == StateConnecting
	c.state = StateConnected
	c.settle = nil
	hook := c.options.OnConnected
	logger := c.logger
	c.mu.Unlock()

	if first {
		settle(nil)
		logger.Info("cloud connection established")
		if !notify {
			return
		}
	} else {
		logger.Info("cloud connection restored")
	}
	fire(hook)
}

func (c *Client) handleOffline(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = StateOffline
	hook := c.options.OnOffline
	logger := c.logger
	c.mu.Unlock()

	logger.Warn("cloud connection offline")
	fire(hook)
}

func (c *Client) handleDisconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	hook := c.options.OnDisconnect
	logger := c.logger
	c.mu.Unlock()

	logger.Warn("cloud connection closed by transport")
	fire(hook)
}

// handleError rejects a pending handshake, or starts a session renewal when
// the error arrives on an established connection.
func (c *Client) handleError(gen uint64, err error, settle func(error)) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	connecting := c.state == StateConnecting
	logger := c.logger
	c.mu.Unlock()

	if connecting {
		settle(asConnectError(err))
		return
	}

	logger.Error("cloud connection error, renewing session", "error", err)
	go c.recoverSession(gen)
}

// fire runs hook without blocking the caller.
func fire(hook func()) {
	if hook != nil {
		go hook()
	}
}

// release ends and forgets the connection of generation gen, if still held.
func (c *Client) release(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.state = StateIdle
	c.settle = nil
	c.gen++
	logger := c.logger
	c.mu.Unlock()

	if err := conn.End(true); err != nil {
		logger.Warn("ending failed connection", "error", err)
	}
}

// Disconnect closes the held connection without waiting for in-flight work,
// and drops every subscription. Session renewals in progress, automatic or
// started by UpdateToken, are stopped and the client stays idle.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	recovering := c.cancelRecovery != nil || len(c.renewals) > 0
	if conn == nil && !recovering {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.cancelRecovery != nil {
		c.cancelRecovery()
		c.cancelRecovery = nil
	}
	for id, cancel := range c.renewals {
		cancel()
		delete(c.renewals, id)
	}
	if c.settle != nil {
		c.settle(fmt.Errorf("%w: disconnected while connecting", ErrNotConnected))
		c.settle = nil
	}
	c.conn = nil
	c.state = StateIdle
	c.gen++
	c.mu.Unlock()

	c.clearTopics()

	if conn == nil {
		return nil
	}
	if err := conn.End(true); err != nil {
		return fmt.Errorf("ending connection: %w", err)
	}
	return nil
}

// Reconnect asks the held connection to re-establish itself with the same
// credentials.
func (c *Client) Reconnect() error {
	conn := c.connection()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Reconnect(); err != nil {
		return fmt.Errorf("reconnecting: %w", err)
	}
	return nil
}

// State returns the lifecycle state of the held connection.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the held connection is up.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Options returns the options of the current or most recent connection.
func (c *Client) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.options
}

func (c *Client) connection() Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// existingConnection is a builder that hands out one prepared connection.
type existingConnection struct {
	mu   sync.Mutex
	conn Connection
}

func (b *existingConnection) CanBuild(Options) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

func (b *existingConnection) Build(Options) (Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	conn := b.conn
	b.conn = nil
	if conn == nil {
		return nil, ErrNoBuilderMatched
	}
	return conn, nil
}
