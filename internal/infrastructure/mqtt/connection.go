package mqtt

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/stefannilsson/arduino-iot-js/internal/cloud"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// clientFactory creates the paho client for a set of options.
type clientFactory func(*pahomqtt.ClientOptions) pahomqtt.Client

// Connection is a cloud.Connection backed by a paho MQTT client.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Lifecycle handlers run one at a time.
//   - Inbound messages reach the message handler from a single goroutine in
//     arrival order, so a slow handler never stalls paho's router.
//   - Acknowledged subscriptions are restored when paho reconnects on its own.
type Connection struct {
	client pahomqtt.Client
	logger Logger

	handlers  map[cloud.Event][]func(error)
	onMessage func(cloud.Message)
	mu        sync.RWMutex

	// emitMu serialises lifecycle events.
	emitMu sync.Mutex

	// topics tracks acknowledged subscriptions for restoration on reconnect.
	topics map[string]struct{}
	subMu  sync.Mutex

	inbox   chan cloud.Message
	done    chan struct{}
	endOnce sync.Once
}

// newConnection wires a Connection into opts and creates its paho client.
//
// Parameters:
//   - opts: Broker options; lifecycle and message handlers are overwritten
//   - factory: Creates the paho client; nil selects pahomqtt.NewClient
//   - logger: Optional logger; nil disables logging
func newConnection(opts *pahomqtt.ClientOptions, factory clientFactory, logger Logger) *Connection {
	if factory == nil {
		factory = pahomqtt.NewClient
	}
	if logger == nil {
		logger = nopLogger{}
	}

	c := &Connection{
		logger:   logger,
		handlers: make(map[cloud.Event][]func(error)),
		topics:   make(map[string]struct{}),
		inbox:    make(chan cloud.Message, inboxSize),
		done:     make(chan struct{}),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.logger.Debug("MQTT reconnecting")
	})
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.handleMessage(msg.Topic(), msg.Payload())
	})

	c.client = factory(opts)
	go c.dispatchLoop()
	return c
}

// On registers a lifecycle handler.
func (c *Connection) On(event cloud.Event, handler func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

// OnMessage sets the receiver for inbound messages.
func (c *Connection) OnMessage(handler func(cloud.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

// Open starts connecting in the background. A failed handshake is reported
// as EventError carrying a *cloud.ConnectError; success arrives through
// paho's OnConnect handler as EventConnect.
func (c *Connection) Open() error {
	if c.closed() {
		return ErrClosed
	}

	token := c.client.Connect()
	go func() {
		select {
		case <-token.Done():
		case <-c.done:
			return
		}
		if err := token.Error(); err != nil {
			c.emit(cloud.EventError, connectError(token, err))
		}
	}()
	return nil
}

// Subscribe subscribes to topic and waits for the SUBACK.
//
// Messages on the topic are delivered through the OnMessage handler.
//
// Returns:
//   - error: ErrInvalidTopic, ErrNotConnected, or ErrSubscribeFailed wrapping
//     the cause (ErrSubscribeRejected when the broker refused the filter)
func (c *Connection) Subscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, subscribeQoS, nil)
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	if err := checkGranted(token, topic); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	c.subMu.Lock()
	c.topics[topic] = struct{}{}
	c.subMu.Unlock()
	return nil
}

// Unsubscribe removes topic and waits for the UNSUBACK. The topic is no
// longer restored on reconnect even if the broker does not answer.
func (c *Connection) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	c.subMu.Lock()
	delete(c.topics, topic)
	c.subMu.Unlock()

	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Unsubscribe(topic)
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

// Publish sends payload to topic and waits until paho reports the message
// delivered for the requested QoS.
func (c *Connection) Publish(ctx context.Context, topic string, payload []byte, opts cloud.PublishOptions) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if opts.QoS > maxQoS {
		return ErrInvalidQoS
	}
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, opts.QoS, opts.Retain, payload)
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// End disconnects from the broker. With force set pending work is not
// given time to drain. Ending twice is not an error.
func (c *Connection) End(force bool) error {
	quiesce := uint(defaultDisconnectQuiesce)
	if force {
		quiesce = 0
	}
	c.endOnce.Do(func() {
		close(c.done)
		c.client.Disconnect(quiesce)
	})
	return nil
}

// Reconnect drops the session and connects again with the same options.
// EventDisconnect is reported before the new attempt starts.
func (c *Connection) Reconnect() error {
	if c.closed() {
		return ErrClosed
	}
	c.client.Disconnect(0)
	c.emit(cloud.EventDisconnect, nil)
	return c.Open()
}

// handleConnect restores tracked subscriptions, then reports the connection.
// paho calls it on the first connect and after every automatic reconnect.
func (c *Connection) handleConnect() {
	if c.closed() {
		return
	}
	c.restoreSubscriptions()
	c.emit(cloud.EventConnect, nil)
}

// handleConnectionLost reports the connection offline; paho is already
// reconnecting.
func (c *Connection) handleConnectionLost(err error) {
	if c.closed() {
		return
	}
	c.logger.Warn("MQTT connection lost", "error", err)
	c.emit(cloud.EventOffline, nil)
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Connection) restoreSubscriptions() {
	c.subMu.Lock()
	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	c.subMu.Unlock()
	slices.Sort(topics)

	for _, topic := range topics {
		token := c.client.Subscribe(topic, subscribeQoS, nil)
		if err := wait(context.Background(), token); err != nil {
			c.logger.Warn("MQTT subscription restore failed", "topic", topic, "error", err)
			continue
		}
		if err := checkGranted(token, topic); err != nil {
			c.logger.Warn("MQTT subscription restore failed", "topic", topic, "error", err)
		}
	}
}

// handleMessage queues an inbound message for the dispatch loop. The payload
// is copied because paho may reuse its buffer.
func (c *Connection) handleMessage(topic string, payload []byte) {
	msg := cloud.Message{Topic: topic, Payload: bytes.Clone(payload)}
	select {
	case c.inbox <- msg:
	case <-c.done:
	}
}

// dispatchLoop hands queued messages to the message handler until End.
func (c *Connection) dispatchLoop() {
	for {
		select {
		case msg := <-c.inbox:
			c.deliver(msg)
		case <-c.done:
			return
		}
	}
}

// deliver runs the message handler with panic recovery.
func (c *Connection) deliver(msg cloud.Message) {
	c.mu.RLock()
	handler := c.onMessage
	c.mu.RUnlock()
	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("MQTT handler panic recovered",
				"topic", msg.Topic,
				"panic", r,
			)
		}
	}()
	handler(msg)
}

func (c *Connection) emit(event cloud.Event, err error) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.RLock()
	handlers := slices.Clone(c.handlers[event])
	c.mu.RUnlock()

	for _, h := range handlers {
		h(err)
	}
}

func (c *Connection) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// wait blocks until token completes, ctx ends, or defaultOperationTimeout
// passes, whichever is first.
func wait(ctx context.Context, token pahomqtt.Token) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOperationTimeout)
	defer cancel()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// checkGranted inspects the SUBACK return code for topic.
func checkGranted(token pahomqtt.Token, topic string) error {
	st, ok := token.(*pahomqtt.SubscribeToken)
	if !ok {
		return nil
	}
	if code, ok := st.Result()[topic]; ok && code == subscribeFailure {
		return fmt.Errorf("%w: %s", ErrSubscribeRejected, topic)
	}
	return nil
}

var _ cloud.Connection = (*Connection)(nil)
