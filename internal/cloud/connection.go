package cloud

import "context"

// Event identifies a transport lifecycle event.
type Event string

// Transport lifecycle events.
const (
	EventConnect    Event = "connect"
	EventOffline    Event = "offline"
	EventDisconnect Event = "disconnect"
	EventError      Event = "error"
)

// Message is one inbound payload as delivered by the transport.
type Message struct {
	Topic   string
	Payload []byte
}

// PublishOptions controls delivery of an outbound message.
type PublishOptions struct {
	QoS    byte
	Retain bool
}

// Connection is one live transport session.
//
// Implementations report their lifecycle through handlers registered with On.
// EventError carries the failure; the other events carry nil. Handlers may be
// invoked from any goroutine but must be invoked sequentially for a given
// connection.
type Connection interface {
	// On registers handler for event. Multiple handlers run in order.
	On(event Event, handler func(err error))

	// OnMessage sets the receiver for inbound messages on any subscribed topic.
	OnMessage(handler func(Message))

	// Open starts connecting. The outcome is reported as EventConnect or
	// EventError; a non-nil return means the attempt never started.
	Open() error

	// Subscribe returns once the broker acknowledges the subscription.
	Subscribe(ctx context.Context, topic string) error

	// Unsubscribe returns once the broker acknowledges the removal.
	Unsubscribe(ctx context.Context, topic string) error

	// Publish sends payload to topic.
	Publish(ctx context.Context, topic string, payload []byte, opts PublishOptions) error

	// End closes the session. With force set it does not wait for in-flight
	// work to drain.
	End(force bool) error

	// Reconnect re-establishes the session with the same credentials.
	Reconnect() error
}

// ConnectionBuilder creates connections for the options it supports.
type ConnectionBuilder interface {
	CanBuild(opts Options) bool
	Build(opts Options) (Connection, error)
}
