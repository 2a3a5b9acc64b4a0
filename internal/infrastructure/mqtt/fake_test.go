package mqtt

import (
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/stefannilsson/arduino-iot-js/internal/cloud"
)

// fakeToken is a pahomqtt.Token completed by the test.
type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type fakePublish struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho is an in-memory pahomqtt.Client. A successful Connect calls the
// OnConnect handler from its own goroutine, as paho does.
type fakePaho struct {
	mu   sync.Mutex
	opts *pahomqtt.ClientOptions

	connected    bool
	connectErr   error
	subscribeErr error
	publishErr   error
	hang         bool

	connects     int
	subscribed   []string
	unsubscribed []string
	published    []fakePublish
	disconnects  []uint
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakePaho) Connect() pahomqtt.Token {
	f.mu.Lock()
	f.connects++
	if f.connectErr != nil {
		err := f.connectErr
		f.mu.Unlock()
		return completedToken(err)
	}
	f.connected = true
	onConnect := f.opts.OnConnect
	f.mu.Unlock()

	go onConnect(f)
	return completedToken(nil)
}

func (f *fakePaho) Disconnect(quiesce uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects = append(f.disconnects, quiesce)
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hang {
		return pendingToken()
	}
	if f.publishErr != nil {
		return completedToken(f.publishErr)
	}
	f.published = append(f.published, fakePublish{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return completedToken(nil)
}

func (f *fakePaho) Subscribe(topic string, _ byte, _ pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hang {
		return pendingToken()
	}
	if f.subscribeErr != nil {
		return completedToken(f.subscribeErr)
	}
	f.subscribed = append(f.subscribed, topic)
	return completedToken(nil)
}

func (f *fakePaho) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return completedToken(nil)
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	return completedToken(nil)
}

func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.NewOptionsReader(f.opts)
}

func (f *fakePaho) subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

func (f *fakePaho) set(fn func(f *fakePaho)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// factory returns a clientFactory handing out f with the options recorded.
func (f *fakePaho) factory() clientFactory {
	return func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.opts = opts
		return f
	}
}

// newTestConnection returns a Connection over a fresh fakePaho.
func newTestConnection(t *testing.T) (*Connection, *fakePaho) {
	t.Helper()
	fake := &fakePaho{}
	params := brokerParams{scheme: schemeTCP, host: "127.0.0.1", port: 1883, clientID: "test"}
	conn := newConnection(buildClientOptions(params), fake.factory(), nil)
	t.Cleanup(func() { _ = conn.End(true) })
	return conn, fake
}

// eventRecorder collects lifecycle events on a channel.
func eventRecorder(conn *Connection, events ...cloud.Event) <-chan recordedEvent {
	ch := make(chan recordedEvent, 16)
	for _, event := range events {
		conn.On(event, func(err error) { ch <- recordedEvent{event: event, err: err} })
	}
	return ch
}

type recordedEvent struct {
	event cloud.Event
	err   error
}

func nextEvent(t *testing.T, ch <-chan recordedEvent) recordedEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a lifecycle event")
		return recordedEvent{}
	}
}

// fakeMessage is an inbound pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}
