package cloud

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"
)

// fakeConn is an in-memory Connection. Open reports EventConnect unless
// connectErr is set (EventError) or manual is set (nothing).
type fakeConn struct {
	mu        sync.Mutex
	handlers  map[Event][]func(error)
	onMessage func(Message)

	token        string
	openErr      error
	connectErr   error
	manual       bool
	subscribeErr error
	publishErr   error

	subscribed   []string
	unsubscribed []string
	published    []publishCall
	ended        bool
	endForce     bool
	reconnects   int
}

type publishCall struct {
	topic   string
	payload []byte
	opts    PublishOptions
}

func (f *fakeConn) On(event Event, handler func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[Event][]func(error))
	}
	f.handlers[event] = append(f.handlers[event], handler)
}

func (f *fakeConn) OnMessage(handler func(Message)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMessage = handler
}

func (f *fakeConn) Open() error {
	f.mu.Lock()
	openErr, connectErr, manual := f.openErr, f.connectErr, f.manual
	f.mu.Unlock()

	switch {
	case openErr != nil:
		return openErr
	case connectErr != nil:
		f.emit(EventError, connectErr)
	case !manual:
		f.emit(EventConnect, nil)
	}
	return nil
}

func (f *fakeConn) Subscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribed = append(f.subscribed, topic)
	return nil
}

func (f *fakeConn) Unsubscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeConn) Publish(_ context.Context, topic string, payload []byte, opts PublishOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishCall{topic: topic, payload: payload, opts: opts})
	return nil
}

func (f *fakeConn) End(force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = true
	f.endForce = force
	return nil
}

func (f *fakeConn) Reconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	return nil
}

func (f *fakeConn) emit(event Event, err error) {
	f.mu.Lock()
	handlers := slices.Clone(f.handlers[event])
	f.mu.Unlock()
	for _, h := range handlers {
		h(err)
	}
}

func (f *fakeConn) deliver(topic string, payload []byte) {
	f.mu.Lock()
	handler := f.onMessage
	f.mu.Unlock()
	if handler != nil {
		handler(Message{Topic: topic, Payload: payload})
	}
}

func (f *fakeConn) subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.subscribed)
}

func (f *fakeConn) wasEnded() (ended, force bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ended, f.endForce
}

// fakeBuilder builds fakeConns. configure, when set, adjusts the n-th
// connection (starting at 0) before it is returned.
type fakeBuilder struct {
	mu        sync.Mutex
	reject    bool
	configure func(n int, conn *fakeConn)
	built     []*fakeConn
	options   []Options
}

func (b *fakeBuilder) CanBuild(Options) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.reject
}

func (b *fakeBuilder) Build(opts Options) (Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	conn := &fakeConn{token: opts.Token}
	if b.configure != nil {
		b.configure(len(b.built), conn)
	}
	b.built = append(b.built, conn)
	b.options = append(b.options, opts)
	return conn, nil
}

func (b *fakeBuilder) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.built)
}

func (b *fakeBuilder) conn(n int) *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.built[n]
}

func (b *fakeBuilder) optionsAt(n int) Options {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.options[n]
}

func (b *fakeBuilder) last() *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.built[len(b.built)-1]
}

// connectedClient returns a client connected through a fresh fakeBuilder.
func connectedClient(t *testing.T, opts Options) (*Client, *fakeBuilder) {
	t.Helper()
	builder := &fakeBuilder{}
	client := NewClient(builder)
	if opts.Token == "" {
		opts.Token = "token-1"
	}
	if err := client.Connect(context.Background(), opts); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return client, builder
}

// recorder collects records delivered to a handler.
type recorder struct {
	mu      sync.Mutex
	records []Record
}

func (r *recorder) handle(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recorder) all() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.records)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newSignal() (func(), <-chan struct{}) {
	ch := make(chan struct{}, 16)
	return func() { ch <- struct{}{} }, ch
}

func expectSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func expectNoSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("unexpected %s", what)
	case <-time.After(50 * time.Millisecond):
	}
}
