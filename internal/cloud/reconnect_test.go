package cloud

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

const testDelay = 10 * time.Millisecond

// =============================================================================
// UpdateToken Tests
// =============================================================================

func TestUpdateToken_ReplaysSubscriptions(t *testing.T) {
	var hookCalls atomic.Int32
	onConnected, connected := newSignal()
	client, builder := connectedClient(t, Options{
		ReconnectDelay: testDelay,
		OnConnected: func() {
			hookCalls.Add(1)
			onConnected()
		},
	})
	expectSignal(t, connected, "OnConnected after connect")
	ctx := context.Background()

	topicA := Topics{}.PropertyOutput(testThingID)
	topicB := Topics{}.MonitorOutput("dev-1")

	var order []string
	if err := client.Subscribe(ctx, topicA, func(Record) { order = append(order, "a1") }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := client.Subscribe(ctx, topicB, func(Record) { order = append(order, "b1") }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := client.Subscribe(ctx, topicA, func(Record) { order = append(order, "a2") }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	old := builder.conn(0)

	if err := client.UpdateToken(ctx, "token-2"); err != nil {
		t.Fatalf("UpdateToken() error = %v", err)
	}

	if ended, force := old.wasEnded(); !ended || !force {
		t.Errorf("old connection ended = %v force = %v, want true true", ended, force)
	}
	if builder.count() != 2 {
		t.Fatalf("built %d connections, want 2", builder.count())
	}
	if got := builder.optionsAt(1).Token; got != "token-2" {
		t.Errorf("new connection token = %q, want %q", got, "token-2")
	}

	fresh := builder.conn(1)
	if got := fresh.subscriptions(); !slices.Equal(got, []string{topicA, topicB}) {
		t.Errorf("replayed subscriptions = %v, want [%s %s]", got, topicA, topicB)
	}

	old.deliver(topicA, propertyPayload(t, "x", 1))
	fresh.deliver(topicA, propertyPayload(t, "x", 1))
	fresh.deliver(topicB, []byte("serial"))
	if !slices.Equal(order, []string{"a1", "a2", "b1"}) {
		t.Errorf("delivery order = %v, want [a1 a2 b1]", order)
	}

	expectSignal(t, connected, "OnConnected after renewal")
	expectNoSignal(t, connected, "second OnConnected after renewal")
	if got := hookCalls.Load(); got != 2 {
		t.Errorf("OnConnected calls = %d, want 2", got)
	}
}

func TestUpdateToken_RetriesUntilConnected(t *testing.T) {
	builder := &fakeBuilder{configure: func(n int, conn *fakeConn) {
		if n == 1 || n == 2 {
			conn.connectErr = errors.New("broker unavailable")
		}
	}}
	client := NewClient(builder)
	ctx := context.Background()
	if err := client.Connect(ctx, Options{Token: "token-1", ReconnectDelay: testDelay}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	topic := Topics{}.PropertyOutput(testThingID)
	rec := &recorder{}
	if err := client.Subscribe(ctx, topic, rec.handle); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	start := time.Now()
	if err := client.UpdateToken(ctx, "token-2"); err != nil {
		t.Fatalf("UpdateToken() error = %v", err)
	}

	if builder.count() != 4 {
		t.Errorf("built %d connections, want 4", builder.count())
	}
	if elapsed := time.Since(start); elapsed < 2*testDelay {
		t.Errorf("UpdateToken() took %v, want at least %v", elapsed, 2*testDelay)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}

	builder.last().deliver(topic, propertyPayload(t, "x", 1))
	if got := len(rec.all()); got != 1 {
		t.Errorf("deliveries after renewal = %d, want 1", got)
	}
}

func TestUpdateToken_ReplayFailureRetries(t *testing.T) {
	builder := &fakeBuilder{configure: func(n int, conn *fakeConn) {
		if n == 1 {
			conn.subscribeErr = errors.New("not authorized for topic")
		}
	}}
	client := NewClient(builder)
	ctx := context.Background()
	if err := client.Connect(ctx, Options{Token: "token-1", ReconnectDelay: testDelay}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Subscribe(ctx, "/a/d/dev/s/o", func(Record) {}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.UpdateToken(ctx, "token-2"); err != nil {
		t.Fatalf("UpdateToken() error = %v", err)
	}

	if builder.count() != 3 {
		t.Fatalf("built %d connections, want 3", builder.count())
	}
	if ended, _ := builder.conn(1).wasEnded(); !ended {
		t.Error("connection with failed replay was not ended")
	}
	if got := builder.conn(2).subscriptions(); len(got) != 1 {
		t.Errorf("replayed subscriptions = %v, want one", got)
	}
}

func TestUpdateToken_ContextCancelled(t *testing.T) {
	builder := &fakeBuilder{configure: func(n int, conn *fakeConn) {
		if n > 0 {
			conn.connectErr = errors.New("broker unavailable")
		}
	}}
	client := NewClient(builder)
	if err := client.Connect(context.Background(), Options{Token: "token-1", ReconnectDelay: testDelay}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*testDelay)
	defer cancel()

	err := client.UpdateToken(ctx, "token-2")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("UpdateToken() error = %v, want context.DeadlineExceeded", err)
	}
	if builder.count() < 3 {
		t.Errorf("built %d connections, want at least 3", builder.count())
	}
}

func TestUpdateToken_SubscribeDuringRenewalFailsFast(t *testing.T) {
	builder := &fakeBuilder{configure: func(n int, conn *fakeConn) {
		if n > 0 {
			conn.connectErr = errors.New("broker unavailable")
		}
	}}
	client := NewClient(builder)
	if err := client.Connect(context.Background(), Options{Token: "token-1", ReconnectDelay: 50 * time.Millisecond}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.UpdateToken(ctx, "token-2") }()
	waitFor(t, "a failed renewal attempt", func() bool { return builder.count() >= 2 })

	err := client.Subscribe(context.Background(), "/a/d/dev/s/o", func(Record) {})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() during renewal error = %v, want ErrNotConnected", err)
	}

	cancel()
	<-done
}

func TestUpdateToken_DisconnectStops(t *testing.T) {
	builder := &fakeBuilder{configure: func(n int, conn *fakeConn) {
		if n == 1 {
			conn.manual = true
		}
	}}
	client := NewClient(builder)
	ctx := context.Background()
	if err := client.Connect(ctx, Options{Token: "token-1", ReconnectDelay: testDelay}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Subscribe(ctx, Topics{}.PropertyOutput(testThingID), func(Record) {}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- client.UpdateToken(ctx, "token-2") }()
	waitFor(t, "renewal handshake", func() bool { return builder.count() == 2 })

	if err := client.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("UpdateToken() error = %v, want ErrNotConnected", err)
		}
	case <-time.After(time.Second):
		t.Fatal("UpdateToken() did not return after Disconnect")
	}

	time.Sleep(5 * testDelay)
	if builder.count() != 2 {
		t.Errorf("built %d connections after Disconnect, want 2", builder.count())
	}
	if got := client.State(); got != StateIdle {
		t.Errorf("State() = %v, want %v", got, StateIdle)
	}
	if got := client.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", got)
	}
}

func TestUpdateToken_CancelledBeforeStartKeepsSession(t *testing.T) {
	client, builder := connectedClient(t, Options{ReconnectDelay: testDelay})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.UpdateToken(ctx, "token-2"); !errors.Is(err, context.Canceled) {
		t.Errorf("UpdateToken() error = %v, want context.Canceled", err)
	}
	if ended, _ := builder.conn(0).wasEnded(); ended {
		t.Error("held connection was ended by a cancelled renewal")
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
}

func TestUpdateToken_OutlastsLongOutage(t *testing.T) {
	const failures = 8
	builder := &fakeBuilder{configure: func(n int, conn *fakeConn) {
		if n >= 1 && n <= failures {
			conn.connectErr = errors.New("broker unavailable")
		}
	}}
	client := NewClient(builder)
	ctx := context.Background()
	if err := client.Connect(ctx, Options{Token: "token-1", ReconnectDelay: testDelay}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	start := time.Now()
	if err := client.UpdateToken(ctx, "token-2"); err != nil {
		t.Fatalf("UpdateToken() error = %v", err)
	}

	if elapsed := time.Since(start); elapsed < failures*testDelay {
		t.Errorf("UpdateToken() took %v, want at least %v", elapsed, failures*testDelay)
	}
	if got := builder.count(); got != failures+2 {
		t.Errorf("built %d connections, want %d", got, failures+2)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
}

// =============================================================================
// Automatic Recovery Tests
// =============================================================================

func TestRecovery_AfterTransportError(t *testing.T) {
	onConnected, connected := newSignal()
	client, builder := connectedClient(t, Options{ReconnectDelay: testDelay, OnConnected: onConnected})
	expectSignal(t, connected, "OnConnected after connect")
	ctx := context.Background()
	topic := Topics{}.PropertyOutput(testThingID)

	rec := &recorder{}
	if err := client.Subscribe(ctx, topic, rec.handle); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	builder.conn(0).emit(EventError, errors.New("keepalive timeout"))

	waitFor(t, "renewed connection", func() bool {
		return builder.count() == 2 && len(builder.conn(1).subscriptions()) == 1
	})
	expectSignal(t, connected, "OnConnected after recovery")

	if got := builder.optionsAt(1).Token; got != "token-1" {
		t.Errorf("recovery token = %q, want %q", got, "token-1")
	}
	builder.conn(1).deliver(topic, propertyPayload(t, "x", 1))
	if got := len(rec.all()); got != 1 {
		t.Errorf("deliveries after recovery = %d, want 1", got)
	}
}

func TestRecovery_DisconnectStopsRetries(t *testing.T) {
	builder := &fakeBuilder{configure: func(n int, conn *fakeConn) {
		if n > 0 {
			conn.connectErr = errors.New("broker unavailable")
		}
	}}
	client := NewClient(builder)
	if err := client.Connect(context.Background(), Options{Token: "token-1", ReconnectDelay: testDelay}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	builder.conn(0).emit(EventError, errors.New("connection reset"))
	waitFor(t, "failed recovery attempts", func() bool { return builder.count() >= 3 })

	if err := client.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	time.Sleep(5 * testDelay)
	settled := builder.count()
	time.Sleep(5 * testDelay)
	if builder.count() != settled {
		t.Errorf("connections built after Disconnect grew from %d to %d", settled, builder.count())
	}
	if client.State() != StateIdle {
		t.Errorf("State() = %v, want %v", client.State(), StateIdle)
	}
}
