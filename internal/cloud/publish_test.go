package cloud

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stefannilsson/arduino-iot-js/internal/senml"
)

func lastPublish(t *testing.T, conn *fakeConn) publishCall {
	t.Helper()
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.published) == 0 {
		t.Fatal("nothing published")
	}
	return conn.published[len(conn.published)-1]
}

// =============================================================================
// SendMessage Tests
// =============================================================================

func TestSendMessage(t *testing.T) {
	client, builder := connectedClient(t, Options{})

	if err := client.SendMessage(context.Background(), "/a/d/dev/s/i", []byte("ping")); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	call := lastPublish(t, builder.conn(0))
	if call.topic != "/a/d/dev/s/i" {
		t.Errorf("topic = %q, want %q", call.topic, "/a/d/dev/s/i")
	}
	if call.opts.QoS != 1 || call.opts.Retain {
		t.Errorf("opts = %+v, want QoS 1 not retained", call.opts)
	}
}

func TestSendString_SameBytesAsSendMessage(t *testing.T) {
	client, builder := connectedClient(t, Options{})
	ctx := context.Background()
	msg := "grüße ✓"

	if err := client.SendString(ctx, "/t", msg); err != nil {
		t.Fatalf("SendString() error = %v", err)
	}
	asString := lastPublish(t, builder.conn(0)).payload

	if err := client.SendMessage(ctx, "/t", []byte(msg)); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	asBytes := lastPublish(t, builder.conn(0)).payload

	if !bytes.Equal(asString, asBytes) {
		t.Errorf("SendString payload = %x, SendMessage payload = %x", asString, asBytes)
	}
}

func TestSendMessage_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("not connected", func(t *testing.T) {
		client := NewClient(&fakeBuilder{})
		if err := client.SendMessage(ctx, "/t", []byte("x")); !errors.Is(err, ErrNotConnected) {
			t.Errorf("SendMessage() error = %v, want ErrNotConnected", err)
		}
	})

	t.Run("empty topic", func(t *testing.T) {
		client, _ := connectedClient(t, Options{})
		if err := client.SendMessage(ctx, "", []byte("x")); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("SendMessage() error = %v, want ErrInvalidTopic", err)
		}
	})

	t.Run("payload too large", func(t *testing.T) {
		client, _ := connectedClient(t, Options{})
		err := client.SendMessage(ctx, "/t", make([]byte, maxPayloadSize+1))
		if !errors.Is(err, ErrPublishFailed) {
			t.Errorf("SendMessage() error = %v, want ErrPublishFailed", err)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		client, builder := connectedClient(t, Options{})
		conn := builder.conn(0)
		conn.mu.Lock()
		conn.publishErr = errors.New("puback timeout")
		conn.mu.Unlock()

		if err := client.SendMessage(ctx, "/t", []byte("x")); !errors.Is(err, ErrPublishFailed) {
			t.Errorf("SendMessage() error = %v, want ErrPublishFailed", err)
		}
	})
}

// =============================================================================
// Property Tests
// =============================================================================

func TestSendProperty(t *testing.T) {
	client, builder := connectedClient(t, Options{})

	if err := client.SendProperty(context.Background(), testThingID, "setpoint", 21.5, 1536743296); err != nil {
		t.Fatalf("SendProperty() error = %v", err)
	}

	call := lastPublish(t, builder.conn(0))
	if want := (Topics{}).PropertyInput(testThingID); call.topic != want {
		t.Errorf("topic = %q, want %q", call.topic, want)
	}

	want, err := senml.EncodeProperty("", "setpoint", 21.5, 1536743296, senml.ProtocolV1)
	if err != nil {
		t.Fatalf("EncodeProperty() error = %v", err)
	}
	if !bytes.Equal(call.payload, want) {
		t.Errorf("payload = %x, want %x", call.payload, want)
	}
}

func TestSendProperty_UsesProtocolV2(t *testing.T) {
	client, builder := connectedClient(t, Options{Protocol: senml.ProtocolV2})

	if err := client.SendProperty(context.Background(), testThingID, "on", true, 1536743296); err != nil {
		t.Fatalf("SendProperty() error = %v", err)
	}

	want, err := senml.EncodeProperty("", "on", true, 1536743296, senml.ProtocolV2)
	if err != nil {
		t.Fatalf("EncodeProperty() error = %v", err)
	}
	if got := lastPublish(t, builder.conn(0)).payload; !bytes.Equal(got, want) {
		t.Errorf("payload = %x, want %x", got, want)
	}
}

func TestSendProperty_InvalidName(t *testing.T) {
	client, _ := connectedClient(t, Options{})

	err := client.SendProperty(context.Background(), testThingID, "", 1, 0)
	if !errors.Is(err, ErrInvalidName) {
		t.Errorf("SendProperty() error = %v, want ErrInvalidName", err)
	}
}

func TestSendPropertyAsDevice(t *testing.T) {
	client, builder := connectedClient(t, Options{})
	deviceID := "1f4ced70-53ad-4b29-b221-1b0abbdfc757"

	if err := client.SendPropertyAsDevice(context.Background(), deviceID, testThingID, "led", false, 1536743296); err != nil {
		t.Fatalf("SendPropertyAsDevice() error = %v", err)
	}

	call := lastPublish(t, builder.conn(0))
	if want := (Topics{}).PropertyOutput(testThingID); call.topic != want {
		t.Errorf("topic = %q, want %q", call.topic, want)
	}

	records, err := senml.Decode(call.payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(records) != 1 || records[0].BaseName != "urn:uuid:"+deviceID || records[0].Value != false {
		t.Errorf("records = %+v", records)
	}
}

// =============================================================================
// Cloud Monitor Tests
// =============================================================================

func TestCloudMonitor(t *testing.T) {
	client, builder := connectedClient(t, Options{})
	ctx := context.Background()
	conn := builder.conn(0)

	rec := &recorder{}
	if err := client.OpenCloudMonitor(ctx, "dev-1", rec.handle); err != nil {
		t.Fatalf("OpenCloudMonitor() error = %v", err)
	}
	if got := conn.subscriptions(); len(got) != 1 || got[0] != "/a/d/dev-1/s/o" {
		t.Errorf("subscriptions = %v", got)
	}

	if err := client.WriteCloudMonitor(ctx, "dev-1", []byte("reset\n")); err != nil {
		t.Fatalf("WriteCloudMonitor() error = %v", err)
	}
	if call := lastPublish(t, conn); call.topic != "/a/d/dev-1/s/i" || string(call.payload) != "reset\n" {
		t.Errorf("publish = %+v", call)
	}

	if err := client.CloseCloudMonitor(ctx, "dev-1"); err != nil {
		t.Fatalf("CloseCloudMonitor() error = %v", err)
	}
	conn.deliver("/a/d/dev-1/s/o", []byte("late"))
	if got := len(rec.all()); got != 0 {
		t.Errorf("deliveries after close = %d, want 0", got)
	}
}
