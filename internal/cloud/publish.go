package cloud

import (
	"context"
	"fmt"

	"github.com/stefannilsson/arduino-iot-js/internal/senml"
)

// Maximum payload size accepted for publishing (1MB).
const maxPayloadSize = 1 << 20

// publishOptions is the delivery used for every outbound message:
// at-least-once, not retained.
var publishOptions = PublishOptions{QoS: 1, Retain: false}

// SendMessage publishes payload to topic.
func (c *Client) SendMessage(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	conn := c.connection()
	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.Publish(ctx, topic, payload, publishOptions); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// SendString publishes the UTF-8 bytes of msg to topic.
func (c *Client) SendString(ctx context.Context, topic, msg string) error {
	return c.SendMessage(ctx, topic, []byte(msg))
}

// SendProperty publishes a property value of a thing. A zero timestamp
// means now.
func (c *Client) SendProperty(ctx context.Context, thingID, name string, value any, timestamp int64) error {
	payload, err := senml.EncodeProperty("", name, value, timestamp, c.Options().Protocol)
	if err != nil {
		return fmt.Errorf("encoding property %q: %w", name, err)
	}
	return c.SendMessage(ctx, Topics{}.PropertyInput(thingID), payload)
}

// SendPropertyAsDevice publishes a property value on the thing's output
// topic as if deviceID had reported it.
func (c *Client) SendPropertyAsDevice(ctx context.Context, deviceID, thingID, name string, value any, timestamp int64) error {
	payload, err := senml.EncodeProperty(deviceID, name, value, timestamp, c.Options().Protocol)
	if err != nil {
		return fmt.Errorf("encoding property %q: %w", name, err)
	}
	return c.SendMessage(ctx, Topics{}.PropertyOutput(thingID), payload)
}

// OpenCloudMonitor subscribes handler to a device's serial monitor output.
// Records carry the output text as a string Value.
func (c *Client) OpenCloudMonitor(ctx context.Context, deviceID string, handler Handler) error {
	return c.Subscribe(ctx, Topics{}.MonitorOutput(deviceID), handler)
}

// WriteCloudMonitor writes payload to a device's serial monitor input.
func (c *Client) WriteCloudMonitor(ctx context.Context, deviceID string, payload []byte) error {
	return c.SendMessage(ctx, Topics{}.MonitorInput(deviceID), payload)
}

// CloseCloudMonitor stops delivery of a device's serial monitor output.
func (c *Client) CloseCloudMonitor(ctx context.Context, deviceID string) error {
	return c.Unsubscribe(ctx, Topics{}.MonitorOutput(deviceID))
}
