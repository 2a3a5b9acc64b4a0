package mqtt

import (
	"errors"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/stefannilsson/arduino-iot-js/internal/cloud"
)

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrClosed is returned by operations on a connection that was ended.
	ErrClosed = errors.New("mqtt: connection closed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrSubscribeRejected is returned when the broker answers a subscription
	// with a failure return code.
	ErrSubscribeRejected = errors.New("mqtt: subscription rejected by broker")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrInvalidCredentials is returned by builders when the options carry
	// credentials they cannot use.
	ErrInvalidCredentials = errors.New("mqtt: invalid credentials")
)

// subscribeFailure is the SUBACK return code for a refused topic filter.
const subscribeFailure = 0x80

// connectError converts a failed CONNECT into a cloud.ConnectError carrying
// the CONNACK return code. Network failures, which never reach the CONNACK,
// use packets.ErrNetworkError.
func connectError(token pahomqtt.Token, err error) *cloud.ConnectError {
	code := byte(packets.ErrNetworkError)
	if ct, ok := token.(*pahomqtt.ConnectToken); ok && ct.ReturnCode() != packets.Accepted {
		code = ct.ReturnCode()
	} else if known, ok := connackCode(err); ok {
		code = known
	}
	return &cloud.ConnectError{Code: int(code), Message: err.Error(), Err: err}
}

// connackCode finds the CONNACK return code whose paho error err wraps.
func connackCode(err error) (byte, bool) {
	for code, known := range packets.ConnErrors {
		if code != packets.Accepted && errors.Is(err, known) {
			return code, true
		}
	}
	return 0, false
}
