package cloud

import (
	"errors"
	"fmt"

	"github.com/stefannilsson/arduino-iot-js/internal/senml"
)

// Domain-specific errors for cloud client operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAlreadyConnected is returned by Connect while a connection is held.
	ErrAlreadyConnected = errors.New("cloud: connection already open")

	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = errors.New("cloud: not connected")

	// ErrNoBuilderMatched is returned when no builder accepts the options.
	ErrNoBuilderMatched = errors.New("cloud: no connection builder matched the options")

	// ErrSubscribeFailed is returned when the broker rejects a subscription.
	ErrSubscribeFailed = errors.New("cloud: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe is not acknowledged.
	ErrUnsubscribeFailed = errors.New("cloud: unsubscribe failed")

	// ErrPublishFailed is returned when a publish is not acknowledged.
	ErrPublishFailed = errors.New("cloud: publish failed")

	// ErrInvalidName is returned for an empty property name.
	ErrInvalidName = senml.ErrInvalidName

	// ErrInvalidCallback is returned when a nil handler is registered.
	ErrInvalidCallback = errors.New("cloud: callback must not be nil")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("cloud: topic cannot be empty")
)

// CodeNotAuthorized is the CONNACK code used when the transport error carries
// no code of its own.
const CodeNotAuthorized = 5

// ConnectError reports a failure before the connection handshake completed.
// Code follows the MQTT CONNACK return codes.
type ConnectError struct {
	Code    int
	Message string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("cloud: connect failed (code %d): %s", e.Code, e.Message)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// asConnectError returns err as a *ConnectError, wrapping it with
// CodeNotAuthorized when it is not one already.
func asConnectError(err error) *ConnectError {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce
	}
	return &ConnectError{Code: CodeNotAuthorized, Message: err.Error(), Err: err}
}
