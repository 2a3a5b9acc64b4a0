// Package mqtt provides the MQTT transport for the cloud client.
//
// This package manages:
//   - Connections to the Arduino IoT Cloud broker through paho.mqtt.golang
//   - User sessions over MQTT-over-WebSocket authenticated by access token
//   - Device sessions over MQTT authenticated by device id and secret key
//   - Subscription restoration after paho's automatic reconnects
//   - Mapping of CONNACK refusals to cloud.ConnectError codes
//
// # Architecture
//
// The cloud package owns the session lifecycle and the topic multiplexing;
// this package only moves bytes. A Connection reports lifecycle events and
// inbound messages to whichever cloud.Client attached to it.
//
//	cloud.Client ↔ mqtt.Connection ↔ paho ↔ broker
//
// Builders are tried in order by the client, first match wins:
//
//	client := cloud.NewClient(mqtt.DeviceBuilder{}, mqtt.TokenBuilder{})
//
// # Security Considerations
//
//   - TLS 1.2 or newer is enforced for the wss and ssl schemes (Options.SSL)
//   - Access tokens are sent as the MQTT password and never logged
//   - Token signatures are verified by the broker, not by this package
//
// # Delivery
//
//   - Subscriptions request QoS 1
//   - paho reconnects with backoff capped at two minutes; tracked topics are
//     subscribed again before EventConnect is reported
//   - Inbound messages are handed over in arrival order from one goroutine
package mqtt
