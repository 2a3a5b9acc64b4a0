package mqtt

import (
	"crypto/tls"
	"net"
	"net/url"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time paho waits for the CONNACK.
	defaultConnectTimeout = 30 * time.Second

	// defaultOperationTimeout bounds subscribe, unsubscribe and publish
	// acknowledgements when the caller's context carries no earlier deadline.
	defaultOperationTimeout = 10 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on a
	// graceful disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 30 * time.Second

	// maxReconnectInterval caps paho's backoff between automatic reconnects.
	maxReconnectInterval = 2 * time.Minute

	// protocolVersion pins MQTT 3.1.1.
	protocolVersion = 4

	// subscribeQoS is the maximum QoS requested for subscriptions.
	subscribeQoS byte = 1

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// inboxSize is the number of inbound messages buffered ahead of the handler.
	inboxSize = 256

	// websocketPath is the broker's MQTT-over-WebSocket endpoint.
	websocketPath = "/mqtt"

	// websocketBufferSize sizes the websocket read and write buffers.
	websocketBufferSize = 4096

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Broker URL schemes understood by paho.
const (
	schemeTCP = "tcp"
	schemeSSL = "ssl"
	schemeWS  = "ws"
	schemeWSS = "wss"
)

// brokerParams is everything needed to reach and authenticate with a broker.
type brokerParams struct {
	scheme    string
	host      string
	port      int
	path      string
	clientID  string
	username  string
	password  string
	keepAlive time.Duration
}

// url returns the broker URL, e.g. wss://wss.iot.arduino.cc:8443/mqtt.
func (p brokerParams) url() string {
	u := url.URL{
		Scheme: p.scheme,
		Host:   net.JoinHostPort(p.host, strconv.Itoa(p.port)),
		Path:   p.path,
	}
	return u.String()
}

// secure reports whether the scheme runs over TLS.
func (p brokerParams) secure() bool {
	return p.scheme == schemeSSL || p.scheme == schemeWSS
}

// websocket reports whether the scheme tunnels MQTT through a websocket.
func (p brokerParams) websocket() bool {
	return p.scheme == schemeWS || p.scheme == schemeWSS
}

// buildClientOptions creates paho MQTT options for a broker.
//
// This configures:
//   - Broker URL (tcp, ssl, ws or wss)
//   - Client ID and credentials
//   - MQTT 3.1.1 with a clean session
//   - Auto-reconnect with backoff capped at two minutes
//   - TLS 1.2+ for secure schemes, websocket buffers for websocket schemes
//
// Connection retry is left off so that a failed first attempt is reported
// on the connect token instead of being retried silently.
func buildClientOptions(p brokerParams) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(p.url())

	opts.SetClientID(p.clientID)
	if p.username != "" {
		opts.SetUsername(p.username)
		opts.SetPassword(p.password)
	}

	opts.SetProtocolVersion(protocolVersion)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.SetConnectTimeout(defaultConnectTimeout)

	keepAlive := p.keepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if p.secure() {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
			ServerName: p.host,
		})
	}
	if p.websocket() {
		opts.SetWebsocketOptions(&pahomqtt.WebsocketOptions{
			ReadBufferSize:  websocketBufferSize,
			WriteBufferSize: websocketBufferSize,
		})
	}

	return opts
}
