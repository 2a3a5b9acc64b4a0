package cloud

import (
	"time"

	"github.com/stefannilsson/arduino-iot-js/internal/senml"
)

// Defaults applied by Connect to zero-valued options.
const (
	DefaultHost           = "wss.iot.arduino.cc"
	DefaultPort           = 8443
	DefaultReconnectDelay = 5 * time.Second
)

// Options configures a connection to the cloud broker.
type Options struct {
	// SSL selects the secure variant of the transport scheme.
	SSL  bool
	Host string
	Port int

	// Token is the user JWT. Builders that authenticate as a user require it.
	Token string

	// DeviceID and SecretKey authenticate as a device instead of a user.
	DeviceID  string
	SecretKey string

	// ClientID overrides the MQTT client id chosen by the builder.
	ClientID string

	// Protocol selects SenML labels for outbound properties.
	Protocol senml.Protocol

	// ReconnectDelay is the fixed pause between session renewal attempts.
	ReconnectDelay time.Duration

	// KeepAlive is passed to the transport. Zero leaves the transport default.
	KeepAlive time.Duration

	// Lifecycle hooks. Each runs in its own goroutine; nil hooks are skipped.
	OnOffline    func()
	OnConnected  func()
	OnDisconnect func()
}

// withDefaults returns a copy of o with zero fields filled in.
func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	return o
}
