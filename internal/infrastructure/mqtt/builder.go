package mqtt

import (
	"fmt"
	"time"

	"github.com/stefannilsson/arduino-iot-js/internal/auth"
	"github.com/stefannilsson/arduino-iot-js/internal/cloud"
)

// TokenBuilder connects as a user over MQTT-over-WebSocket.
//
// The access token is the MQTT password and the user id it carries is the
// username. Unless cloud.Options.ClientID is set, the client id is the user
// id joined with the connect time in Unix milliseconds.
type TokenBuilder struct {
	// Logger receives connection diagnostics. Optional.
	Logger Logger

	// Now overrides the clock used for client ids. Optional.
	Now func() time.Time

	newClient clientFactory
}

// CanBuild accepts options that carry a token.
func (b TokenBuilder) CanBuild(opts cloud.Options) bool {
	return opts.Token != ""
}

// Build creates an unopened Connection for opts.
//
// Returns:
//   - cloud.Connection: Ready to Open
//   - error: ErrInvalidCredentials wrapping the reason the token was refused
func (b TokenBuilder) Build(opts cloud.Options) (cloud.Connection, error) {
	claims, err := auth.ParseClaims(opts.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	clientID := opts.ClientID
	if clientID == "" {
		clientID = auth.ClientID(claims.Identity(), b.now())
	}

	scheme := schemeWS
	if opts.SSL {
		scheme = schemeWSS
	}

	params := brokerParams{
		scheme:    scheme,
		host:      opts.Host,
		port:      opts.Port,
		path:      websocketPath,
		clientID:  clientID,
		username:  claims.Identity(),
		password:  auth.RawToken(opts.Token),
		keepAlive: opts.KeepAlive,
	}
	return newConnection(buildClientOptions(params), b.newClient, b.Logger), nil
}

func (b TokenBuilder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// DeviceBuilder connects as a device over plain MQTT, authenticating with
// the device id and its secret key. The device id doubles as client id
// unless cloud.Options.ClientID is set.
type DeviceBuilder struct {
	// Logger receives connection diagnostics. Optional.
	Logger Logger

	newClient clientFactory
}

// CanBuild accepts options that carry a device id and secret key.
func (b DeviceBuilder) CanBuild(opts cloud.Options) bool {
	return opts.DeviceID != "" && opts.SecretKey != ""
}

// Build creates an unopened Connection for opts.
func (b DeviceBuilder) Build(opts cloud.Options) (cloud.Connection, error) {
	if !b.CanBuild(opts) {
		return nil, fmt.Errorf("%w: device id and secret key are required", ErrInvalidCredentials)
	}

	clientID := opts.ClientID
	if clientID == "" {
		clientID = opts.DeviceID
	}

	scheme := schemeTCP
	if opts.SSL {
		scheme = schemeSSL
	}

	params := brokerParams{
		scheme:    scheme,
		host:      opts.Host,
		port:      opts.Port,
		clientID:  clientID,
		username:  opts.DeviceID,
		password:  opts.SecretKey,
		keepAlive: opts.KeepAlive,
	}
	return newConnection(buildClientOptions(params), b.newClient, b.Logger), nil
}

var (
	_ cloud.ConnectionBuilder = TokenBuilder{}
	_ cloud.ConnectionBuilder = DeviceBuilder{}
)
