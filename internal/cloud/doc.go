// Package cloud is a client for the Arduino IoT Cloud broker.
//
// A Client owns at most one transport Connection at a time and multiplexes
// any number of handlers over a bounded set of topic subscriptions.
//
// # Connections
//
// Transports are pluggable: a Client is created with a list of
// ConnectionBuilder values and Connect uses the first one whose CanBuild
// accepts the Options. Lifecycle events of the connection are surfaced
// through the OnConnected, OnOffline and OnDisconnect hooks, each run in its
// own goroutine.
//
// # Subscriptions
//
// Every topic maps to one transport subscription and an ordered list of
// handlers. Inbound payloads are decoded once per message and every record
// is handed to every handler of the topic in registration order. Property
// handlers registered with OnPropertyValue share the thing's output topic
// and only see records with their property name.
//
// # Session renewal
//
// UpdateToken swaps the credential of a live session. The old connection is
// closed, a new one opened, and every subscription replayed with the same
// handlers, so callers never re-register. Failures are retried forever with
// a fixed delay. An error reported by an established connection starts the
// same cycle in the background; Disconnect stops it.
//
// # Usage
//
//	client := cloud.NewClient(mqtt.TokenBuilder{})
//	err := client.Connect(ctx, cloud.Options{Token: token})
//
//	err = client.OnPropertyValue(ctx, thingID, "temperature", func(r cloud.Record) {
//	    fmt.Println(r.Value)
//	})
//
//	err = client.SendProperty(ctx, thingID, "setpoint", 21.5, 0)
package cloud
