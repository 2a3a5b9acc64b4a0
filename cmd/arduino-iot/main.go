// arduino-iot - Arduino IoT Cloud MQTT client
//
// This is the command-line entry point. It connects to the Arduino IoT
// Cloud broker with a user token or device credentials and can:
//   - send property values (send)
//   - stream property values to stdout, SQLite history and InfluxDB (watch)
//   - attach to a device's serial cloud monitor (monitor)
//   - query recorded property history (history)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Cancel on interrupt so every command can shut down cleanly
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
