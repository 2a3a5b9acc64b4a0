// Package logging provides structured logging for arduino-iot.
//
// This package wraps go.uber.org/zap to provide consistent, structured
// logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Console text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in arduino-iot.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stderr"   # stderr, stdout
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Sync()
//	logger.Info("connected", "host", cfg.Cloud.Host)
//	logger.Error("subscribe failed", "topic", topic, "error", err)
//
// # Security
//
// Never log access tokens, device secret keys or InfluxDB tokens.
package logging
