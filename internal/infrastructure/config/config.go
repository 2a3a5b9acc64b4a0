package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the arduino-iot client.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Cloud    CloudConfig    `yaml:"cloud"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Status   StatusConfig   `yaml:"status"`
}

// CloudConfig contains Arduino IoT Cloud broker connection settings.
//
// A session authenticates either with a user access token (Token or
// TokenFile) or as a device (DeviceID and SecretKey).
type CloudConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	SSL  bool   `yaml:"ssl"`

	// Token is a user access token. TokenFile is read instead when Token is
	// empty, and again whenever the token is reloaded.
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`

	DeviceID  string `yaml:"device_id"`
	SecretKey string `yaml:"secret_key"`

	// ClientID overrides the MQTT client id. Optional.
	ClientID string `yaml:"client_id"`

	// Protocol selects the SenML label set: 1 (names) or 2 (integer labels).
	Protocol int `yaml:"protocol"`

	// Durations in seconds.
	ReconnectDelay int `yaml:"reconnect_delay"`
	KeepAlive      int `yaml:"keep_alive"`
	ConnectTimeout int `yaml:"connect_timeout"`
}

// DatabaseConfig contains SQLite property history settings.
type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// StatusConfig contains settings for the HTTP status endpoint served while
// watching properties.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ARDUINO_IOT_SECTION_KEY
// For example: ARDUINO_IOT_CLOUD_TOKEN, ARDUINO_IOT_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Cloud: CloudConfig{
			Host:           "wss.iot.arduino.cc",
			Port:           8443,
			SSL:            true,
			Protocol:       1,
			ReconnectDelay: 5,
			KeepAlive:      30,
			ConnectTimeout: 30,
		},
		Database: DatabaseConfig{
			Path:          "./data/arduino-iot.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "arduino-iot",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Status: StatusConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ARDUINO_IOT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Cloud
	if v := os.Getenv("ARDUINO_IOT_CLOUD_HOST"); v != "" {
		cfg.Cloud.Host = v
	}
	if v := os.Getenv("ARDUINO_IOT_CLOUD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Cloud.Port = port
		}
	}
	if v := os.Getenv("ARDUINO_IOT_CLOUD_TOKEN"); v != "" {
		cfg.Cloud.Token = v
	}
	if v := os.Getenv("ARDUINO_IOT_CLOUD_TOKEN_FILE"); v != "" {
		cfg.Cloud.TokenFile = v
	}
	if v := os.Getenv("ARDUINO_IOT_CLOUD_DEVICE_ID"); v != "" {
		cfg.Cloud.DeviceID = v
	}
	if v := os.Getenv("ARDUINO_IOT_CLOUD_SECRET_KEY"); v != "" {
		cfg.Cloud.SecretKey = v
	}

	// Database
	if v := os.Getenv("ARDUINO_IOT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("ARDUINO_IOT_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("ARDUINO_IOT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("ARDUINO_IOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Credentials are only checked for consistency here; whether a command needs
// them is decided by the command (see CloudConfig.HasCredentials).
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Cloud validation
	if c.Cloud.Host == "" {
		errs = append(errs, "cloud.host is required")
	}
	if c.Cloud.Port < 1 || c.Cloud.Port > 65535 {
		errs = append(errs, "cloud.port must be between 1 and 65535")
	}
	if c.Cloud.Protocol != 1 && c.Cloud.Protocol != 2 {
		errs = append(errs, "cloud.protocol must be 1 or 2")
	}
	if (c.Cloud.DeviceID == "") != (c.Cloud.SecretKey == "") {
		errs = append(errs, "cloud.device_id and cloud.secret_key must be set together")
	}
	if c.Cloud.ReconnectDelay < 1 {
		errs = append(errs, "cloud.reconnect_delay must be at least 1 second")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the history is enabled")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days cannot be negative")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// Status validation
	if c.Status.Enabled && (c.Status.Port < 1 || c.Status.Port > 65535) {
		errs = append(errs, "status.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// HasCredentials reports whether the cloud section can authenticate a session.
func (c CloudConfig) HasCredentials() bool {
	return c.Token != "" || c.TokenFile != "" || (c.DeviceID != "" && c.SecretKey != "")
}

// LoadToken returns the access token: Token when set, otherwise the trimmed
// contents of TokenFile. An empty result without error means no token is
// configured.
func (c CloudConfig) LoadToken() (string, error) {
	if c.Token != "" || c.TokenFile == "" {
		return c.Token, nil
	}
	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", c.TokenFile)
	}
	return token, nil
}

// GetReconnectDelay returns the session renewal delay as a Duration.
func (c *Config) GetReconnectDelay() time.Duration {
	return time.Duration(c.Cloud.ReconnectDelay) * time.Second
}

// GetKeepAlive returns the MQTT keepalive as a Duration.
func (c *Config) GetKeepAlive() time.Duration {
	return time.Duration(c.Cloud.KeepAlive) * time.Second
}

// GetConnectTimeout returns the connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Cloud.ConnectTimeout) * time.Second
}

// GetRetention returns the property history retention as a Duration.
// Zero means history is kept forever.
func (c *Config) GetRetention() time.Duration {
	return time.Duration(c.Database.RetentionDays) * 24 * time.Hour
}
