package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stefannilsson/arduino-iot-js/internal/cloud"
	"github.com/stefannilsson/arduino-iot-js/internal/infrastructure/config"
	"github.com/stefannilsson/arduino-iot-js/internal/infrastructure/logging"
	"github.com/stefannilsson/arduino-iot-js/internal/infrastructure/mqtt"
	"github.com/stefannilsson/arduino-iot-js/internal/senml"
)

// defaultConfigPath is used when --config is not given and the file exists.
const defaultConfigPath = "configs/arduino-iot.yaml"

// errNoCredentials is returned by commands that need a cloud session when
// neither a token nor device credentials are configured.
var errNoCredentials = errors.New("no cloud credentials: set cloud.token, cloud.token_file or cloud.device_id and cloud.secret_key")

// app carries what every command needs once configuration is loaded.
type app struct {
	cfg *config.Config
	log *logging.Logger
}

type appKey struct{}

// fromCommand returns the app stored by the root PersistentPreRunE.
func fromCommand(cmd *cobra.Command) *app {
	a, _ := cmd.Context().Value(appKey{}).(*app)
	return a
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	root := &cobra.Command{
		Use:           "arduino-iot",
		Short:         "Arduino IoT Cloud MQTT client",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(configPath, logLevel)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a := fromCommand(cmd); a != nil {
				a.log.Sync() //nolint:errcheck // Sync on a terminal returns EINVAL
			}
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to arduino-iot.yaml (default "+defaultConfigPath+" when present)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newSendCmd(),
		newWatchCmd(),
		newMonitorCmd(),
		newHistoryCmd(),
	)
	return root
}

// loadApp resolves the config path, loads configuration and builds the logger.
func loadApp(configPath, logLevel string) (*app, error) {
	if configPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			configPath = defaultConfigPath
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log := logging.New(cfg.Logging, version)
	log.Debug("configuration loaded", "path", configPath)
	return &app{cfg: cfg, log: log}, nil
}

// cloudOptions maps the cloud section onto connection options.
func cloudOptions(cfg config.CloudConfig, token string) cloud.Options {
	protocol := senml.ProtocolV1
	if cfg.Protocol == 2 {
		protocol = senml.ProtocolV2
	}
	return cloud.Options{
		SSL:            cfg.SSL,
		Host:           cfg.Host,
		Port:           cfg.Port,
		Token:          token,
		DeviceID:       cfg.DeviceID,
		SecretKey:      cfg.SecretKey,
		ClientID:       cfg.ClientID,
		Protocol:       protocol,
		ReconnectDelay: (&config.Config{Cloud: cfg}).GetReconnectDelay(),
		KeepAlive:      (&config.Config{Cloud: cfg}).GetKeepAlive(),
	}
}

// newCloudClient creates a client that authenticates as a device when
// device credentials are configured and as a user otherwise.
func (a *app) newCloudClient() *cloud.Client {
	mqttLog := a.log.With("component", "mqtt")
	client := cloud.NewClient(
		mqtt.DeviceBuilder{Logger: mqttLog},
		mqtt.TokenBuilder{Logger: mqttLog},
	)
	client.SetLogger(a.log.With("component", "cloud"))
	return client
}

// connect opens a cloud session, bounded by cloud.connect_timeout. hooks may
// set the lifecycle callbacks on the options before connecting.
func (a *app) connect(ctx context.Context, hooks func(*cloud.Options)) (*cloud.Client, error) {
	if !a.cfg.Cloud.HasCredentials() {
		return nil, errNoCredentials
	}
	token, err := a.cfg.Cloud.LoadToken()
	if err != nil {
		return nil, err
	}

	opts := cloudOptions(a.cfg.Cloud, token)
	if hooks != nil {
		hooks(&opts)
	}

	connectCtx, cancel := context.WithTimeout(ctx, a.cfg.GetConnectTimeout())
	defer cancel()

	client := a.newCloudClient()
	if err := client.Connect(connectCtx, opts); err != nil {
		return nil, fmt.Errorf("connecting to %s:%d: %w", opts.Host, opts.Port, err)
	}
	a.log.Info("connected to Arduino IoT Cloud",
		"host", opts.Host,
		"port", opts.Port,
		"as_device", opts.DeviceID != "",
	)
	return client, nil
}

// disconnect ends the session and logs failures.
func (a *app) disconnect(client *cloud.Client) {
	if err := client.Disconnect(); err != nil && !errors.Is(err, cloud.ErrNotConnected) {
		a.log.Warn("disconnect failed", "error", err)
	}
}
