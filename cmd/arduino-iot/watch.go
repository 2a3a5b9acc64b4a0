package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stefannilsson/arduino-iot-js/internal/cloud"
	"github.com/stefannilsson/arduino-iot-js/internal/history"
	"github.com/stefannilsson/arduino-iot-js/internal/infrastructure/database"
	"github.com/stefannilsson/arduino-iot-js/internal/infrastructure/influxdb"
	"github.com/stefannilsson/arduino-iot-js/internal/status"
	"github.com/stefannilsson/arduino-iot-js/migrations"
)

// pruneInterval is how often watch trims history older than the retention.
const pruneInterval = time.Hour

// propertyLine is the JSON shape printed for every received value.
type propertyLine struct {
	ThingID string `json:"thing_id"`
	Name    string `json:"name"`
	Value   any    `json:"value"`
	Time    int64  `json:"time,omitempty"`
}

func newWatchCmd() *cobra.Command {
	var properties []string

	cmd := &cobra.Command{
		Use:   "watch <thing-id>...",
		Short: "Stream property values of one or more things",
		Long: `Stream property values of one or more things as JSON lines on stdout.

When database.enabled is set every value is also recorded in the SQLite
history, and when influxdb.enabled is set it is written to InfluxDB. With
status.enabled an HTTP status endpoint is served while watching.

SIGHUP reloads the access token from cloud.token_file and renews the session.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fromCommand(cmd).watch(cmd.Context(), cmd.OutOrStdout(), args, properties)
		},
	}

	cmd.Flags().StringSliceVarP(&properties, "property", "p", nil, "only watch these properties (repeatable)")
	return cmd
}

// watch runs until ctx is cancelled.
func (a *app) watch(ctx context.Context, out io.Writer, thingIDs, properties []string) error {
	handlers := []cloud.Handler{printHandler(out)}
	checks := make(map[string]status.Checker)

	if a.cfg.Database.Enabled {
		db, store, err := a.openHistory(ctx)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck // Best-effort on shutdown
		handlers = append(handlers, store.Handler(ctx, a.log.With("component", "history")))
		checks["database"] = db
		go a.pruneLoop(ctx, store)
	}

	if a.cfg.InfluxDB.Enabled {
		influx, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to influxdb: %w", err)
		}
		defer influx.Close() //nolint:errcheck // Best-effort on shutdown
		influxLog := a.log.With("component", "influxdb")
		influx.SetOnError(func(err error) {
			influxLog.Warn("write failed", "error", err)
		})
		handlers = append(handlers, influx.Handler(influxLog))
		checks["influxdb"] = influx
	}

	client, err := a.connect(ctx, func(opts *cloud.Options) {
		opts.OnOffline = func() { a.log.Warn("cloud connection lost, renewing session") }
		opts.OnConnected = func() { a.log.Info("cloud session established") }
		opts.OnDisconnect = func() { a.log.Warn("cloud connection closed") }
	})
	if err != nil {
		return err
	}
	defer a.disconnect(client)

	handler := fanOut(handlers...)
	for _, thingID := range thingIDs {
		if err := subscribeThing(ctx, client, thingID, properties, handler); err != nil {
			return err
		}
		a.log.Info("watching thing", "thing_id", thingID, "properties", properties)
	}

	if a.cfg.Status.Enabled {
		srv, err := status.New(status.Deps{
			Config:  a.cfg.Status,
			Logger:  a.log.With("component", "status"),
			Cloud:   client,
			Checks:  checks,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating status server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting status server: %w", err)
		}
		defer srv.Close() //nolint:errcheck // Best-effort on shutdown
		a.log.Info("status server listening", "address", srv.Addr())
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	// A newer SIGHUP supersedes a renewal still retrying with an older token.
	cancelReload := context.CancelFunc(func() {})
	defer func() { cancelReload() }()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutting down")
			return nil
		case <-hup:
			cancelReload()
			var reloadCtx context.Context
			reloadCtx, cancelReload = context.WithCancel(ctx)
			go a.reloadToken(reloadCtx, client)
		}
	}
}

// subscribeThing registers handler for the named properties of a thing, or
// for every property when names is empty.
func subscribeThing(ctx context.Context, client *cloud.Client, thingID string, names []string, handler cloud.Handler) error {
	if len(names) == 0 {
		if err := client.Subscribe(ctx, cloud.Topics{}.PropertyOutput(thingID), handler); err != nil {
			return fmt.Errorf("subscribing to thing %s: %w", thingID, err)
		}
		return nil
	}
	for _, name := range names {
		if err := client.OnPropertyValue(ctx, thingID, name, handler); err != nil {
			return fmt.Errorf("subscribing to %s of thing %s: %w", name, thingID, err)
		}
	}
	return nil
}

// tokenUpdater renews a session with a new access token.
type tokenUpdater interface {
	UpdateToken(ctx context.Context, token string) error
}

// reloadToken re-reads the access token and renews the session with it.
//
// The renewal retries until it succeeds or ctx ends, so ctx must not carry
// the connect timeout: the old connection is already closed once the first
// attempt starts. Sessions authenticated with device credentials ignore the
// reload.
func (a *app) reloadToken(ctx context.Context, client tokenUpdater) {
	if a.cfg.Cloud.DeviceID != "" && a.cfg.Cloud.SecretKey != "" {
		a.log.Warn("token reload ignored, the session authenticates with device credentials",
			"device_id", a.cfg.Cloud.DeviceID,
		)
		return
	}

	token, err := a.cfg.Cloud.LoadToken()
	if err != nil {
		a.log.Error("reloading token", "error", err)
		return
	}
	if token == "" {
		a.log.Warn("token reload requested but no token is configured")
		return
	}

	a.log.Info("renewing session with reloaded token")
	if err := client.UpdateToken(ctx, token); err != nil {
		if errors.Is(err, context.Canceled) {
			a.log.Debug("token reload superseded or stopped")
			return
		}
		a.log.Error("renewing session with new token", "error", err)
		return
	}
	a.log.Info("session renewed with reloaded token")
}

// pruneLoop deletes history older than the configured retention once per
// pruneInterval. A zero retention keeps history forever.
func (a *app) pruneLoop(ctx context.Context, store *history.Store) {
	retention := a.cfg.GetRetention()
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Prune(ctx, retention)
			if err != nil {
				a.log.Warn("pruning history", "error", err)
				continue
			}
			a.log.Debug("history pruned", "deleted", n)
		}
	}
}

// openHistory opens the SQLite database, applies migrations and returns the
// history store on top of it.
func (a *app) openHistory(ctx context.Context) (*database.DB, *history.Store, error) {
	db, err := database.Open(database.ConfigFrom(a.cfg.Database))
	if err != nil {
		return nil, nil, fmt.Errorf("opening history database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS()); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, nil, fmt.Errorf("migrating history database: %w", err)
	}
	return db, history.NewStore(db.DB), nil
}

// printHandler writes each record as one JSON line. Writes are serialised
// because several things may deliver concurrently.
func printHandler(out io.Writer) cloud.Handler {
	var mu sync.Mutex
	enc := json.NewEncoder(out)
	return func(rec cloud.Record) {
		thingID, _ := cloud.Topics{}.ThingID(rec.Topic)
		mu.Lock()
		defer mu.Unlock()
		enc.Encode(propertyLine{ //nolint:errcheck // Nothing useful to do on a broken stdout
			ThingID: thingID,
			Name:    rec.Name,
			Value:   rec.Value,
			Time:    rec.Time,
		})
	}
}

// fanOut returns a handler that passes each record to every handler in order.
func fanOut(handlers ...cloud.Handler) cloud.Handler {
	return func(rec cloud.Record) {
		for _, h := range handlers {
			h(rec)
		}
	}
}
