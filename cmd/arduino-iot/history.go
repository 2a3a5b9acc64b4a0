package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stefannilsson/arduino-iot-js/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var (
		property string
		limit    int
		since    time.Duration
		latest   bool
		prune    bool
	)

	cmd := &cobra.Command{
		Use:   "history <thing-id>",
		Short: "Show recorded property values of a thing",
		Long: `Show property values recorded by watch in the SQLite history, newest
first, as JSON lines. No cloud connection is made.

With --prune, history older than database.retention_days is deleted instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromCommand(cmd)
			ctx := cmd.Context()

			db, store, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // Read-only use

			if prune {
				retention := a.cfg.GetRetention()
				if retention <= 0 {
					return fmt.Errorf("database.retention_days must be positive to prune")
				}
				n, err := store.Prune(ctx, retention)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries\n", n)
				return nil
			}

			var entries []history.Entry
			if latest {
				entries, err = store.Latest(ctx, args[0])
			} else {
				q := history.Query{ThingID: args[0], Name: property, Limit: limit}
				if since > 0 {
					q.Since = time.Now().Add(-since)
				}
				entries, err = store.Get(ctx, q)
			}
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&property, "property", "p", "", "only show this property")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum entries to show (max 1000)")
	cmd.Flags().DurationVar(&since, "since", 0, "only show entries newer than this, e.g. 1h")
	cmd.Flags().BoolVar(&latest, "latest", false, "show the latest value of each property")
	cmd.Flags().BoolVar(&prune, "prune", false, "delete entries older than the retention period")
	cmd.MarkFlagsMutuallyExclusive("latest", "prune")
	return cmd
}
