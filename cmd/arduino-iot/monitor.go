package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stefannilsson/arduino-iot-js/internal/cloud"
)

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor <device-id>",
		Short: "Attach to a device's cloud serial monitor",
		Long: `Attach to a device's cloud serial monitor.

Output written by the device is copied to stdout. Each line read from stdin
is sent to the device. The monitor is closed on EOF or interrupt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, err := validateDeviceID(args[0])
			if err != nil {
				return err
			}
			return fromCommand(cmd).monitor(cmd.Context(), deviceID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func (a *app) monitor(ctx context.Context, deviceID string, in io.Reader, out io.Writer) error {
	client, err := a.connect(ctx, nil)
	if err != nil {
		return err
	}
	defer a.disconnect(client)

	err = client.OpenCloudMonitor(ctx, deviceID, func(rec cloud.Record) {
		if text, ok := rec.Value.(string); ok {
			fmt.Fprint(out, text)
		}
	})
	if err != nil {
		return fmt.Errorf("opening monitor for %s: %w", deviceID, err)
	}
	defer func() {
		if err := client.CloseCloudMonitor(context.WithoutCancel(ctx), deviceID); err != nil {
			a.log.Warn("closing monitor", "device_id", deviceID, "error", err)
		}
	}()
	a.log.Info("monitor open", "device_id", deviceID)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text() + "\n":
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			return nil
		case line := <-lines:
			if err := client.WriteCloudMonitor(ctx, deviceID, []byte(line)); err != nil {
				return fmt.Errorf("writing to monitor: %w", err)
			}
		}
	}
}
