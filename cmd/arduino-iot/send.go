package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Value types accepted by send --type.
const (
	valueAuto   = "auto"
	valueInt    = "int"
	valueFloat  = "float"
	valueBool   = "bool"
	valueString = "string"
)

// uuidLength is the length of a hyphenated UUID.
const uuidLength = 36

func newSendCmd() *cobra.Command {
	var (
		asDevice  bool
		valueType string
		timestamp int64
	)

	cmd := &cobra.Command{
		Use:   "send <thing-id> <property> <value>",
		Short: "Publish one property value to a thing",
		Long: `Publish one property value to a thing's input topic.

The value is parsed according to --type. With the default "auto", "true" and
"false" become booleans, integers and decimals become numbers and anything
else is sent as a string.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromCommand(cmd)
			thingID, name := args[0], args[1]

			value, err := parseValue(args[2], valueType)
			if err != nil {
				return err
			}

			var deviceID string
			if asDevice {
				deviceID, err = validateDeviceID(a.cfg.Cloud.DeviceID)
				if err != nil {
					return err
				}
			}

			client, err := a.connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.disconnect(client)

			if asDevice {
				err = client.SendPropertyAsDevice(cmd.Context(), deviceID, thingID, name, value, timestamp)
			} else {
				err = client.SendProperty(cmd.Context(), thingID, name, value, timestamp)
			}
			if err != nil {
				return fmt.Errorf("sending %s: %w", name, err)
			}

			a.log.Info("property sent",
				"thing_id", thingID,
				"name", name,
				"value", value,
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asDevice, "as-device", false, "publish with cloud.device_id as the SenML base name")
	cmd.Flags().StringVarP(&valueType, "type", "t", valueAuto, "value type: auto, int, float, bool or string")
	cmd.Flags().Int64Var(&timestamp, "time", 0, "record time in Unix milliseconds (default now)")
	return cmd
}

// parseValue converts a command-line argument into a property value.
func parseValue(text, valueType string) (any, error) {
	switch strings.ToLower(valueType) {
	case valueAuto, "":
		if b, err := strconv.ParseBool(text); err == nil && !isNumeric(text) {
			return b, nil
		}
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f, nil
		}
		return text, nil
	case valueInt:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int value %q", text)
		}
		return i, nil
	case valueFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float value %q", text)
		}
		return f, nil
	case valueBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("invalid bool value %q", text)
		}
		return b, nil
	case valueString:
		return text, nil
	default:
		return nil, fmt.Errorf("unknown value type %q", valueType)
	}
}

// isNumeric reports whether text is made of digits only, so that "1" and
// "0" stay integers in auto mode.
func isNumeric(text string) bool {
	return strings.Trim(text, "0123456789") == "" && text != ""
}

// validateDeviceID checks that id is a device UUID in its plain
// hyphenated form and returns it unchanged. Topics and base names carry the
// id as given, so braced or URN forms are refused rather than rewritten.
func validateDeviceID(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("device id is required")
	}
	if _, err := uuid.Parse(id); err != nil || len(id) != uuidLength {
		if err == nil {
			err = fmt.Errorf("want the %d-character hyphenated form", uuidLength)
		}
		return "", fmt.Errorf("invalid device id %q: %w", id, err)
	}
	return id, nil
}
