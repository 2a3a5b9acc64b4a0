package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/stefannilsson/arduino-iot-js/internal/cloud"
)

// Measurement and field names written by this package.
const (
	MeasurementProperty = "property"

	fieldNumber = "value"
	fieldBool   = "value_bool"
	fieldString = "value_string"
)

// Logger is the logging surface the telemetry handler needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// WriteProperty queues one property value as a point.
//
// Points go to the "property" measurement tagged with thing_id and name.
// Numbers are written to the float field "value", booleans to
// "value_bool" and strings to "value_string" so each field keeps one type.
//
// Parameters:
//   - thingID: Thing the property belongs to
//   - name: Property name
//   - value: Integer, float, bool or string
//   - ts: Point timestamp; zero means now
//
// Returns:
//   - error: ErrNotConnected after Close, ErrUnsupportedValue otherwise
func (c *Client) WriteProperty(thingID, name string, value any, ts time.Time) error {
	point, err := propertyPoint(thingID, name, value, ts)
	if err != nil {
		return err
	}

	// Held across the write so Close cannot shut the write API underneath it.
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return ErrNotConnected
	}
	c.writeAPI.WritePoint(point)
	return nil
}

// Handler returns a cloud.Handler that writes every named value arriving on
// a property topic. Values that cannot be written are logged and skipped.
func (c *Client) Handler(logger Logger) cloud.Handler {
	return func(rec cloud.Record) {
		thingID, ok := cloud.Topics{}.ThingID(rec.Topic)
		if !ok || rec.Name == "" {
			logger.Debug("influxdb: ignoring record", "topic", rec.Topic)
			return
		}

		var ts time.Time
		if rec.Time != 0 {
			ts = time.UnixMilli(rec.Time)
		}
		if err := c.WriteProperty(thingID, rec.Name, rec.Value, ts); err != nil {
			logger.Warn("influxdb: point skipped",
				"thing_id", thingID,
				"name", rec.Name,
				"error", err,
			)
		}
	}
}

// propertyPoint builds the point for one property value.
func propertyPoint(thingID, name string, value any, ts time.Time) (*write.Point, error) {
	field, fieldValue, err := propertyField(value)
	if err != nil {
		return nil, err
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(
		MeasurementProperty,
		map[string]string{
			"thing_id": thingID,
			"name":     name,
		},
		map[string]any{field: fieldValue},
		ts,
	), nil
}

// propertyField picks the field key for value and converts numbers to float64.
func propertyField(value any) (string, any, error) {
	switch v := value.(type) {
	case int:
		return fieldNumber, float64(v), nil
	case int32:
		return fieldNumber, float64(v), nil
	case int64:
		return fieldNumber, float64(v), nil
	case uint32:
		return fieldNumber, float64(v), nil
	case uint64:
		return fieldNumber, float64(v), nil
	case float32:
		return fieldNumber, float64(v), nil
	case float64:
		return fieldNumber, v, nil
	case bool:
		return fieldBool, v, nil
	case string:
		return fieldString, v, nil
	default:
		return "", nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
	}
}
