package senml

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Protocol selects the label set used on the wire.
type Protocol int

const (
	// ProtocolV1 labels fields with text keys ("bt", "n", ...).
	ProtocolV1 Protocol = iota

	// ProtocolV2 labels fields with RFC 8428 integer keys.
	ProtocolV2
)

// String returns the protocol name.
func (p Protocol) String() string {
	switch p {
	case ProtocolV1:
		return "v1"
	case ProtocolV2:
		return "v2"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

const (
	// nameSeparator joins a property name and a map key for map-valued properties.
	nameSeparator = ":"

	baseNamePrefix = "urn:uuid:"
)

// Record is a single SenML record.
//
// BaseTime is in milliseconds since the Unix epoch when the record is built by
// this package. Value holds a string, a bool, an integer (int64 or uint64) or
// a float64 after decoding; before encoding it may hold any Go numeric type.
type Record struct {
	BaseName string
	BaseTime int64
	Name     string
	Value    any

	// omitTime drops bt on the wire for the trailing records of a v2 batch.
	omitTime bool
}

// NewRecord builds a record for name and value.
//
// A non-empty deviceID becomes the base name (see BaseNameFor). A zero
// timestamp is replaced by the current time in milliseconds.
func NewRecord(deviceID, name string, value any, timestamp int64) (Record, error) {
	if name == "" {
		return Record{}, ErrInvalidName
	}

	rec := Record{
		BaseTime: resolveTimestamp(timestamp),
		Name:     name,
		Value:    value,
	}
	if deviceID != "" {
		rec.BaseName = BaseNameFor(deviceID)
	}
	return rec, nil
}

// BaseNameFor returns the URN base name for a device id. The id is embedded
// exactly as given; the cloud matches base names byte for byte.
func BaseNameFor(deviceID string) string {
	return baseNamePrefix + deviceID
}

// Parse expands a property value into the records that carry it.
//
// Scalar values produce one record. A map with string keys produces one
// record per key, named "name:key", in key order; under ProtocolV2 only the
// first of these records carries a base time.
func Parse(deviceID, name string, value any, timestamp int64, protocol Protocol) ([]Record, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	timestamp = resolveTimestamp(timestamp)

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		rec, err := NewRecord(deviceID, name, value, timestamp)
		if err != nil {
			return nil, err
		}
		return []Record{rec}, nil
	}

	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	records := make([]Record, 0, len(keys))
	for i, key := range keys {
		elem := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key())).Interface()
		rec, err := NewRecord(deviceID, name+nameSeparator+key, elem, timestamp)
		if err != nil {
			return nil, err
		}
		rec.omitTime = protocol == ProtocolV2 && i > 0
		records = append(records, rec)
	}
	return records, nil
}

// EncodeProperty parses and encodes a property value in one step.
func EncodeProperty(deviceID, name string, value any, timestamp int64, protocol Protocol) ([]byte, error) {
	records, err := Parse(deviceID, name, value, timestamp, protocol)
	if err != nil {
		return nil, err
	}
	return Encode(records, protocol)
}

func resolveTimestamp(timestamp int64) int64 {
	if timestamp == 0 {
		return time.Now().UnixMilli()
	}
	return timestamp
}
