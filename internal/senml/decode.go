package senml

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// Text labels; integer labels are mapped onto these before a record is read.
const (
	labelBaseName    = "bn"
	labelBaseTime    = "bt"
	labelName        = "n"
	labelValue       = "v"
	labelStringValue = "vs"
	labelBoolValue   = "vb"
)

var intLabels = map[int64]string{
	-2: labelBaseName,
	-3: labelBaseTime,
	0:  labelName,
	2:  labelValue,
	3:  labelStringValue,
	4:  labelBoolValue,
}

// Decode parses a SenML pack encoded with either protocol.
//
// A bare map is accepted as a pack of one record. Base name and base time
// carry over to later records that omit them. When a record holds more than
// one value field, v wins over vs, which wins over vb. Numbers come back as
// int64, uint64 (above math.MaxInt64) or float64.
func Decode(data []byte) ([]Record, error) {
	var raw any
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[any]any:
		items = []any{v}
	default:
		return nil, fmt.Errorf("%w: top level is %T", ErrMalformed, raw)
	}

	records := make([]Record, 0, len(items))
	var baseName string
	var baseTime int64
	for i, item := range items {
		m, ok := item.(map[any]any)
		if !ok {
			return nil, fmt.Errorf("%w: record %d is %T", ErrMalformed, i, item)
		}
		fields := normalizeLabels(m)

		if bn, ok := fields[labelBaseName].(string); ok {
			baseName = bn
		}
		if bt, ok := toInt64(fields[labelBaseTime]); ok {
			baseTime = bt
		}

		name, _ := fields[labelName].(string)
		records = append(records, Record{
			BaseName: baseName,
			BaseTime: baseTime,
			Name:     name,
			Value:    pickValue(fields),
		})
	}
	return records, nil
}

func normalizeLabels(m map[any]any) map[string]any {
	fields := make(map[string]any, len(m))
	for k, v := range m {
		switch key := k.(type) {
		case string:
			fields[key] = v
		case uint64:
			if key <= math.MaxInt64 {
				if label, ok := intLabels[int64(key)]; ok {
					fields[label] = v
				}
			}
		case int64:
			if label, ok := intLabels[key]; ok {
				fields[label] = v
			}
		}
	}
	return fields
}

func pickValue(fields map[string]any) any {
	if v, ok := fields[labelValue]; ok {
		if n := normalizeNumber(v); n != nil {
			return n
		}
	}
	if vs, ok := fields[labelStringValue].(string); ok {
		return vs
	}
	if vb, ok := fields[labelBoolValue].(bool); ok {
		return vb
	}
	return nil
}

func normalizeNumber(v any) any {
	switch n := v.(type) {
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n)
		}
		return n
	case int64:
		return n
	case float64:
		return n
	case float32:
		return float64(n)
	default:
		return nil
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
