package senml

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// maxSafeInteger is the largest magnitude a float64 holds without losing
// integer precision.
const maxSafeInteger = 1 << 53

// encMode writes floats at full width and keeps struct field order, which
// together fix the byte layout of every record.
var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{
		Sort:          cbor.SortNone,
		ShortestFloat: cbor.ShortestFloatNone,
		NaNConvert:    cbor.NaNConvertNone,
		InfConvert:    cbor.InfConvertNone,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("senml: building CBOR encoder: %v", err))
	}
	return em
}

// wireV1 is a record with text labels. Field order is wire order.
type wireV1 struct {
	BaseTime    *int64  `cbor:"bt,omitempty"`
	Name        string  `cbor:"n"`
	BaseName    string  `cbor:"bn,omitempty"`
	Value       *number `cbor:"v,omitempty"`
	StringValue *string `cbor:"vs,omitempty"`
	BoolValue   *bool   `cbor:"vb,omitempty"`
}

// wireV2 is a record with RFC 8428 integer labels.
type wireV2 struct {
	BaseTime    *int64  `cbor:"-3,keyasint,omitempty"`
	Name        string  `cbor:"0,keyasint"`
	BaseName    string  `cbor:"-2,keyasint,omitempty"`
	Value       *number `cbor:"2,keyasint,omitempty"`
	StringValue *string `cbor:"3,keyasint,omitempty"`
	BoolValue   *bool   `cbor:"4,keyasint,omitempty"`
}

type numberKind int

const (
	numberInt numberKind = iota
	numberUint
	numberFloat
)

// number is a numeric value with its wire width already chosen.
type number struct {
	kind numberKind
	i    int64
	u    uint64
	f    float64
}

// MarshalCBOR implements cbor.Marshaler.
func (n number) MarshalCBOR() ([]byte, error) {
	switch n.kind {
	case numberInt:
		return encMode.Marshal(n.i)
	case numberUint:
		return encMode.Marshal(n.u)
	default:
		return encMode.Marshal(n.f)
	}
}

// Encode serializes records as a CBOR array using the labels of protocol.
func Encode(records []Record, protocol Protocol) ([]byte, error) {
	var pack any
	switch protocol {
	case ProtocolV2:
		out := make([]wireV2, 0, len(records))
		for _, rec := range records {
			w := wireV2{Name: rec.Name, BaseName: rec.BaseName}
			if !rec.omitTime {
				w.BaseTime = &rec.BaseTime
			}
			w.Value, w.StringValue, w.BoolValue = splitValue(rec.Value)
			out = append(out, w)
		}
		pack = out
	default:
		out := make([]wireV1, 0, len(records))
		for _, rec := range records {
			w := wireV1{Name: rec.Name, BaseName: rec.BaseName}
			if !rec.omitTime {
				w.BaseTime = &rec.BaseTime
			}
			w.Value, w.StringValue, w.BoolValue = splitValue(rec.Value)
			out = append(out, w)
		}
		pack = out
	}

	data, err := encMode.Marshal(pack)
	if err != nil {
		return nil, fmt.Errorf("senml: encoding %d records: %w", len(records), err)
	}
	return data, nil
}

// splitValue places value into the one wire field that matches its type.
// Unsupported types leave all three nil.
func splitValue(value any) (*number, *string, *bool) {
	switch v := value.(type) {
	case string:
		return nil, &v, nil
	case bool:
		return nil, nil, &v
	case float64:
		return floatNumber(v), nil, nil
	case float32:
		return floatNumber(float64(v)), nil, nil
	case int:
		return &number{kind: numberInt, i: int64(v)}, nil, nil
	case int8:
		return &number{kind: numberInt, i: int64(v)}, nil, nil
	case int16:
		return &number{kind: numberInt, i: int64(v)}, nil, nil
	case int32:
		return &number{kind: numberInt, i: int64(v)}, nil, nil
	case int64:
		return &number{kind: numberInt, i: v}, nil, nil
	case uint:
		return &number{kind: numberUint, u: uint64(v)}, nil, nil
	case uint8:
		return &number{kind: numberUint, u: uint64(v)}, nil, nil
	case uint16:
		return &number{kind: numberUint, u: uint64(v)}, nil, nil
	case uint32:
		return &number{kind: numberUint, u: uint64(v)}, nil, nil
	case uint64:
		return &number{kind: numberUint, u: v}, nil, nil
	default:
		return nil, nil, nil
	}
}

func floatNumber(f float64) *number {
	if f == math.Trunc(f) && math.Abs(f) <= maxSafeInteger {
		return &number{kind: numberInt, i: int64(f)}
	}
	return &number{kind: numberFloat, f: f}
}
