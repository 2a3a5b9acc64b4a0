package history

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// encodeValue renders v as text with the kind needed to parse it back.
func encodeValue(v any) (Kind, string, error) {
	switch x := v.(type) {
	case int:
		return KindInt, strconv.FormatInt(int64(x), 10), nil
	case int32:
		return KindInt, strconv.FormatInt(int64(x), 10), nil
	case int64:
		return KindInt, strconv.FormatInt(x, 10), nil
	case uint32:
		return KindUint, strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return KindUint, strconv.FormatUint(x, 10), nil
	case float32:
		return KindFloat, strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return KindFloat, strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		return KindBool, strconv.FormatBool(x), nil
	case string:
		return KindString, x, nil
	case []byte:
		return KindBytes, base64.StdEncoding.EncodeToString(x), nil
	default:
		return "", "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// decodeValue parses text stored with encodeValue.
func decodeValue(kind Kind, text string) (any, error) {
	var (
		v   any
		err error
	)
	switch kind {
	case KindInt:
		v, err = strconv.ParseInt(text, 10, 64)
	case KindUint:
		v, err = strconv.ParseUint(text, 10, 64)
	case KindFloat:
		v, err = strconv.ParseFloat(text, 64)
	case KindBool:
		v, err = strconv.ParseBool(text)
	case KindString:
		v = text
	case KindBytes:
		v, err = base64.StdEncoding.DecodeString(text)
	default:
		return nil, fmt.Errorf("%w: stored kind %q", ErrUnsupportedValue, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s value %q: %w", kind, text, err)
	}
	return v, nil
}
