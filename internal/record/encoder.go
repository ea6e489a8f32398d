package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// JSONValuer lets a value substitute its own JSON form. Date uses it
// to serialize as YYYY-MM-DD.
type JSONValuer interface {
	ForJSON() any
}

// MarshalCanonical serializes a record payload with stable field
// ordering, RFC 3339 UTC timestamps, YYYY-MM-DD dates, and no HTML or
// Unicode escaping. The same logical record always yields the same
// bytes, which keeps digest-based dedup honest downstream.
func MarshalCanonical(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	// json.Encoder appends a newline; canonical payloads carry none.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case JSONValuer:
		if rv := reflect.ValueOf(t); rv.Kind() == reflect.Ptr && rv.IsNil() {
			return nil, nil
		}
		return normalize(t.ForJSON())
	case time.Time:
		return t.UTC().Format(time.RFC3339), nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			n, err := normalize(val)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			n, err := normalize(val)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return t, nil
	}

	// Typed slices and maps arrive from callers that build records from
	// their own structures. Flatten them through reflection so nested
	// dates and timestamps still normalize.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			n, err := normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("encode record: unsupported map key type %s", rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		for _, key := range rv.MapKeys() {
			n, err := normalize(rv.MapIndex(key).Interface())
			if err != nil {
				return nil, err
			}
			out[key.String()] = n
		}
		return out, nil
	case reflect.Ptr:
		if rv.IsNil() {
			return nil, nil
		}
		return normalize(rv.Elem().Interface())
	}
	return nil, fmt.Errorf("encode record: unsupported value type %T", v)
}
