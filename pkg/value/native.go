package value

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
)

// From converts a native Go representation into a Value. Supported inputs are
// nil, Value, booleans, all integer and float types, json.Number, strings, and
// slices, arrays or string-keyed maps of supported inputs. Anything else
// returns ErrUnsupported.
func From(x any) (Value, error) {
	return convert(x, false)
}

// FromDeserialized is From with collection population in "deserialize" mode:
// every string found inside a list or map that holds a serialized JSON object
// or array is replaced by the parsed structure. Each string is tried once;
// strings that parse to scalars are kept verbatim.
func FromDeserialized(x any) (Value, error) {
	return convert(x, true)
}

// Normalize converts x and, on failure, logs and yields null so the caller
// can continue with its defaults.
func Normalize(logger *slog.Logger, x any) Value {
	v, err := From(x)
	if err != nil {
		logger.Warn("Value conversion failed, using null", "type", fmt.Sprintf("%T", x), "err", err)
		return Value{}
	}
	return v
}

// NormalizeDeserialized is Normalize in deserialize mode.
func NormalizeDeserialized(logger *slog.Logger, x any) Value {
	v, err := FromDeserialized(x)
	if err != nil {
		logger.Warn("Value conversion failed, using null", "type", fmt.Sprintf("%T", x), "err", err)
		return Value{}
	}
	return v
}

func convert(x any, deserialize bool) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		if deserialize {
			return redeserialize(t), nil
		}
		return t, nil
	case bool:
		return OfBool(t), nil
	case string:
		return OfString(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: number %q: %v", ErrUnsupported, t.String(), err)
		}
		return OfNumber(f), nil
	case int:
		return OfInt(int64(t)), nil
	case int8:
		return OfInt(int64(t)), nil
	case int16:
		return OfInt(int64(t)), nil
	case int32:
		return OfInt(int64(t)), nil
	case int64:
		return OfInt(t), nil
	case uint:
		return OfNumber(float64(t)), nil
	case uint8:
		return OfNumber(float64(t)), nil
	case uint16:
		return OfNumber(float64(t)), nil
	case uint32:
		return OfNumber(float64(t)), nil
	case uint64:
		return OfNumber(float64(t)), nil
	case float32:
		return OfNumber(float64(t)), nil
	case float64:
		return OfNumber(t), nil
	case []any:
		items := make([]Value, 0, len(t))
		for i, e := range t {
			item, err := convertEntry(e, deserialize)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, item)
		}
		return Value{kind: List, l: items}, nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			item, err := convertEntry(e, deserialize)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = item
		}
		return Value{kind: Map, m: m}, nil
	case map[string]string:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			item, err := convertEntry(e, deserialize)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = item
		}
		return Value{kind: Map, m: m}, nil
	}
	return convertReflect(reflect.ValueOf(x), deserialize)
}

// convertEntry converts a collection member, applying the one-shot string
// re-parse when deserialize is on.
func convertEntry(e any, deserialize bool) (Value, error) {
	if s, ok := e.(string); ok && deserialize {
		if raw, ok := parseCollection(s); ok {
			return convert(raw, true)
		}
		return OfString(s), nil
	}
	return convert(e, deserialize)
}

// redeserialize applies deserialize mode to an already-built Value.
func redeserialize(v Value) Value {
	switch v.kind {
	case List:
		items := make([]Value, len(v.l))
		for i, e := range v.l {
			items[i] = redeserializeEntry(e)
		}
		return Value{kind: List, l: items}
	case Map:
		m := make(map[string]Value, len(v.m))
		for k, e := range v.m {
			m[k] = redeserializeEntry(e)
		}
		return Value{kind: Map, m: m}
	}
	return v
}

func redeserializeEntry(e Value) Value {
	if e.kind == String {
		if raw, ok := parseCollection(e.s); ok {
			if parsed, err := convert(raw, true); err == nil {
				return parsed
			}
		}
		return e
	}
	return redeserialize(e)
}

func convertReflect(rv reflect.Value, deserialize bool) (Value, error) {
	if !rv.IsValid() {
		return Value{}, nil
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Value{}, nil
		}
		return convert(rv.Elem().Interface(), deserialize)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return Value{}, fmt.Errorf("%w: %s", ErrUnsupported, rv.Type())
		}
		items := make([]Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := convertEntry(rv.Index(i).Interface(), deserialize)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, item)
		}
		return Value{kind: List, l: items}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("%w: %s", ErrUnsupported, rv.Type())
		}
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			item, err := convertEntry(iter.Value().Interface(), deserialize)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = item
		}
		return Value{kind: Map, m: m}, nil
	case reflect.Bool:
		return OfBool(rv.Bool()), nil
	case reflect.String:
		return OfString(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return OfInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return OfNumber(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return OfNumber(rv.Float()), nil
	}
	return Value{}, fmt.Errorf("%w: %s", ErrUnsupported, rv.Type())
}

// ToNative converts v into fresh plain Go values: nil, bool, int64 for
// integral numbers, float64 otherwise, string, []any and map[string]any.
func ToNative(v Value) any {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		if i, ok := v.AsInt(); ok {
			return i
		}
		return v.n
	case String:
		return v.s
	case List:
		out := make([]any, len(v.l))
		for i, e := range v.l {
			out[i] = ToNative(e)
		}
		return out
	case Map:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = ToNative(e)
		}
		return out
	}
	return nil
}

// Flatten renders a map Value as a string map, the shape push transports
// accept for data payloads. Strings pass through, other scalars are formatted
// and collections are serialized to JSON text. Null entries are dropped.
func Flatten(v Value) map[string]string {
	out := make(map[string]string, v.Len())
	if v.kind != Map {
		return out
	}
	for k, e := range v.m {
		switch e.kind {
		case Null:
			continue
		case String:
			out[k] = e.s
		case Bool:
			out[k] = strconv.FormatBool(e.b)
		case Number:
			out[k] = strconv.FormatFloat(e.n, 'f', -1, 64)
		default:
			if text, err := ToText(e); err == nil {
				out[k] = text
			}
		}
	}
	return out
}
