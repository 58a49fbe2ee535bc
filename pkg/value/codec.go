package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

var (
	// ErrUnsupported marks a native type that has no Value representation.
	ErrUnsupported = errors.New("unsupported type for value conversion")
	// ErrMalformedText marks input that is not a single JSON document.
	ErrMalformedText = errors.New("malformed value text")
)

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Null:
		return []byte("null"), nil
	case Bool:
		return json.Marshal(v.b)
	case Number:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return nil, fmt.Errorf("%w: non-finite number", ErrUnsupported)
		}
		return json.Marshal(v.n)
	case String:
		return json.Marshal(v.s)
	case List:
		if v.l == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.l)
	case Map:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.m)
	}
	return nil, fmt.Errorf("%w: kind %d", ErrUnsupported, v.kind)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := FromText(string(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ToText serializes v as JSON. Map keys are written in ascending order.
func ToText(v Value) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to serialize value: %w", err)
	}
	return string(b), nil
}

// FromText parses a single JSON document into a Value.
func FromText(text string) (Value, error) {
	raw, err := decodeDocument(text)
	if err != nil {
		return Value{}, err
	}
	return From(raw)
}

// decodeDocument decodes exactly one JSON document. Numbers come back as
// json.Number and are stored as float64, so integers past 2^53 lose precision.
func decodeDocument(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedText, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after document", ErrMalformedText)
	}
	return raw, nil
}

// parseCollection is the opportunistic re-parse used when populating
// collections with deserialization enabled. Only text that decodes to a JSON
// object or array qualifies; scalars stay strings.
func parseCollection(s string) (any, bool) {
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) < 2 {
		return nil, false
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, false
	}
	raw, err := decodeDocument(string(trimmed))
	if err != nil {
		return nil, false
	}
	switch raw.(type) {
	case map[string]any, []any:
		return raw, true
	}
	return nil, false
}
