package value_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-notification-bridge/pkg/value"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleValues() map[string]value.Value {
	return map[string]value.Value{
		"null":    value.OfNull(),
		"true":    value.OfBool(true),
		"int":     value.OfInt(42),
		"neg":     value.OfInt(-7),
		"float":   value.OfNumber(3.25),
		"big":     value.OfInt(1_700_000_000_123),
		"string":  value.OfString("hello \"world\""),
		"empty":   value.OfString(""),
		"list":    value.OfList(value.OfInt(1), value.OfString("a"), value.OfNull()),
		"nilList": value.OfList(),
		"map": value.OfMap(map[string]value.Value{
			"a": value.OfBool(false),
			"b": value.OfList(value.OfMap(map[string]value.Value{"c": value.OfNumber(0.5)})),
		}),
		"emptyMap": value.OfMap(nil),
	}
}

func TestTextRoundTrip(t *testing.T) {
	for name, v := range sampleValues() {
		t.Run(name, func(t *testing.T) {
			text, err := value.ToText(v)
			require.NoError(t, err)

			back, err := value.FromText(text)
			require.NoError(t, err)
			assert.True(t, v.Equal(back), "round trip changed %s into %s", v, back)
		})
	}
}

func TestFromText_Malformed(t *testing.T) {
	_, err := value.FromText(`{"a":1} trailing`)
	assert.ErrorIs(t, err, value.ErrMalformedText)

	_, err = value.FromText(`{"a":`)
	assert.ErrorIs(t, err, value.ErrMalformedText)
}

func TestToText_NonFinite(t *testing.T) {
	_, err := value.ToText(value.OfNumber(math.Inf(1)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, value.ErrUnsupported))
}

func TestEqual_NumbersByValue(t *testing.T) {
	assert.True(t, value.OfInt(1).Equal(value.OfNumber(1.0)))
	assert.False(t, value.OfInt(1).Equal(value.OfString("1")))
	assert.False(t, value.OfNull().Equal(value.OfBool(false)))
}

func TestAsInt_Range(t *testing.T) {
	testCases := []struct {
		name   string
		in     value.Value
		want   int64
		wantOK bool
	}{
		{name: "max exact float below 2^63", in: value.OfNumber(math.Nextafter(math.Pow(2, 63), 0)), want: 9223372036854774784, wantOK: true},
		{name: "2^63", in: value.OfNumber(math.Pow(2, 63)), wantOK: false},
		{name: "min int64", in: value.OfNumber(math.MinInt64), want: math.MinInt64, wantOK: true},
		{name: "below min int64", in: value.OfNumber(math.Nextafter(math.MinInt64, math.Inf(-1))), wantOK: false},
		{name: "fractional", in: value.OfNumber(1.5), wantOK: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.in.AsInt()
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestImmutability(t *testing.T) {
	t.Run("constructor copies list", func(t *testing.T) {
		items := []value.Value{value.OfInt(1)}
		v := value.OfList(items...)
		items[0] = value.OfInt(2)

		n, _ := v.Index(0).AsInt()
		assert.Equal(t, int64(1), n)
	})

	t.Run("constructor copies map", func(t *testing.T) {
		entries := map[string]value.Value{"a": value.OfInt(1)}
		v := value.OfMap(entries)
		entries["b"] = value.OfInt(2)

		assert.Equal(t, 1, v.Len())
	})

	t.Run("With leaves receiver untouched", func(t *testing.T) {
		v := value.OfMap(map[string]value.Value{"a": value.OfInt(1)})
		w := v.With("b", value.OfInt(2)).Without("a")

		assert.True(t, v.Has("a"))
		assert.False(t, v.Has("b"))
		assert.Equal(t, []string{"b"}, w.Keys())
	})

	t.Run("From does not alias native slices", func(t *testing.T) {
		native := []any{"x"}
		v, err := value.From(native)
		require.NoError(t, err)
		native[0] = "y"

		s, _ := v.Index(0).AsString()
		assert.Equal(t, "x", s)
	})
}

func TestFrom_NativeTypes(t *testing.T) {
	type custom struct{ A int }

	testCases := []struct {
		name    string
		in      any
		want    value.Value
		wantErr bool
	}{
		{name: "nil", in: nil, want: value.OfNull()},
		{name: "int32", in: int32(5), want: value.OfInt(5)},
		{name: "uint8", in: uint8(7), want: value.OfInt(7)},
		{name: "float32", in: float32(0.5), want: value.OfNumber(0.5)},
		{name: "strings", in: []string{"a", "b"}, want: value.OfStrings("a", "b")},
		{name: "int slice", in: []int{1, 2}, want: value.OfList(value.OfInt(1), value.OfInt(2))},
		{name: "array", in: [2]bool{true, false}, want: value.OfList(value.OfBool(true), value.OfBool(false))},
		{name: "string map", in: map[string]string{"k": "v"}, want: value.OfMap(map[string]value.Value{"k": value.OfString("v")})},
		{name: "typed map", in: map[string]int{"k": 3}, want: value.OfMap(map[string]value.Value{"k": value.OfInt(3)})},
		{name: "nil pointer", in: (*int)(nil), want: value.OfNull()},
		{name: "struct", in: custom{A: 1}, wantErr: true},
		{name: "int keyed map", in: map[int]string{1: "a"}, wantErr: true},
		{name: "bytes", in: []byte("raw"), wantErr: true},
		{name: "nested unsupported", in: []any{1, make(chan int)}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := value.From(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, value.ErrUnsupported)
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
		})
	}
}

func TestNormalize_UnsupportedYieldsNull(t *testing.T) {
	v := value.Normalize(newTestLogger(), struct{}{})
	assert.True(t, v.IsNull())
}

func TestFromDeserialized(t *testing.T) {
	t.Run("serialized collections inside a map are re-parsed", func(t *testing.T) {
		in := map[string]any{
			"cepayload": `{"event":"chat.message","data":{"ceid":"c1"}}`,
			"lights":    `[1, 2, 3]`,
			"title":     "plain",
		}

		got, err := value.FromDeserialized(in)
		require.NoError(t, err)

		event, ok := got.Path("cepayload", "event")
		require.True(t, ok)
		s, _ := event.AsString()
		assert.Equal(t, "chat.message", s)
		lights, _ := got.Get("lights")
		assert.Equal(t, value.List, lights.Kind())
		title, _ := got.StringAt("title")
		assert.Equal(t, "plain", title)
	})

	t.Run("scalar-looking strings stay strings", func(t *testing.T) {
		got, err := value.FromDeserialized(map[string]any{"n": "42", "b": "true", "q": `"quoted"`})
		require.NoError(t, err)

		for _, key := range []string{"n", "b", "q"} {
			e, _ := got.Get(key)
			assert.Equal(t, value.String, e.Kind(), key)
		}
	})

	t.Run("each string is re-parsed at most once", func(t *testing.T) {
		inner := `{"deep":"[1,2]"}`
		doubly, err := value.ToText(value.OfString(inner))
		require.NoError(t, err)

		got, err := value.FromDeserialized(map[string]any{
			"once":  inner,
			"twice": doubly,
		})
		require.NoError(t, err)

		// A nested serialized string is a new string of the parsed structure
		// and gets its own single attempt.
		deep, ok := got.Path("once", "deep")
		require.True(t, ok)
		assert.Equal(t, value.List, deep.Kind())

		// A JSON string literal parses to a scalar, so it is kept verbatim.
		twice, _ := got.StringAt("twice")
		assert.Equal(t, doubly, twice)
	})

	t.Run("top-level strings are not re-parsed", func(t *testing.T) {
		got, err := value.FromDeserialized(`{"a":1}`)
		require.NoError(t, err)
		assert.Equal(t, value.String, got.Kind())
	})

	t.Run("string map entries report parse failures", func(t *testing.T) {
		_, err := value.FromDeserialized(map[string]string{"lights": "[1e999]"})
		require.Error(t, err)
		assert.ErrorIs(t, err, value.ErrUnsupported)
		assert.Contains(t, err.Error(), `key "lights"`)
	})

	t.Run("already built values are deserialized", func(t *testing.T) {
		in := value.OfMap(map[string]value.Value{"x": value.OfString(`["a"]`)})

		got, err := value.FromDeserialized(in)
		require.NoError(t, err)
		x, _ := got.Get("x")
		assert.True(t, value.OfStrings("a").Equal(x))
	})
}

func TestToNative(t *testing.T) {
	v := value.OfMap(map[string]value.Value{
		"i": value.OfInt(3),
		"f": value.OfNumber(1.5),
		"l": value.OfStrings("a"),
		"n": value.OfNull(),
	})

	native := value.ToNative(v).(map[string]any)
	assert.Equal(t, int64(3), native["i"])
	assert.Equal(t, 1.5, native["f"])
	assert.Equal(t, []any{"a"}, native["l"])
	assert.Nil(t, native["n"])
}

func TestFlatten(t *testing.T) {
	v := value.OfMap(map[string]value.Value{
		"s":    value.OfString("x"),
		"i":    value.OfInt(12),
		"b":    value.OfBool(true),
		"skip": value.OfNull(),
		"m":    value.OfMap(map[string]value.Value{"ceid": value.OfString("c1")}),
	})

	flat := value.Flatten(v)
	assert.Equal(t, map[string]string{
		"s": "x",
		"i": "12",
		"b": "true",
		"m": `{"ceid":"c1"}`,
	}, flat)
}

func TestJSONMarshalers(t *testing.T) {
	type envelope struct {
		Body value.Value `json:"body"`
	}
	v, err := value.FromText(`{"body":{"k":[1,"two"]}}`)
	require.NoError(t, err)

	var env envelope
	text, err := value.ToText(v)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(text), &env))

	k, ok := env.Body.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, k.Len())
}
