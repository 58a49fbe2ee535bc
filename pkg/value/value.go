// Package value defines Value, the normalized data container that every payload
// conversion in the bridge goes through.
//
// A Value is one of six variants: null, bool, number, string, an ordered list of
// Values, or a string-keyed map of Values. Values are immutable. Every
// constructor and accessor that deals with collections copies, so a Value never
// aliases a caller's slice or map.
package value

import (
	"math"
	"sort"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	List
	Map
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case List:
		return "list"
	case Map:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a tagged union. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	l    []Value
	m    map[string]Value
}

// OfNull returns the null Value.
func OfNull() Value { return Value{} }

func OfBool(b bool) Value { return Value{kind: Bool, b: b} }

func OfNumber(n float64) Value { return Value{kind: Number, n: n} }

func OfInt(n int64) Value { return Value{kind: Number, n: float64(n)} }

func OfString(s string) Value { return Value{kind: String, s: s} }

// OfList builds a list Value holding copies of items.
func OfList(items ...Value) Value {
	l := make([]Value, len(items))
	copy(l, items)
	return Value{kind: List, l: l}
}

// OfMap builds a map Value from a copy of entries.
func OfMap(entries map[string]Value) Value {
	m := make(map[string]Value, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return Value{kind: Map, m: m}
}

// OfStrings is a convenience for a list of string Values.
func OfStrings(items ...string) Value {
	l := make([]Value, len(items))
	for i, s := range items {
		l[i] = OfString(s)
	}
	return Value{kind: List, l: l}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == Null }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == Bool }

func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == Number }

// AsInt reports the number as an int64 when it is integral and in range.
func (v Value) AsInt() (int64, bool) {
	if v.kind != Number || v.n != math.Trunc(v.n) || math.IsInf(v.n, 0) {
		return 0, false
	}
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
	if v.n >= math.MaxInt64 || v.n < math.MinInt64 {
		return 0, false
	}
	return int64(v.n), true
}

func (v Value) AsString() (string, bool) { return v.s, v.kind == String }

// AsList returns a copy of the list items, or nil when v is not a list.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != List {
		return nil, false
	}
	l := make([]Value, len(v.l))
	copy(l, v.l)
	return l, true
}

// AsMap returns a copy of the map entries, or nil when v is not a map.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != Map {
		return nil, false
	}
	m := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		m[k] = e
	}
	return m, true
}

// Len is the number of list items or map entries; zero for scalars.
func (v Value) Len() int {
	switch v.kind {
	case List:
		return len(v.l)
	case Map:
		return len(v.m)
	default:
		return 0
	}
}

// Index returns the i-th list item, or null when out of range.
func (v Value) Index(i int) Value {
	if v.kind != List || i < 0 || i >= len(v.l) {
		return Value{}
	}
	return v.l[i]
}

// Get looks up key in a map Value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Map {
		return Value{}, false
	}
	e, ok := v.m[key]
	return e, ok
}

// Has reports whether a map Value contains key.
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Path walks nested maps. Path("a", "b") is v["a"]["b"].
func (v Value) Path(keys ...string) (Value, bool) {
	cur := v
	for _, k := range keys {
		next, ok := cur.Get(k)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// StringAt returns v[key] when it is a string.
func (v Value) StringAt(key string) (string, bool) {
	e, ok := v.Get(key)
	if !ok {
		return "", false
	}
	return e.AsString()
}

// Keys returns the map keys in ascending order.
func (v Value) Keys() []string {
	if v.kind != Map {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy of the map Value with key set. A non-map receiver is
// treated as an empty map.
func (v Value) With(key string, e Value) Value {
	m := make(map[string]Value, len(v.m)+1)
	if v.kind == Map {
		for k, x := range v.m {
			m[k] = x
		}
	}
	m[key] = e
	return Value{kind: Map, m: m}
}

// Without returns a copy of the map Value with keys removed.
func (v Value) Without(keys ...string) Value {
	if v.kind != Map {
		return v
	}
	m := make(map[string]Value, len(v.m))
	for k, x := range v.m {
		m[k] = x
	}
	for _, k := range keys {
		delete(m, k)
	}
	return Value{kind: Map, m: m}
}

// Equal compares two Values structurally. Numbers compare by value, so 1 and
// 1.0 are equal; map key order is irrelevant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == o.b
	case Number:
		return v.n == o.n
	case String:
		return v.s == o.s
	case List:
		if len(v.l) != len(o.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(o.l[i]) {
				return false
			}
		}
		return true
	case Map:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, x := range v.m {
			y, ok := o.m[k]
			if !ok || !x.Equal(y) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders v as JSON text. Failures render as "null".
func (v Value) String() string {
	text, err := ToText(v)
	if err != nil {
		return "null"
	}
	return text
}
