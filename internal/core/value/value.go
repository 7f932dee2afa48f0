// Package value is the closed primitive variant that crosses the host/guest
// boundary: finite number, string, bool or nil.
package value

import (
	"math"
	"sort"
	"strconv"
)

type Type uint8

const (
	Nil Type = iota
	Number
	String
	Bool
)

// Value is immutable once built.
type Value struct {
	t   Type
	num float64
	str string
	b   bool
}

func NilValue() Value              { return Value{} }
func StringOf(s string) Value      { return Value{t: String, str: s} }
func BoolOf(b bool) Value          { return Value{t: Bool, b: b} }
func (v Value) Type() Type         { return v.t }
func (v Value) IsNil() bool        { return v.t == Nil }
func (v Value) Num() float64       { return v.num }
func (v Value) Str() string        { return v.str }
func (v Value) Bool() bool         { return v.b }
func (v Value) Equal(o Value) bool { return v == o }

// NumberOf returns a number value, or false for NaN and ±Inf.
func NumberOf(f float64) (Value, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, false
	}
	return Value{t: Number, num: f}, true
}

// MustNumber panics on non-finite input. For constants and tests.
func MustNumber(f float64) Value {
	v, ok := NumberOf(f)
	if !ok {
		panic("value: non-finite number")
	}
	return v
}

func (v Value) String() string {
	switch v.t {
	case Number:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case String:
		return v.str
	case Bool:
		return strconv.FormatBool(v.b)
	}
	return "nil"
}

// Of sanitizes an arbitrary Go value. Integers and floats become numbers;
// non-finite numbers, maps, slices, structs and funcs are rejected.
func Of(x any) (Value, bool) {
	switch t := x.(type) {
	case nil:
		return Value{}, true
	case Value:
		return t, true
	case string:
		return StringOf(t), true
	case bool:
		return BoolOf(t), true
	case float64:
		return NumberOf(t)
	case float32:
		return NumberOf(float64(t))
	case int:
		return NumberOf(float64(t))
	case int8:
		return NumberOf(float64(t))
	case int16:
		return NumberOf(float64(t))
	case int32:
		return NumberOf(float64(t))
	case int64:
		return NumberOf(float64(t))
	case uint:
		return NumberOf(float64(t))
	case uint8:
		return NumberOf(float64(t))
	case uint16:
		return NumberOf(float64(t))
	case uint32:
		return NumberOf(float64(t))
	case uint64:
		return NumberOf(float64(t))
	}
	return Value{}, false
}

// Map is a flat string-keyed payload.
type Map map[string]Value

// MapOf sanitizes a Go map, dropping every entry Of rejects. Dropped keys
// are returned sorted so callers can log them.
func MapOf(in map[string]any) (Map, []string) {
	out := make(Map, len(in))
	var dropped []string
	for k, x := range in {
		v, ok := Of(x)
		if !ok {
			dropped = append(dropped, k)
			continue
		}
		out[k] = v
	}
	sort.Strings(dropped)
	return out, dropped
}

// Clone copies m. A nil map clones to an empty map.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Number returns the numeric field key, or fallback when it is missing or
// not a number.
func (m Map) Number(key string, fallback float64) float64 {
	if v, ok := m[key]; ok && v.t == Number {
		return v.num
	}
	return fallback
}

func (m Map) Text(key string, fallback string) string {
	if v, ok := m[key]; ok && v.t == String {
		return v.str
	}
	return fallback
}

func (m Map) Flag(key string, fallback bool) bool {
	if v, ok := m[key]; ok && v.t == Bool {
		return v.b
	}
	return fallback
}

// Keys returns the keys in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
