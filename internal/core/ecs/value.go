package ecs

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Kind is the primitive type of one component field. The numeric values are
// part of the replication wire format; do not reorder.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindI8
	KindU8
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64
	KindF32
	KindF64
	KindString
	KindEntity
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindI8:      "i8",
	KindU8:      "u8",
	KindI16:     "i16",
	KindU16:     "u16",
	KindI32:     "i32",
	KindU32:     "u32",
	KindI64:     "i64",
	KindU64:     "u64",
	KindF32:     "f32",
	KindF64:     "f64",
	KindString:  "string",
	KindEntity:  "entity",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) Valid() bool { return k > KindInvalid && k <= KindEntity }

func (k Kind) signed() bool   { return k == KindI8 || k == KindI16 || k == KindI32 || k == KindI64 }
func (k Kind) unsigned() bool { return k == KindU8 || k == KindU16 || k == KindU32 || k == KindU64 }
func (k Kind) float() bool    { return k == KindF32 || k == KindF64 }

// Value is one field value in transit: used by replication, digests and
// generic reads. Exactly one of Int/Uint/Float/Str is meaningful, picked by Kind.
type Value struct {
	Kind  Kind
	Int   int64
	Uint  uint64
	Float float64
	Str   string
}

func IntValue(k Kind, v int64) Value     { return Value{Kind: k, Int: v} }
func UintValue(k Kind, v uint64) Value   { return Value{Kind: k, Uint: v} }
func FloatValue(k Kind, v float64) Value { return Value{Kind: k, Float: v} }
func StringValue(s string) Value         { return Value{Kind: KindString, Str: s} }
func EntityValue(id EntityID) Value      { return Value{Kind: KindEntity, Uint: uint64(id)} }
func (v Value) Entity() EntityID         { return EntityID(v.Uint) }
func (v Value) Equal(o Value) bool       { return v == o }
func (v Value) IsZero() bool             { return v == Value{Kind: v.Kind} }

// AsFloat converts any numeric value to float64. Strings convert to 0.
func (v Value) AsFloat() float64 {
	switch {
	case v.Kind.signed():
		return float64(v.Int)
	case v.Kind.unsigned(), v.Kind == KindEntity:
		return float64(v.Uint)
	case v.Kind.float():
		return v.Float
	}
	return 0
}

func (v Value) String() string {
	switch {
	case v.Kind.signed():
		return fmt.Sprintf("%s:%d", v.Kind, v.Int)
	case v.Kind.unsigned():
		return fmt.Sprintf("%s:%d", v.Kind, v.Uint)
	case v.Kind.float():
		return fmt.Sprintf("%s:%g", v.Kind, v.Float)
	case v.Kind == KindString:
		return fmt.Sprintf("string:%q", v.Str)
	case v.Kind == KindEntity:
		return fmt.Sprintf("entity:%d", v.Uint)
	}
	return "invalid"
}

// AppendBinary appends the fixed-width little-endian encoding of v, without
// a kind tag. Strings are prefixed with a u32 length.
func (v Value) AppendBinary(b []byte) []byte {
	switch v.Kind {
	case KindI8:
		return append(b, byte(int8(v.Int)))
	case KindU8:
		return append(b, uint8(v.Uint))
	case KindI16:
		return binary.LittleEndian.AppendUint16(b, uint16(int16(v.Int)))
	case KindU16:
		return binary.LittleEndian.AppendUint16(b, uint16(v.Uint))
	case KindI32:
		return binary.LittleEndian.AppendUint32(b, uint32(int32(v.Int)))
	case KindU32:
		return binary.LittleEndian.AppendUint32(b, uint32(v.Uint))
	case KindI64:
		return binary.LittleEndian.AppendUint64(b, uint64(v.Int))
	case KindU64, KindEntity:
		return binary.LittleEndian.AppendUint64(b, v.Uint)
	case KindF32:
		return binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(v.Float)))
	case KindF64:
		return binary.LittleEndian.AppendUint64(b, math.Float64bits(v.Float))
	case KindString:
		b = binary.LittleEndian.AppendUint32(b, uint32(len(v.Str)))
		return append(b, v.Str...)
	}
	return b
}
