package protocol

import "bytes"

// ValueKind discriminates the session setting value union.
type ValueKind uint8

const (
	ValueBool ValueKind = iota
	ValueInt32
	ValueUInt32
	ValueInt64
	ValueUInt64
	ValueDouble
	ValueFloat
	ValueString
	ValueBlob

	valueKindCount
)

// Value is a free-form session setting: one of bool, i32, u32, i64, u64,
// double, float, string or byte blob. The zero value is boolean false.
type Value struct {
	Kind ValueKind

	Bool    bool
	Int64   int64   // backing storage for ValueInt32 and ValueInt64
	UInt64  uint64  // backing storage for ValueUInt32 and ValueUInt64
	Float64 float64 // backing storage for ValueFloat and ValueDouble
	Str     string
	Blob    []byte
}

func BoolValue(v bool) Value      { return Value{Kind: ValueBool, Bool: v} }
func Int32Value(v int32) Value    { return Value{Kind: ValueInt32, Int64: int64(v)} }
func UInt32Value(v uint32) Value  { return Value{Kind: ValueUInt32, UInt64: uint64(v)} }
func Int64Value(v int64) Value    { return Value{Kind: ValueInt64, Int64: v} }
func UInt64Value(v uint64) Value  { return Value{Kind: ValueUInt64, UInt64: v} }
func DoubleValue(v float64) Value { return Value{Kind: ValueDouble, Float64: v} }
func FloatValue(v float32) Value  { return Value{Kind: ValueFloat, Float64: float64(v)} }
func StringValue(v string) Value  { return Value{Kind: ValueString, Str: v} }
func BlobValue(v []byte) Value    { return Value{Kind: ValueBlob, Blob: v} }

func (v Value) encode(w *bytes.Buffer) {
	writeU8(w, uint8(v.Kind))
	switch v.Kind {
	case ValueBool:
		writeBool(w, v.Bool)
	case ValueInt32:
		writeI32(w, int32(v.Int64))
	case ValueUInt32:
		writeU32(w, uint32(v.UInt64))
	case ValueInt64:
		writeI64(w, v.Int64)
	case ValueUInt64:
		writeU64(w, v.UInt64)
	case ValueDouble:
		writeF64(w, v.Float64)
	case ValueFloat:
		writeF32(w, float32(v.Float64))
	case ValueString:
		writeString(w, v.Str)
	case ValueBlob:
		writeBlob(w, v.Blob)
	}
}

func decodeValue(r *bytes.Reader) (Value, error) {
	kind, err := readU8(r, "value kind")
	if err != nil {
		return Value{}, err
	}
	if ValueKind(kind) >= valueKindCount {
		return Value{}, parseErrorf("unknown value kind 0x%02X", kind)
	}

	switch ValueKind(kind) {
	case ValueBool:
		b, err := readBool(r, "bool value")
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case ValueInt32:
		v, err := readI32(r, "int32 value")
		if err != nil {
			return Value{}, err
		}
		return Int32Value(v), nil
	case ValueUInt32:
		v, err := readU32(r, "uint32 value")
		if err != nil {
			return Value{}, err
		}
		return UInt32Value(v), nil
	case ValueInt64:
		v, err := readI64(r, "int64 value")
		if err != nil {
			return Value{}, err
		}
		return Int64Value(v), nil
	case ValueUInt64:
		v, err := readU64(r, "uint64 value")
		if err != nil {
			return Value{}, err
		}
		return UInt64Value(v), nil
	case ValueDouble:
		v, err := readF64(r, "double value")
		if err != nil {
			return Value{}, err
		}
		return DoubleValue(v), nil
	case ValueFloat:
		v, err := readF32(r, "float value")
		if err != nil {
			return Value{}, err
		}
		return FloatValue(v), nil
	case ValueString:
		v, err := readString(r, "string value")
		if err != nil {
			return Value{}, err
		}
		return StringValue(v), nil
	default: // ValueBlob
		v, err := readBlob(r, "blob value")
		if err != nil {
			return Value{}, err
		}
		return BlobValue(v), nil
	}
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueBool:
		return v.Bool == other.Bool
	case ValueInt32, ValueInt64:
		return v.Int64 == other.Int64
	case ValueUInt32, ValueUInt64:
		return v.UInt64 == other.UInt64
	case ValueFloat, ValueDouble:
		return v.Float64 == other.Float64
	case ValueString:
		return v.Str == other.Str
	default:
		return bytes.Equal(v.Blob, other.Blob)
	}
}
