// Package value implements the scalar value model shared by the line-protocol
// codec and the response decoders.
//
// A Value is a closed tagged union over six kinds: Float, Integer, Unsigned,
// Boolean, String and Timestamp. A Value never mixes kinds, equality is
// kind-specific (floats compare bit-for-bit), and each kind has one canonical text
// form per wire format:
//
//	Kind       Line protocol     JSON                  CSV cell
//	Float      12.5              12.5                  12.5
//	Integer    -55i              -55                   -55
//	Unsigned   55u               55                    55
//	Boolean    true              true                  true
//	String     "a \"b\""         "a \"b\""             a "b"
//	Timestamp  1404810611000000000i  "2014-07-08T09:10:11Z"  2014-07-08T09:10:11Z
//
// Every text form has a parser that is the exact left-inverse of its renderer for
// all values in the kind's range. Non-finite floats are rejected by NewFloat,
// Validate and every parser, so they are never rendered.
package value

import (
	"fmt"
	"math"
	"time"

	"github.com/arloliu/influxwire/errs"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindInvalid   Kind = iota // KindInvalid is the kind of the zero Value.
	KindFloat                 // KindFloat holds a finite float64.
	KindInteger               // KindInteger holds an int64.
	KindUnsigned              // KindUnsigned holds a uint64.
	KindBoolean               // KindBoolean holds a bool.
	KindString                // KindString holds a string.
	KindTimestamp             // KindTimestamp holds an instant with nanosecond precision in UTC.
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "Float"
	case KindInteger:
		return "Integer"
	case KindUnsigned:
		return "Unsigned"
	case KindBoolean:
		return "Boolean"
	case KindString:
		return "String"
	case KindTimestamp:
		return "Timestamp"
	default:
		return "Invalid"
	}
}

// Value is an immutable scalar. The zero Value is invalid.
type Value struct {
	kind Kind
	num  uint64 // float bits, two's complement int64, uint64, 0/1, or epoch nanoseconds
	str  string
}

// Float returns a Float value. The result is not checked; use NewFloat to
// reject NaN and infinities at construction.
func Float(f float64) Value {
	return Value{kind: KindFloat, num: math.Float64bits(f)}
}

// NewFloat returns a Float value, rejecting NaN and ±Inf.
func NewFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: %v", errs.ErrNonFiniteFloat, f)
	}

	return Float(f), nil
}

// Integer returns an Integer value.
func Integer(i int64) Value {
	return Value{kind: KindInteger, num: uint64(i)} //nolint:gosec
}

// Unsigned returns an Unsigned value.
func Unsigned(u uint64) Value {
	return Value{kind: KindUnsigned, num: u}
}

// Bool returns a Boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBoolean}
	if b {
		v.num = 1
	}

	return v
}

// String returns a String value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Timestamps cover the instants whose Unix nanoseconds fit in an int64, roughly
// the years 1677 to 2262.
var (
	MinTime = time.Unix(0, math.MinInt64).UTC()
	MaxTime = time.Unix(0, math.MaxInt64).UTC()
)

// InTimeRange reports whether t is representable as a Timestamp.
func InTimeRange(t time.Time) bool {
	return !t.Before(MinTime) && !t.After(MaxTime)
}

// Timestamp returns a Timestamp value holding t truncated to nanoseconds since the
// Unix epoch. t must satisfy InTimeRange; use NewTimestamp for unchecked input.
func Timestamp(t time.Time) Value {
	return Value{kind: KindTimestamp, num: uint64(t.UnixNano())} //nolint:gosec
}

// NewTimestamp returns a Timestamp value for t, or errs.ErrOverflow when t lies
// outside [MinTime, MaxTime].
func NewTimestamp(t time.Time) (Value, error) {
	if !InTimeRange(t) {
		return Value{}, fmt.Errorf("%w: %s outside the nanosecond timestamp range", errs.ErrOverflow, t.UTC().Format(time.RFC3339))
	}

	return Timestamp(t), nil
}

// TimestampNanos returns a Timestamp value from epoch nanoseconds.
func TimestampNanos(ns int64) Value {
	return Value{kind: KindTimestamp, num: uint64(ns)} //nolint:gosec
}

// Of converts a native Go scalar to a Value.
//
// Signed integers of any width map to Integer, unsigned integers to Unsigned,
// float32/float64 to Float (non-finite values are rejected), and time.Time to
// Timestamp. A Value is returned as-is after validation.
//
// Parameters:
//   - v: Go scalar to convert
//
// Returns:
//   - Value: Converted value
//   - error: errs.ErrUnsupportedType for other types, errs.ErrNonFiniteFloat for NaN/Inf,
//     errs.ErrOverflow for instants outside the timestamp range
func Of(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, x.Validate()
	case float64:
		return NewFloat(x)
	case float32:
		return NewFloat(float64(x))
	case int:
		return Integer(int64(x)), nil
	case int8:
		return Integer(int64(x)), nil
	case int16:
		return Integer(int64(x)), nil
	case int32:
		return Integer(int64(x)), nil
	case int64:
		return Integer(x), nil
	case uint:
		return Unsigned(uint64(x)), nil
	case uint8:
		return Unsigned(uint64(x)), nil
	case uint16:
		return Unsigned(uint64(x)), nil
	case uint32:
		return Unsigned(uint64(x)), nil
	case uint64:
		return Unsigned(x), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case time.Time:
		return NewTimestamp(x)
	default:
		return Value{}, fmt.Errorf("%w: %T", errs.ErrUnsupportedType, v)
	}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds one of the six kinds.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Validate reports whether v can be rendered: the zero Value and non-finite floats
// are rejected.
func (v Value) Validate() error {
	switch v.kind {
	case KindInvalid:
		return errs.ErrInvalidValue
	case KindFloat:
		f := math.Float64frombits(v.num)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %v", errs.ErrNonFiniteFloat, f)
		}
	}

	return nil
}

// AsFloat returns the float held by v.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}

	return math.Float64frombits(v.num), true
}

// AsInteger returns the int64 held by v.
func (v Value) AsInteger() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}

	return int64(v.num), true //nolint:gosec
}

// AsUnsigned returns the uint64 held by v.
func (v Value) AsUnsigned() (uint64, bool) {
	if v.kind != KindUnsigned {
		return 0, false
	}

	return v.num, true
}

// AsBool returns the bool held by v.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBoolean {
		return false, false
	}

	return v.num == 1, true
}

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}

	return v.str, true
}

// AsTime returns the instant held by v, in UTC.
func (v Value) AsTime() (time.Time, bool) {
	if v.kind != KindTimestamp {
		return time.Time{}, false
	}

	return time.Unix(0, int64(v.num)).UTC(), true //nolint:gosec
}

// Interface returns v as float64, int64, uint64, bool, string or time.Time, or nil
// for the zero Value.
func (v Value) Interface() any {
	switch v.kind {
	case KindFloat:
		return math.Float64frombits(v.num)
	case KindInteger:
		return int64(v.num) //nolint:gosec
	case KindUnsigned:
		return v.num
	case KindBoolean:
		return v.num == 1
	case KindString:
		return v.str
	case KindTimestamp:
		t, _ := v.AsTime()
		return t
	default:
		return nil
	}
}

// Equal reports whether v and other hold the same kind and the same value.
// Floats are compared by their bit patterns, so 0 and -0 differ.
func (v Value) Equal(other Value) bool {
	return v.kind == other.kind && v.num == other.num && v.str == other.str
}

// String returns the CSV cell form of v.
func (v Value) String() string {
	if v.kind == KindInvalid {
		return "<invalid>"
	}

	return string(v.AppendCSV(nil))
}
