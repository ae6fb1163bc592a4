package value

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/arloliu/influxwire/errs"
	"github.com/arloliu/influxwire/format"
)

func parseError(token, expected string, err error) *errs.ParseError {
	return &errs.ParseError{Column: -1, Token: token, Expected: expected, Err: err}
}

// numErr maps strconv failures onto the errs taxonomy.
func numErr(err error) error {
	if errors.Is(err, strconv.ErrRange) {
		return errs.ErrOverflow
	}

	return errs.ErrSyntax
}

// ParseFloat parses a finite float literal. NaN and infinities are rejected.
func ParseFloat(s string) (Value, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, parseError(s, "float", numErr(err))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, parseError(s, "finite float", errs.ErrNonFiniteFloat)
	}

	return Float(f), nil
}

// ParseInteger parses a base-10 int64 literal, rejecting overflow.
func ParseInteger(s string) (Value, error) {
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Value{}, parseError(s, "integer", numErr(err))
	}

	return Integer(i), nil
}

// ParseUnsigned parses a base-10 uint64 literal, rejecting overflow and signs.
func ParseUnsigned(s string) (Value, error) {
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return Value{}, parseError(s, "unsigned integer", numErr(err))
	}

	return Unsigned(u), nil
}

// ParseTime parses an RFC3339 timestamp with optional fractional seconds. Instants
// outside [MinTime, MaxTime] fail with errs.ErrOverflow.
func ParseTime(s string) (Value, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Value{}, parseError(s, "RFC3339 timestamp", errs.ErrSyntax)
	}
	if !InTimeRange(t) {
		return Value{}, parseError(s, "timestamp in range", errs.ErrOverflow)
	}

	return Timestamp(t), nil
}

// ParseLineProtocol parses one line-protocol field value: a quoted string, a
// boolean, an integer with "i" suffix, an unsigned integer with "u" suffix, or a
// float.
func ParseLineProtocol(s string) (Value, error) {
	if s == "" {
		return Value{}, parseError(s, "field value", errs.ErrUnexpectedEOF)
	}

	switch s[0] {
	case '"':
		str, err := UnquoteLineProtocol(s)
		if err != nil {
			return Value{}, err
		}

		return String(str), nil
	case 't', 'T', 'f', 'F':
		switch s {
		case "t", "T", "true", "True", "TRUE":
			return Bool(true), nil
		case "f", "F", "false", "False", "FALSE":
			return Bool(false), nil
		}

		return Value{}, parseError(s, "boolean", errs.ErrSyntax)
	}

	switch s[len(s)-1] {
	case 'i':
		return ParseInteger(s[:len(s)-1])
	case 'u':
		return ParseUnsigned(s[:len(s)-1])
	}

	return ParseFloat(s)
}

// UnquoteLineProtocol decodes a double-quoted line-protocol string. Only \" and
// \\ are escape sequences; any other backslash is kept literally.
func UnquoteLineProtocol(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' {
		return "", parseError(s, "quoted string", errs.ErrUnterminatedString)
	}

	var sb strings.Builder
	sb.Grow(len(s) - 2)
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			if i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
				sb.WriteByte(s[i+1])
				i++

				continue
			}
			sb.WriteByte(c)
		case '"':
			if i != len(s)-1 {
				return "", parseError(s, "end of string", errs.ErrTrailingData)
			}

			return sb.String(), nil
		default:
			sb.WriteByte(c)
		}
	}

	return "", parseError(s, "closing quote", errs.ErrUnterminatedString)
}

// ParseNumber classifies a JSON number literal: a literal with a fractional part
// or an exponent is a Float; otherwise it is an Integer, or an Unsigned when it is
// positive and exceeds the int64 range. Anything wider is an overflow.
func ParseNumber(lit string) (Value, error) {
	if strings.ContainsAny(lit, ".eE") {
		return ParseFloat(lit)
	}

	i, err := strconv.ParseInt(lit, 10, 64)
	if err == nil {
		return Integer(i), nil
	}
	if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(lit, "-") {
		return ParseUnsigned(lit)
	}

	return Value{}, parseError(lit, "integer", numErr(err))
}

// ParseJSON parses the JSON form of a value of the given kind. It is the inverse
// of AppendJSON.
func ParseJSON(kind Kind, raw []byte) (Value, error) {
	iter := jsonAPI.BorrowIterator(raw)
	defer jsonAPI.ReturnIterator(iter)

	v, err := readJSON(kind, iter)
	if err != nil {
		return Value{}, err
	}
	if iter.WhatIsNext() != jsoniter.InvalidValue {
		return Value{}, parseError(string(raw), kind.String(), errs.ErrTrailingData)
	}

	return v, nil
}

func readJSON(kind Kind, iter *jsoniter.Iterator) (Value, error) {
	next := iter.WhatIsNext()
	switch kind {
	case KindFloat, KindInteger, KindUnsigned:
		if next != jsoniter.NumberValue {
			return Value{}, parseError("", "number", errs.ErrDataTypeMismatch)
		}
		lit := string(iter.ReadNumber())
		if iter.Error != nil {
			return Value{}, parseError(lit, "number", errs.ErrSyntax)
		}
		switch kind {
		case KindFloat:
			return ParseFloat(lit)
		case KindInteger:
			return ParseInteger(lit)
		default:
			return ParseUnsigned(lit)
		}
	case KindBoolean:
		if next != jsoniter.BoolValue {
			return Value{}, parseError("", "boolean", errs.ErrDataTypeMismatch)
		}

		return Bool(iter.ReadBool()), nil
	case KindString, KindTimestamp:
		if next != jsoniter.StringValue {
			return Value{}, parseError("", "string", errs.ErrDataTypeMismatch)
		}
		s := iter.ReadString()
		if iter.Error != nil {
			return Value{}, parseError(s, "string", errs.ErrUnterminatedString)
		}
		if kind == KindTimestamp {
			return ParseTime(s)
		}

		return String(s), nil
	default:
		return Value{}, fmt.Errorf("%w: kind %s", errs.ErrInvalidValue, kind)
	}
}

// ParseCSV parses an annotated-CSV cell declared with datatype dt. It is the
// inverse of AppendCSV for the datatype matching each kind. Durations use Go
// duration syntax and decode to Integer nanoseconds; base64Binary cells are kept
// as String.
func ParseCSV(dt format.DataType, s string) (Value, error) {
	switch dt {
	case format.DataTypeString, format.DataTypeBase64:
		return String(s), nil
	case format.DataTypeDouble:
		return ParseFloat(s)
	case format.DataTypeLong:
		return ParseInteger(s)
	case format.DataTypeUnsigned:
		return ParseUnsigned(s)
	case format.DataTypeBoolean:
		switch s {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}

		return Value{}, parseError(s, "boolean", errs.ErrSyntax)
	case format.DataTypeRFC3339, format.DataTypeRFC3339Nano:
		return ParseTime(s)
	case format.DataTypeDuration:
		d, err := time.ParseDuration(s)
		if err != nil {
			return Value{}, parseError(s, "duration", errs.ErrSyntax)
		}

		return Integer(int64(d)), nil
	default:
		return Value{}, parseError(s, "known datatype", errs.ErrUnknownDataType)
	}
}

// DataTypeOf returns the annotated-CSV datatype that renders values of kind k.
func DataTypeOf(k Kind) format.DataType {
	switch k {
	case KindFloat:
		return format.DataTypeDouble
	case KindInteger:
		return format.DataTypeLong
	case KindUnsigned:
		return format.DataTypeUnsigned
	case KindBoolean:
		return format.DataTypeBoolean
	case KindTimestamp:
		return format.DataTypeRFC3339Nano
	default:
		return format.DataTypeString
	}
}
