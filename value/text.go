package value

import (
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

// jsonAPI renders JSON strings without HTML escaping, matching the server.
var jsonAPI = jsoniter.Config{EscapeHTML: false}.Froze()

// AppendFloat appends the canonical text form of f.
//
// Magnitudes in [1e-5, 1e21) and zero are written in plain decimal form with the
// fewest digits that parse back to the same bits; other magnitudes use exponent
// form, which every supported parser accepts.
func AppendFloat(dst []byte, f float64) []byte {
	abs := math.Abs(f)
	if abs == 0 || (abs >= 1e-5 && abs < 1e21) {
		return strconv.AppendFloat(dst, f, 'f', -1, 64)
	}

	return strconv.AppendFloat(dst, f, 'e', -1, 64)
}

// AppendLineProtocol appends the line-protocol field form of v.
//
// Integers carry an "i" suffix and unsigned integers a "u" suffix so they never
// read back as floats. Timestamps are written as epoch nanoseconds with the "i"
// suffix, which reads back as an Integer.
func (v Value) AppendLineProtocol(dst []byte) []byte {
	switch v.kind {
	case KindFloat:
		return AppendFloat(dst, math.Float64frombits(v.num))
	case KindInteger, KindTimestamp:
		dst = strconv.AppendInt(dst, int64(v.num), 10) //nolint:gosec
		return append(dst, 'i')
	case KindUnsigned:
		dst = strconv.AppendUint(dst, v.num, 10)
		return append(dst, 'u')
	case KindBoolean:
		return strconv.AppendBool(dst, v.num == 1)
	case KindString:
		dst = append(dst, '"')
		for i := 0; i < len(v.str); i++ {
			c := v.str[i]
			if c == '"' || c == '\\' {
				dst = append(dst, '\\')
			}
			dst = append(dst, c)
		}

		return append(dst, '"')
	default:
		return dst
	}
}

// LineProtocol returns the line-protocol field form of v.
func (v Value) LineProtocol() string {
	return string(v.AppendLineProtocol(nil))
}

// AppendJSON appends the JSON form of v.
//
// Floats always carry a fractional part or an exponent so that a reader applying
// the integer-versus-float rule of the query response recovers the Float kind.
func (v Value) AppendJSON(dst []byte) []byte {
	switch v.kind {
	case KindFloat:
		start := len(dst)
		dst = AppendFloat(dst, math.Float64frombits(v.num))
		for _, c := range dst[start:] {
			if c == '.' || c == 'e' || c == 'E' {
				return dst
			}
		}

		return append(dst, '.', '0')
	case KindInteger:
		return strconv.AppendInt(dst, int64(v.num), 10) //nolint:gosec
	case KindUnsigned:
		return strconv.AppendUint(dst, v.num, 10)
	case KindBoolean:
		return strconv.AppendBool(dst, v.num == 1)
	case KindString:
		return appendJSONString(dst, v.str)
	case KindTimestamp:
		t, _ := v.AsTime()
		dst = append(dst, '"')
		dst = t.AppendFormat(dst, time.RFC3339Nano)

		return append(dst, '"')
	default:
		return append(dst, "null"...)
	}
}

// JSON returns the JSON form of v.
func (v Value) JSON() string {
	return string(v.AppendJSON(nil))
}

// AppendCSV appends the bare annotated-CSV cell form of v. Quoting of cells that
// contain separators is left to the CSV writer.
func (v Value) AppendCSV(dst []byte) []byte {
	switch v.kind {
	case KindFloat:
		return AppendFloat(dst, math.Float64frombits(v.num))
	case KindInteger:
		return strconv.AppendInt(dst, int64(v.num), 10) //nolint:gosec
	case KindUnsigned:
		return strconv.AppendUint(dst, v.num, 10)
	case KindBoolean:
		return strconv.AppendBool(dst, v.num == 1)
	case KindString:
		return append(dst, v.str...)
	case KindTimestamp:
		t, _ := v.AsTime()
		return t.AppendFormat(dst, time.RFC3339Nano)
	default:
		return dst
	}
}

// CSV returns the annotated-CSV cell form of v.
func (v Value) CSV() string {
	return string(v.AppendCSV(nil))
}

func appendJSONString(dst []byte, s string) []byte {
	if !utf8.ValidString(s) {
		s = string([]rune(s))
	}
	stream := jsonAPI.BorrowStream(nil)
	defer jsonAPI.ReturnStream(stream)

	stream.WriteString(s)

	return append(dst, stream.Buffer()...)
}
