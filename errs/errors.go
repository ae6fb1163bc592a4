// Package errs defines the sentinel errors and the typed error taxonomy shared by
// every influxwire package.
//
// Sentinels are wrapped with fmt.Errorf("%w: ...") at the failure site, so callers
// can match them with errors.Is. The four typed errors (EncodingError, ParseError,
// ConversionError and ServerError) carry positional context and unwrap to their
// sentinel cause, so errors.As and errors.Is both work on them.
package errs

import "errors"

// Encoding errors.
var (
	ErrEmptyMeasurement = errors.New("measurement name is empty")
	ErrNoFields         = errors.New("line has no fields")
	ErrEmptyKey         = errors.New("key is empty")
	ErrEmptyTagValue    = errors.New("tag value is empty")
	ErrInvalidCharacter = errors.New("invalid character")
	ErrNonFiniteFloat   = errors.New("float value is not finite")
	ErrInvalidValue     = errors.New("invalid value")
	ErrUnsupportedType  = errors.New("unsupported value type")
	ErrBuilderConsumed  = errors.New("builder already consumed")
	ErrEmptyBucket      = errors.New("bucket name is empty")
	ErrMissingRange     = errors.New("range start is required")
	ErrInvalidDuration  = errors.New("invalid duration")
	ErrInvalidPrecision = errors.New("invalid timestamp precision")
	ErrInvalidCodec     = errors.New("invalid compression type")
)

// Parse errors.
var (
	ErrSyntax              = errors.New("invalid syntax")
	ErrOverflow            = errors.New("value out of range")
	ErrUnterminatedString  = errors.New("unterminated string")
	ErrInvalidEscape       = errors.New("invalid escape sequence")
	ErrTrailingData        = errors.New("unexpected trailing data")
	ErrUnexpectedEOF       = errors.New("unexpected end of input")
	ErrMissingFields       = errors.New("missing field set")
	ErrShapeMismatch       = errors.New("unexpected document shape")
	ErrNullValue           = errors.New("null value without default")
	ErrColumnCount         = errors.New("inconsistent column count")
	ErrAnnotationAfterData = errors.New("annotation row after data rows")
	ErrUnknownAnnotation   = errors.New("unknown annotation")
	ErrUnknownDataType     = errors.New("unknown datatype")
	ErrMissingHeader       = errors.New("missing header row")
	ErrDataTypeMismatch    = errors.New("datatype mismatch")
)

// Conversion errors.
var (
	ErrRaggedColumn = errors.New("column length differs from index length")
	ErrMixedColumn  = errors.New("column mixes value kinds")
	ErrEmptyColumn  = errors.New("column has no values")
	ErrMissingTag   = errors.New("series has no such tag")
	ErrDuplicateTag = errors.New("tag value selects more than one series")
)

// ErrServerReported is matched by every ServerError through errors.Is.
var ErrServerReported = errors.New("server reported error")
