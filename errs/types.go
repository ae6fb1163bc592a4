package errs

import (
	"errors"
	"strconv"
	"strings"
)

// EncodingError reports a value that cannot be rendered to a wire format.
//
// Line is the zero-based position of the offending line inside a batch, or -1
// when the error concerns a single line. Key names the tag or field involved,
// when there is one.
type EncodingError struct {
	Line int
	Key  string
	Err  error
}

func (e *EncodingError) Error() string {
	var sb strings.Builder
	sb.WriteString("encoding error")
	if e.Line >= 0 {
		sb.WriteString(" at line ")
		sb.WriteString(strconv.Itoa(e.Line))
	}
	if e.Key != "" {
		sb.WriteString(" (key ")
		sb.WriteString(strconv.Quote(e.Key))
		sb.WriteByte(')')
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}

	return sb.String()
}

func (e *EncodingError) Unwrap() error { return e.Err }

// ParseError describes where decoding failed.
//
// Row is one-based (the line or CSV record number, 0 when unknown) and Column is
// zero-based (a byte offset for line protocol, a cell index for CSV and JSON, -1
// when unknown). Token holds the offending input, Expected the form that was
// required instead.
type ParseError struct {
	Row        int
	Column     int
	ColumnName string
	Token      string
	Expected   string
	Err        error
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	sb.WriteString("parse error")
	if e.Row > 0 {
		sb.WriteString(" at row ")
		sb.WriteString(strconv.Itoa(e.Row))
	}
	if e.Column >= 0 {
		sb.WriteString(" column ")
		sb.WriteString(strconv.Itoa(e.Column))
	}
	if e.ColumnName != "" {
		sb.WriteString(" (")
		sb.WriteString(strconv.Quote(e.ColumnName))
		sb.WriteByte(')')
	}
	if e.Token != "" {
		sb.WriteString(": token ")
		sb.WriteString(strconv.Quote(e.Token))
	}
	if e.Expected != "" {
		sb.WriteString(": expected ")
		sb.WriteString(e.Expected)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}

	return sb.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// ConversionError reports a decoded table that a sink refused.
type ConversionError struct {
	Table    string
	Column   string
	Expected int
	Found    int
	Err      error
}

func (e *ConversionError) Error() string {
	var sb strings.Builder
	sb.WriteString("conversion error")
	if e.Table != "" {
		sb.WriteString(" in table ")
		sb.WriteString(strconv.Quote(e.Table))
	}
	if e.Column != "" {
		sb.WriteString(" column ")
		sb.WriteString(strconv.Quote(e.Column))
	}
	if e.Expected != e.Found {
		sb.WriteString(": expected ")
		sb.WriteString(strconv.Itoa(e.Expected))
		sb.WriteString(" values, found ")
		sb.WriteString(strconv.Itoa(e.Found))
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}

	return sb.String()
}

func (e *ConversionError) Unwrap() error { return e.Err }

// ServerErrorKind classifies an error reported by the database itself.
type ServerErrorKind uint8

const (
	ServerUnknown           ServerErrorKind = iota // ServerUnknown is an unclassified server error.
	ServerFieldTypeConflict                        // ServerFieldTypeConflict rejects a write whose field type changed.
	ServerDatabaseNotFound                         // ServerDatabaseNotFound rejects a write or query to a missing database.
	ServerStatement                                // ServerStatement is a statement-level query error.
	ServerTable                                    // ServerTable is an error row inside a CSV response.
)

func (k ServerErrorKind) String() string {
	switch k {
	case ServerFieldTypeConflict:
		return "FieldTypeConflict"
	case ServerDatabaseNotFound:
		return "DatabaseNotFound"
	case ServerStatement:
		return "Statement"
	case ServerTable:
		return "Table"
	default:
		return "Unknown"
	}
}

// ServerError is an error surfaced by the remote system rather than a local
// malformation. It never aborts decoding of sibling statements or tables.
type ServerError struct {
	Kind       ServerErrorKind
	StatusCode int
	Statement  int
	Table      string
	Reference  string
	Message    string
}

func (e *ServerError) Error() string {
	var sb strings.Builder
	sb.WriteString("server error")
	switch e.Kind {
	case ServerStatement:
		sb.WriteString(" in statement ")
		sb.WriteString(strconv.Itoa(e.Statement))
	case ServerTable:
		sb.WriteString(" in table ")
		sb.WriteString(strconv.Quote(e.Table))
	default:
		if e.StatusCode != 0 {
			sb.WriteString(" (status ")
			sb.WriteString(strconv.Itoa(e.StatusCode))
			sb.WriteByte(')')
		}
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Reference != "" {
		sb.WriteString(" [reference ")
		sb.WriteString(e.Reference)
		sb.WriteByte(']')
	}

	return sb.String()
}

// Is reports whether target is ErrServerReported.
func (e *ServerError) Is(target error) bool {
	return target == ErrServerReported //nolint:errorlint
}

// IsServerError reports whether err is or wraps a ServerError.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}
