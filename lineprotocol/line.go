// Package lineprotocol encodes and decodes the line-protocol write format:
//
//	measurement[,tag=value...] field=value[,field=value...] [timestamp]
//
// Lines are assembled with a Builder and are immutable once built. Tags and fields
// keep their insertion order, which is also their rendering order, so encoding is
// deterministic.
//
// # Encoding
//
//	line, err := lineprotocol.NewBuilder("location").
//	    Tag("city", "Odense").
//	    Field("latitude", 55.383333).
//	    Field("longitude", 10.383333).
//	    Timestamp(time.Date(2014, 7, 8, 9, 10, 11, 0, time.UTC)).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	text, _ := lineprotocol.Encode(line)
//	// location,city=Odense latitude=55.383333,longitude=10.383333 1404810611000000000
//
// EncodeBatch renders many lines and fails atomically: if any line is invalid
// nothing is returned. NewPayload additionally compresses the batch for the write
// endpoint.
//
// # Decoding
//
// Decode parses one line. DecodeBatch parses a newline-delimited payload and is
// tolerant: every line gets its own Result, so one malformed line does not prevent
// the others from decoding.
package lineprotocol

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/arloliu/influxwire/errs"
	"github.com/arloliu/influxwire/value"
)

// Tag is one indexed key/value pair of a line.
type Tag struct {
	Key   string
	Value string
}

// Field is one typed key/value pair of a line.
type Field struct {
	Key   string
	Value value.Value
}

// Line is a single measurement point. The zero Line is invalid.
type Line struct {
	measurement string
	tags        []Tag
	fields      []Field
	ts          time.Time
	hasTime     bool
}

// Measurement returns the measurement name.
func (l *Line) Measurement() string { return l.measurement }

// Tags returns a copy of the tags in insertion order.
func (l *Line) Tags() []Tag { return slices.Clone(l.tags) }

// Fields returns a copy of the fields in insertion order.
func (l *Line) Fields() []Field { return slices.Clone(l.fields) }

// Tag returns the value of the tag named key.
func (l *Line) Tag(key string) (string, bool) {
	for _, t := range l.tags {
		if t.Key == key {
			return t.Value, true
		}
	}

	return "", false
}

// Field returns the value of the field named key.
func (l *Line) Field(key string) (value.Value, bool) {
	for _, f := range l.fields {
		if f.Key == key {
			return f.Value, true
		}
	}

	return value.Value{}, false
}

// Time returns the line timestamp. The second result is false when the line has
// none, in which case the server assigns the ingestion time.
func (l *Line) Time() (time.Time, bool) { return l.ts, l.hasTime }

// Equal reports whether l and other have the same measurement, tags, fields and
// timestamp. Order matters for tags and fields.
func (l *Line) Equal(other *Line) bool {
	if l.measurement != other.measurement || l.hasTime != other.hasTime {
		return false
	}
	if l.hasTime && !l.ts.Equal(other.ts) {
		return false
	}
	if !slices.Equal(l.tags, other.tags) {
		return false
	}

	return slices.EqualFunc(l.fields, other.fields, func(a, b Field) bool {
		return a.Key == b.Key && a.Value.Equal(b.Value)
	})
}

// Validate checks everything the encoder relies on: a non-empty measurement, at
// least one field, non-empty keys and tag values, finite field values, a
// timestamp within the int64 nanosecond range, and identifiers without
// characters that cannot be escaped (newlines, a trailing backslash, or a
// leading '#' on the measurement).
func (l *Line) Validate() error {
	if l.measurement == "" {
		return &errs.EncodingError{Line: -1, Err: errs.ErrEmptyMeasurement}
	}
	if l.measurement[0] == '#' {
		return &errs.EncodingError{Line: -1, Key: l.measurement,
			Err: fmt.Errorf("%w: measurement starts with '#'", errs.ErrInvalidCharacter)}
	}
	if err := checkIdent(l.measurement); err != nil {
		return &errs.EncodingError{Line: -1, Key: l.measurement, Err: err}
	}

	for _, t := range l.tags {
		switch {
		case t.Key == "":
			return &errs.EncodingError{Line: -1, Err: fmt.Errorf("%w: tag key", errs.ErrEmptyKey)}
		case t.Value == "":
			return &errs.EncodingError{Line: -1, Key: t.Key, Err: errs.ErrEmptyTagValue}
		}
		if err := checkIdent(t.Key); err != nil {
			return &errs.EncodingError{Line: -1, Key: t.Key, Err: err}
		}
		if err := checkIdent(t.Value); err != nil {
			return &errs.EncodingError{Line: -1, Key: t.Key, Err: err}
		}
	}

	if len(l.fields) == 0 {
		return &errs.EncodingError{Line: -1, Err: errs.ErrNoFields}
	}
	for _, f := range l.fields {
		if f.Key == "" {
			return &errs.EncodingError{Line: -1, Err: fmt.Errorf("%w: field key", errs.ErrEmptyKey)}
		}
		if err := checkIdent(f.Key); err != nil {
			return &errs.EncodingError{Line: -1, Key: f.Key, Err: err}
		}
		if err := f.Value.Validate(); err != nil {
			return &errs.EncodingError{Line: -1, Key: f.Key, Err: err}
		}
	}

	if l.hasTime && !value.InTimeRange(l.ts) {
		return &errs.EncodingError{Line: -1, Key: "time",
			Err: fmt.Errorf("%w: %s outside the nanosecond timestamp range", errs.ErrOverflow, l.ts.Format(time.RFC3339))}
	}

	return nil
}

func checkIdent(s string) error {
	if strings.ContainsAny(s, "\n\r") {
		return fmt.Errorf("%w: newline in %q", errs.ErrInvalidCharacter, s)
	}
	if strings.HasSuffix(s, `\`) {
		return fmt.Errorf("%w: trailing backslash in %q", errs.ErrInvalidCharacter, s)
	}

	return nil
}

// Builder accumulates a Line. Each chained call mutates the builder; Build
// validates and hands the line over, after which the builder is spent.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	line     Line
	err      error
	consumed bool
}

// NewBuilder starts a line for measurement.
func NewBuilder(measurement string) *Builder {
	return &Builder{line: Line{measurement: measurement}}
}

// Tag sets a tag. Setting an existing key replaces its value in place.
func (b *Builder) Tag(key, val string) *Builder {
	for i := range b.line.tags {
		if b.line.tags[i].Key == key {
			b.line.tags[i].Value = val
			return b
		}
	}
	b.line.tags = append(b.line.tags, Tag{Key: key, Value: val})

	return b
}

// Field sets a field from a native Go scalar (see value.Of). A conversion
// failure is reported by Build.
func (b *Builder) Field(key string, v any) *Builder {
	val, err := value.Of(v)
	if err != nil {
		if b.err == nil {
			b.err = &errs.EncodingError{Line: -1, Key: key, Err: err}
		}

		return b
	}

	return b.FieldValue(key, val)
}

// FieldValue sets a field. Setting an existing key replaces its value in place.
func (b *Builder) FieldValue(key string, v value.Value) *Builder {
	for i := range b.line.fields {
		if b.line.fields[i].Key == key {
			b.line.fields[i].Value = v
			return b
		}
	}
	b.line.fields = append(b.line.fields, Field{Key: key, Value: v})

	return b
}

// Timestamp sets the line timestamp.
func (b *Builder) Timestamp(t time.Time) *Builder {
	b.line.ts = t.UTC()
	b.line.hasTime = true

	return b
}

// Build validates the accumulated line and returns it.
//
// Returns:
//   - *Line: The immutable line
//   - error: *errs.EncodingError for invalid lines, errs.ErrBuilderConsumed on reuse
func (b *Builder) Build() (*Line, error) {
	if b.consumed {
		return nil, errs.ErrBuilderConsumed
	}
	b.consumed = true

	if b.err != nil {
		return nil, b.err
	}
	if err := b.line.Validate(); err != nil {
		return nil, err
	}

	line := b.line
	b.line = Line{}

	return &line, nil
}
