// Package arrowframe builds Apache Arrow records from decoded tables.
//
// The record schema starts with a non-nullable "time" column of type
// timestamp[ns, UTC] holding the table index, followed by one column per decoded
// column typed after its value kind:
//
//	Float      float64
//	Integer    int64
//	Unsigned   uint64
//	Boolean    bool
//	String     utf8
//	Timestamp  timestamp[ns, UTC]
//
// The table name is stored in the schema metadata under the "name" key. The caller
// owns the returned record and must Release it.
package arrowframe

import (
	"errors"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/arloliu/influxwire/errs"
	"github.com/arloliu/influxwire/frame"
	"github.com/arloliu/influxwire/value"
)

// IndexColumn is the name of the index column of every record.
const IndexColumn = "time"

// MetadataName is the schema metadata key holding the table name.
const MetadataName = "name"

var timestampType = &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}

// Sink builds arrow.Record tables.
type Sink struct {
	alloc memory.Allocator
}

var _ frame.Sink[arrow.Record] = (*Sink)(nil)

// NewSink creates a sink allocating from the Go heap.
func NewSink() *Sink {
	return NewSinkWithAllocator(memory.NewGoAllocator())
}

// NewSinkWithAllocator creates a sink allocating from alloc. A checked allocator
// lets tests verify that records are released.
func NewSinkWithAllocator(alloc memory.Allocator) *Sink {
	return &Sink{alloc: alloc}
}

// FromTable implements frame.Sink.
//
// Returns:
//   - arrow.Record: The record; the caller must Release it
//   - error: *errs.ConversionError for ragged, empty or mixed-kind columns
func (s *Sink) FromTable(name string, index []time.Time, columns frame.Columns) (arrow.Record, error) {
	if err := columns.Validate(len(index)); err != nil {
		var ce *errs.ConversionError
		if errors.As(err, &ce) {
			named := *ce
			named.Table = name

			return nil, &named
		}

		return nil, err
	}

	fields := make([]arrow.Field, 0, len(columns)+1)
	fields = append(fields, arrow.Field{Name: IndexColumn, Type: timestampType})
	for _, c := range columns {
		dt, err := columnType(name, c)
		if err != nil {
			return nil, err
		}
		fields = append(fields, arrow.Field{Name: c.Name, Type: dt})
	}

	md := arrow.NewMetadata([]string{MetadataName}, []string{name})
	schema := arrow.NewSchema(fields, &md)

	b := array.NewRecordBuilder(s.alloc, schema)
	defer b.Release()

	ts := b.Field(0).(*array.TimestampBuilder) //nolint:forcetypeassert
	ts.Reserve(len(index))
	for _, t := range index {
		ts.Append(arrow.Timestamp(t.UnixNano()))
	}

	for i, c := range columns {
		appendColumn(b.Field(i+1), c.Values)
	}

	return b.NewRecord(), nil
}

// columnType returns the arrow type of a single-kind column.
func columnType(table string, c frame.Column) (arrow.DataType, error) {
	if len(c.Values) == 0 {
		return nil, &errs.ConversionError{Table: table, Column: c.Name, Err: errs.ErrEmptyColumn}
	}

	kind := c.Values[0].Kind()
	for row, v := range c.Values {
		if v.Kind() != kind {
			return nil, &errs.ConversionError{
				Table:  table,
				Column: c.Name,
				Err:    fmt.Errorf("%w: row %d is %s, column is %s", errs.ErrMixedColumn, row, v.Kind(), kind),
			}
		}
	}

	switch kind {
	case value.KindFloat:
		return arrow.PrimitiveTypes.Float64, nil
	case value.KindInteger:
		return arrow.PrimitiveTypes.Int64, nil
	case value.KindUnsigned:
		return arrow.PrimitiveTypes.Uint64, nil
	case value.KindBoolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case value.KindString:
		return arrow.BinaryTypes.String, nil
	case value.KindTimestamp:
		return timestampType, nil
	default:
		return nil, &errs.ConversionError{Table: table, Column: c.Name, Err: errs.ErrInvalidValue}
	}
}

func appendColumn(b array.Builder, values []value.Value) {
	b.Reserve(len(values))
	switch fb := b.(type) {
	case *array.Float64Builder:
		for _, v := range values {
			f, _ := v.AsFloat()
			fb.Append(f)
		}
	case *array.Int64Builder:
		for _, v := range values {
			i, _ := v.AsInteger()
			fb.Append(i)
		}
	case *array.Uint64Builder:
		for _, v := range values {
			u, _ := v.AsUnsigned()
			fb.Append(u)
		}
	case *array.BooleanBuilder:
		for _, v := range values {
			x, _ := v.AsBool()
			fb.Append(x)
		}
	case *array.StringBuilder:
		for _, v := range values {
			s, _ := v.AsString()
			fb.Append(s)
		}
	case *array.TimestampBuilder:
		for _, v := range values {
			t, _ := v.AsTime()
			fb.Append(arrow.Timestamp(t.UnixNano()))
		}
	}
}
