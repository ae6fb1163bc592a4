// Package frame defines the Sink capability through which the response decoders
// hand decoded tables to application types, together with Frame, a reference
// table implementation.
//
// A decoder produces each table as a name, an ordered timestamp index and an
// ordered set of named columns whose lengths equal the index length. It never
// depends on a concrete table type: any type T with a Sink[T] can be built from a
// response.
//
//	results, err := influxql.Decode(body, frame.FrameSink{})
//	tables, err := flux.DecodeCSV(body, arrowframe.NewSink())
//
// A sink that refuses the shape of a table reports an *errs.ConversionError. The
// decoder attaches that error to the smallest failing unit (one statement or one
// table) and keeps decoding the rest of the response.
package frame

import "time"

// Sink constructs a table of type T from decoded data.
//
// The decoder transfers ownership of index and columns to the sink; they are not
// reused after FromTable returns.
type Sink[T any] interface {
	FromTable(name string, index []time.Time, columns Columns) (T, error)
}

// SinkFunc adapts an ordinary function to the Sink interface.
type SinkFunc[T any] func(name string, index []time.Time, columns Columns) (T, error)

// FromTable calls f.
func (f SinkFunc[T]) FromTable(name string, index []time.Time, columns Columns) (T, error) {
	return f(name, index, columns)
}

var _ Sink[*Frame] = FrameSink{}
