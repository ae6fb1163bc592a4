// Package influxwire translates between Go values and the wire formats of
// InfluxDB: line protocol for writes, InfluxQL and Flux for queries, and the JSON
// and annotated-CSV documents the query endpoints answer with.
//
// The package performs no I/O. It renders request bodies and query strings and
// decodes response bodies received by any transport.
//
// # Core Features
//
//   - Line protocol encoding and decoding with escaping, precision and batches
//   - Write payloads compressed with gzip, zstd, s2 or lz4
//   - Fluent InfluxQL and Flux builders with identifier and literal quoting
//   - JSON (InfluxQL) and annotated-CSV (Flux) response decoders
//   - Pluggable table sinks: the built-in frame.Frame or Apache Arrow records
//
// # Basic Usage
//
// Writing points:
//
//	line, _ := influxwire.NewPoint("cpu").
//	    Tag("host", "server01").
//	    Field("usage", 0.64).
//	    Timestamp(time.Now()).
//	    Build()
//	payload, _ := influxwire.NewDefaultPayload([]*lineprotocol.Line{line})
//	// POST payload.Body to /write?payload.Values("telegraf", "") with
//	// Content-Encoding payload.ContentEncoding()
//
// Querying with InfluxQL:
//
//	q, _ := influxwire.Select("cpu").Database("telegraf").Fields("usage").Build()
//	// GET /query?q.Values()
//	results, _ := influxwire.DecodeJSON(body)
//
// Querying with Flux:
//
//	q, _ := influxwire.From("telegraf/autogen").
//	    RangeStart(flux.Relative(flux.NewDuration(-15, flux.Minute))).
//	    FilterMeasurement("cpu").
//	    Build()
//	res, _ := influxwire.DecodeCSV(body)
//
// # Package Structure
//
// This package provides convenient top-level wrappers for the common paths. For
// custom sinks and fine-grained control, use the lineprotocol, influxql, flux and
// frame packages directly.
package influxwire

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/arloliu/influxwire/compress"
	"github.com/arloliu/influxwire/flux"
	"github.com/arloliu/influxwire/format"
	"github.com/arloliu/influxwire/frame"
	"github.com/arloliu/influxwire/frame/arrowframe"
	"github.com/arloliu/influxwire/influxql"
	"github.com/arloliu/influxwire/lineprotocol"
)

var defaultPayloadOptions = []lineprotocol.EncoderOption{
	lineprotocol.WithPrecision(format.PrecisionNanosecond),
	lineprotocol.WithCompression(format.CompressionGzip),
}

// NewPoint starts building a line-protocol point for measurement.
func NewPoint(measurement string) *lineprotocol.Builder {
	return lineprotocol.NewBuilder(measurement)
}

// NewPayload renders lines into a write request body with custom options.
//
// Parameters:
//   - lines: Points to write, in order
//   - opts: Encoder options (lineprotocol.WithPrecision, lineprotocol.WithCompression)
//
// Returns:
//   - *lineprotocol.Payload: The rendered body with its query parameters
//   - error: *errs.EncodingError naming the first invalid line
func NewPayload(lines []*lineprotocol.Line, opts ...lineprotocol.EncoderOption) (*lineprotocol.Payload, error) {
	return lineprotocol.NewPayload(lines, opts...)
}

// NewDefaultPayload renders lines with the recommended settings:
//   - Nanosecond precision
//   - gzip compression, which every InfluxDB version accepts
func NewDefaultPayload(lines []*lineprotocol.Line) (*lineprotocol.Payload, error) {
	return lineprotocol.NewPayload(lines, defaultPayloadOptions...)
}

// Select starts an InfluxQL SELECT over measurement.
func Select(measurement string) *influxql.Builder {
	return influxql.NewBuilder(measurement)
}

// From starts a Flux pipeline reading bucket.
func From(bucket string) *flux.Builder {
	return flux.From(bucket)
}

// DecodeJSON decodes an InfluxQL JSON response into frames.
//
// Returns:
//   - []influxql.StatementResult[*frame.Frame]: One result per statement
//   - error: A whole-response failure; statement failures are kept per result
func DecodeJSON(body []byte, opts ...influxql.DecodeOption) ([]influxql.StatementResult[*frame.Frame], error) {
	return influxql.Decode(body, frame.FrameSink{}, opts...)
}

// DecodeCSV decodes a Flux annotated-CSV response into frames.
func DecodeCSV(body []byte, opts ...flux.DecodeOption) (*flux.Result[*frame.Frame], error) {
	return flux.DecodeCSV(body, frame.FrameSink{}, opts...)
}

// DecodeCSVRecords decodes a Flux annotated-CSV response into Arrow records
// allocated from the Go heap. The caller releases every returned record.
func DecodeCSVRecords(body []byte, opts ...flux.DecodeOption) (*flux.Result[arrow.Record], error) {
	return flux.DecodeCSV[arrow.Record](body, arrowframe.NewSink(), opts...)
}

// ContentEncoding maps an HTTP Content-Encoding header to the option
// decompressing a CSV response. An empty header means an uncompressed body.
//
// Example:
//
//	opt, err := influxwire.ContentEncoding(resp.Header.Get("Content-Encoding"))
//	res, err := influxwire.DecodeCSV(body, opt)
func ContentEncoding(header string) (flux.DecodeOption, error) {
	codec, err := compress.ForContentEncoding(header)
	if err != nil {
		return nil, err
	}

	return flux.WithContentEncoding(codec.Type()), nil
}
