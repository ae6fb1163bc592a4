package influxql

import (
	"errors"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/arloliu/influxwire/compress"
	"github.com/arloliu/influxwire/errs"
	"github.com/arloliu/influxwire/format"
	"github.com/arloliu/influxwire/frame"
	"github.com/arloliu/influxwire/internal/logging"
	"github.com/arloliu/influxwire/internal/options"
	"github.com/arloliu/influxwire/value"
)

var jsonAPI = jsoniter.ConfigDefault

// DecoderConfig holds the settings of Decode.
type DecoderConfig struct {
	epoch       format.Precision
	defaults    map[string]value.Value
	compression format.CompressionType
	promote     bool
	logger      logrus.FieldLogger
}

// DecodeOption is a functional option for configuring response decoding.
type DecodeOption = options.Option[*DecoderConfig]

// WithEpoch sets the precision of integer index timestamps, matching the epoch
// parameter of the query. Default is nanoseconds.
func WithEpoch(p format.Precision) DecodeOption {
	return options.Named("epoch", func(c *DecoderConfig) error {
		if !p.Valid() {
			return errs.ErrInvalidPrecision
		}
		c.epoch = p

		return nil
	})
}

// WithNullDefault declares the value substituted for null cells of column.
// Without a default a null cell is a parse error.
func WithNullDefault(column string, v value.Value) DecodeOption {
	return options.Named("null default", func(c *DecoderConfig) error {
		if err := v.Validate(); err != nil {
			return err
		}
		if c.defaults == nil {
			c.defaults = make(map[string]value.Value)
		}
		c.defaults[column] = v

		return nil
	})
}

// WithContentEncoding decompresses the body with the codec of ct before decoding.
func WithContentEncoding(ct format.CompressionType) DecodeOption {
	return options.Named("content encoding", func(c *DecoderConfig) error {
		if _, err := compress.GetCodec(ct); err != nil {
			return err
		}
		c.compression = ct

		return nil
	})
}

// WithNumericPromotion converts Integer cells to Float in columns that also hold
// Float cells. The server renders whole floats such as 2.0 as 2, so a float field
// otherwise decodes to a column mixing both kinds.
func WithNumericPromotion() DecodeOption {
	return options.NoError(func(c *DecoderConfig) {
		c.promote = true
	})
}

// WithLogger sets the logger receiving failed statements and skipped series.
func WithLogger(l logrus.FieldLogger) DecodeOption {
	return options.NoError(func(c *DecoderConfig) {
		c.logger = logging.OrDiscard(l)
	})
}

// Series is one decoded series of a statement.
type Series[T any] struct {
	Name string
	Tags map[string]string
	// Columns lists the column names as sent by the server, index column first.
	Columns []string
	Table   T
}

// StatementResult is the outcome of one statement. When Err is set, Series holds
// nothing; a failed statement never affects its siblings.
type StatementResult[T any] struct {
	StatementID int
	Series      []Series[T]
	Err         error
}

// Decode parses a query endpoint response and builds one table per series with
// sink.
//
// Parameters:
//   - body: Response body
//   - sink: Sink building the table of every series
//   - opts: Decoder options
//
// Returns:
//   - []StatementResult[T]: One result per statement, in response order
//   - error: *errs.ServerError when the server rejected the whole request,
//     *errs.ParseError when the document is malformed
func Decode[T any](body []byte, sink frame.Sink[T], opts ...DecodeOption) ([]StatementResult[T], error) {
	cfg := &DecoderConfig{
		epoch:       format.PrecisionNanosecond,
		compression: format.CompressionNone,
		logger:      logging.Discard(),
	}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	if cfg.compression != format.CompressionNone {
		codec, err := compress.GetCodec(cfg.compression)
		if err != nil {
			return nil, err
		}
		if body, err = codec.Decompress(body); err != nil {
			return nil, err
		}
	}

	iter := jsonAPI.BorrowIterator(body)
	defer jsonAPI.ReturnIterator(iter)

	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, shapeError("response", "object")
	}

	var (
		results   []StatementResult[T]
		serverErr *errs.ServerError
	)
	for key := iter.ReadObject(); key != ""; key = iter.ReadObject() {
		switch key {
		case "results":
			if iter.WhatIsNext() != jsoniter.ArrayValue {
				return nil, shapeError(key, "array")
			}
			for i := 0; iter.ReadArray(); i++ {
				raw := iter.SkipAndReturnBytes()
				if iter.Error != nil {
					break
				}
				results = append(results, decodeStatement(raw, i, sink, cfg))
			}
		case "error":
			if iter.WhatIsNext() != jsoniter.StringValue {
				return nil, shapeError(key, "string")
			}
			serverErr = &errs.ServerError{Kind: errs.ServerUnknown, Message: iter.ReadString()}
		default:
			iter.Skip()
		}
	}
	if err := syntaxError(iter); err != nil {
		return nil, err
	}
	if serverErr != nil {
		return nil, serverErr
	}

	return results, nil
}

func shapeError(member, expected string) error {
	return &errs.ParseError{Column: -1, Token: member, Expected: expected, Err: errs.ErrShapeMismatch}
}

// syntaxError converts the iterator error, if any. The decoder never reads past
// the end of a document, so io.EOF always means truncated input.
func syntaxError(iter *jsoniter.Iterator) error {
	if iter.Error == nil {
		return nil
	}

	cause := errs.ErrSyntax
	if errors.Is(iter.Error, io.EOF) {
		cause = errs.ErrUnexpectedEOF
	}

	return &errs.ParseError{
		Column:   -1,
		Expected: "JSON document",
		Err:      fmt.Errorf("%w: %s", cause, iter.Error.Error()),
	}
}

func decodeStatement[T any](raw []byte, position int, sink frame.Sink[T], cfg *DecoderConfig) StatementResult[T] {
	res := StatementResult[T]{StatementID: position}
	err := readStatement(raw, &res, sink, cfg)
	if err != nil {
		res.Series = nil
		res.Err = err
		cfg.logger.WithFields(logrus.Fields{"statement": res.StatementID, "error": err}).Debug("statement failed")
	}

	return res
}

func readStatement[T any](raw []byte, res *StatementResult[T], sink frame.Sink[T], cfg *DecoderConfig) error {
	iter := jsonAPI.BorrowIterator(raw)
	defer jsonAPI.ReturnIterator(iter)

	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return shapeError("results", "object")
	}

	var (
		stmtErr string
		failed  bool
	)
	for key := iter.ReadObject(); key != ""; key = iter.ReadObject() {
		switch key {
		case "statement_id":
			if iter.WhatIsNext() != jsoniter.NumberValue {
				return shapeError(key, "number")
			}
			res.StatementID = iter.ReadInt()
		case "error":
			if iter.WhatIsNext() != jsoniter.StringValue {
				return shapeError(key, "string")
			}
			stmtErr, failed = iter.ReadString(), true
		case "series":
			if iter.WhatIsNext() != jsoniter.ArrayValue {
				return shapeError(key, "array")
			}
			for iter.ReadArray() {
				if err := readSeries(iter, res, sink, cfg); err != nil {
					return err
				}
			}
		default:
			iter.Skip()
		}
	}
	if err := syntaxError(iter); err != nil {
		return err
	}
	if failed {
		return &errs.ServerError{Kind: errs.ServerStatement, Statement: res.StatementID, Message: stmtErr}
	}

	return nil
}

type seriesData struct {
	name    string
	tags    map[string]string
	columns []string
	index   []time.Time
	values  [][]value.Value
}

func readSeries[T any](iter *jsoniter.Iterator, res *StatementResult[T], sink frame.Sink[T], cfg *DecoderConfig) error {
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return shapeError("series", "object")
	}

	s := &seriesData{}
	var rows []byte
	for key := iter.ReadObject(); key != ""; key = iter.ReadObject() {
		switch key {
		case "name":
			if iter.WhatIsNext() != jsoniter.StringValue {
				return shapeError(key, "string")
			}
			s.name = iter.ReadString()
		case "tags":
			if err := readTags(iter, s); err != nil {
				return err
			}
		case "columns":
			if iter.WhatIsNext() != jsoniter.ArrayValue {
				return shapeError(key, "array")
			}
			for iter.ReadArray() {
				if iter.WhatIsNext() != jsoniter.StringValue {
					return shapeError(key, "array of strings")
				}
				s.columns = append(s.columns, iter.ReadString())
			}
		case "values":
			// Rows may precede columns in the document.
			rows = iter.SkipAndReturnBytes()
		default:
			iter.Skip()
		}
	}
	if err := syntaxError(iter); err != nil {
		return err
	}
	if len(s.columns) == 0 {
		return shapeError("columns", "at least the index column")
	}

	if rows != nil {
		if err := readRows(rows, s, cfg); err != nil {
			return err
		}
	}
	if len(s.index) == 0 {
		cfg.logger.WithFields(logrus.Fields{"statement": res.StatementID, "series": s.name}).Debug("skipping empty series")
		return nil
	}

	columns := make(frame.Columns, len(s.columns)-1)
	for i := range columns {
		columns[i] = frame.Column{Name: s.columns[i+1], Values: s.values[i]}
		if cfg.promote {
			promote(columns[i].Values)
		}
	}

	table, err := sink.FromTable(s.name, s.index, columns)
	if err != nil {
		return err
	}
	res.Series = append(res.Series, Series[T]{Name: s.name, Tags: s.tags, Columns: s.columns, Table: table})

	return nil
}

func readTags(iter *jsoniter.Iterator, s *seriesData) error {
	if iter.WhatIsNext() == jsoniter.NilValue {
		iter.ReadNil()
		return nil
	}
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return shapeError("tags", "object")
	}

	s.tags = make(map[string]string)
	for key := iter.ReadObject(); key != ""; key = iter.ReadObject() {
		if iter.WhatIsNext() != jsoniter.StringValue {
			return shapeError(key, "string tag value")
		}
		s.tags[key] = iter.ReadString()
	}

	return nil
}

func readRows(raw []byte, s *seriesData, cfg *DecoderConfig) error {
	iter := jsonAPI.BorrowIterator(raw)
	defer jsonAPI.ReturnIterator(iter)

	if iter.WhatIsNext() == jsoniter.NilValue {
		return nil
	}
	if iter.WhatIsNext() != jsoniter.ArrayValue {
		return shapeError("values", "array")
	}

	s.values = make([][]value.Value, len(s.columns)-1)
	for row := 1; iter.ReadArray(); row++ {
		if iter.WhatIsNext() != jsoniter.ArrayValue {
			return &errs.ParseError{Row: row, Column: -1, Expected: "row array", Err: errs.ErrShapeMismatch}
		}

		col := 0
		for iter.ReadArray() {
			if col >= len(s.columns) {
				return &errs.ParseError{Row: row, Column: col, Expected: fmt.Sprintf("%d cells", len(s.columns)), Err: errs.ErrColumnCount}
			}
			if col == 0 {
				ts, err := readIndex(iter, cfg.epoch)
				if err != nil {
					return positioned(err, row, col, s.columns[col])
				}
				s.index = append(s.index, ts)
			} else {
				v, err := readCell(iter, s.columns[col], cfg.defaults)
				if err != nil {
					return positioned(err, row, col, s.columns[col])
				}
				s.values[col-1] = append(s.values[col-1], v)
			}
			col++
		}
		if col != len(s.columns) {
			return &errs.ParseError{Row: row, Column: col, Expected: fmt.Sprintf("%d cells", len(s.columns)), Err: errs.ErrColumnCount}
		}
	}

	return syntaxError(iter)
}

func positioned(err error, row, col int, name string) error {
	var pe *errs.ParseError
	if !errors.As(err, &pe) {
		return &errs.ParseError{Row: row, Column: col, ColumnName: name, Err: err}
	}
	out := *pe
	out.Row, out.Column, out.ColumnName = row, col, name

	return &out
}

func readIndex(iter *jsoniter.Iterator, epoch format.Precision) (time.Time, error) {
	switch iter.WhatIsNext() {
	case jsoniter.StringValue:
		v, err := value.ParseTime(iter.ReadString())
		if err != nil {
			return time.Time{}, err
		}
		t, _ := v.AsTime()

		return t, nil
	case jsoniter.NumberValue:
		lit := string(iter.ReadNumber())
		v, err := value.ParseInteger(lit)
		if err != nil {
			return time.Time{}, err
		}
		n, _ := v.AsInteger()
		unit := int64(epoch.Unit())
		if n > (1<<63-1)/unit || n < (-1<<63)/unit {
			return time.Time{}, &errs.ParseError{Column: -1, Token: lit, Expected: "timestamp in range", Err: errs.ErrOverflow}
		}

		return time.Unix(0, n*unit).UTC(), nil
	default:
		iter.Skip()
		return time.Time{}, &errs.ParseError{Column: -1, Expected: "RFC3339 string or integer epoch", Err: errs.ErrShapeMismatch}
	}
}

func readCell(iter *jsoniter.Iterator, column string, defaults map[string]value.Value) (value.Value, error) {
	switch iter.WhatIsNext() {
	case jsoniter.NumberValue:
		return value.ParseNumber(string(iter.ReadNumber()))
	case jsoniter.StringValue:
		return value.String(iter.ReadString()), nil
	case jsoniter.BoolValue:
		return value.Bool(iter.ReadBool()), nil
	case jsoniter.NilValue:
		iter.ReadNil()
		if v, ok := defaults[column]; ok {
			return v, nil
		}

		return value.Value{}, &errs.ParseError{Column: -1, Token: "null", Expected: "value or declared default", Err: errs.ErrNullValue}
	default:
		iter.Skip()
		return value.Value{}, &errs.ParseError{Column: -1, Expected: "scalar cell", Err: errs.ErrShapeMismatch}
	}
}

// promote converts Integer values to Float when the column also holds a Float.
func promote(values []value.Value) {
	hasFloat := false
	for _, v := range values {
		switch v.Kind() {
		case value.KindFloat:
			hasFloat = true
		case value.KindInteger:
		default:
			return
		}
	}
	if !hasFloat {
		return
	}
	for i, v := range values {
		if n, ok := v.AsInteger(); ok {
			values[i] = value.Float(float64(n))
		}
	}
}

// ByTag indexes the series of one statement by the value of tag, as produced by a
// GROUP BY on that tag.
//
// Returns:
//   - map[string]T: Tables keyed by tag value
//   - error: The statement error, errs.ErrMissingTag when a series lacks the tag,
//     or errs.ErrDuplicateTag when two series share a value
func ByTag[T any](result StatementResult[T], tag string) (map[string]T, error) {
	if result.Err != nil {
		return nil, result.Err
	}

	out := make(map[string]T, len(result.Series))
	for _, s := range result.Series {
		v, ok := s.Tags[tag]
		if !ok {
			return nil, fmt.Errorf("%w: series %q has no tag %q", errs.ErrMissingTag, s.Name, tag)
		}
		if _, dup := out[v]; dup {
			return nil, fmt.Errorf("%w: %s=%s", errs.ErrDuplicateTag, tag, v)
		}
		out[v] = s.Table
	}

	return out, nil
}
