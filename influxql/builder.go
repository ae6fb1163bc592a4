// Package influxql builds InfluxQL SELECT queries and decodes the JSON responses
// of the InfluxDB 1.x query endpoint.
//
// Building a query:
//
//	q, err := influxql.NewBuilder("indoor_environment").
//		Fields("temperature", "humidity").
//		Start(time.Date(2021, 3, 7, 21, 0, 0, 0, time.UTC)).
//		Build()
//	// SELECT temperature, humidity FROM indoor_environment WHERE time > '2021-03-07T21:00:00Z'
//
// Decoding a response into any table type with a frame.Sink:
//
//	results, err := influxql.Decode(body, frame.FrameSink{})
//	for _, r := range results {
//		if r.Err != nil {
//			// statement failed; siblings are still decoded
//		}
//		for _, s := range r.Series {
//			_ = s.Table
//		}
//	}
//
// Builders only guarantee well-formed syntax. Identifiers and string literals are
// escaped; whether the measurement or fields exist is up to the server.
package influxql

import (
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/influxwire/errs"
	"github.com/arloliu/influxwire/format"
)

type predicate struct {
	tag   string
	value string
}

// Builder accumulates the clauses of a SELECT statement. A Builder is consumed by
// Build.
type Builder struct {
	measurement     string
	database        string
	retentionPolicy string
	fields          []string
	start, stop     time.Time
	hasStart        bool
	hasStop         bool
	where           []predicate
	groupBy         []string
	limit           int
	epoch           format.Precision
	err             error
	consumed        bool
}

// NewBuilder starts a SELECT statement on measurement.
func NewBuilder(measurement string) *Builder {
	return &Builder{measurement: measurement}
}

func (b *Builder) fail(key string, err error) *Builder {
	if b.err == nil {
		b.err = &errs.EncodingError{Line: -1, Key: key, Err: err}
	}

	return b
}

// Database sets the database qualifying the measurement and sent as the db
// parameter.
func (b *Builder) Database(name string) *Builder {
	b.database = name
	return b
}

// RetentionPolicy sets the retention policy qualifying the measurement.
func (b *Builder) RetentionPolicy(name string) *Builder {
	b.retentionPolicy = name
	return b
}

// Field adds a selected field. Duplicates are ignored. Without fields the
// statement selects *.
func (b *Builder) Field(name string) *Builder {
	if name == "" {
		return b.fail(name, errs.ErrEmptyKey)
	}
	for _, f := range b.fields {
		if f == name {
			return b
		}
	}
	b.fields = append(b.fields, name)

	return b
}

// Fields adds several selected fields in order.
func (b *Builder) Fields(names ...string) *Builder {
	for _, name := range names {
		b.Field(name)
	}

	return b
}

// Start restricts the statement to points strictly after t.
func (b *Builder) Start(t time.Time) *Builder {
	b.start, b.hasStart = t, true
	return b
}

// Stop restricts the statement to points strictly before t.
func (b *Builder) Stop(t time.Time) *Builder {
	b.stop, b.hasStop = t, true
	return b
}

// Where adds a tag equality predicate. Predicates are ANDed in call order after
// the time bounds.
func (b *Builder) Where(tag, val string) *Builder {
	if tag == "" {
		return b.fail(tag, errs.ErrEmptyKey)
	}
	b.where = append(b.where, predicate{tag: tag, value: val})

	return b
}

// GroupBy adds a grouping tag. Duplicates are ignored.
func (b *Builder) GroupBy(tag string) *Builder {
	if tag == "" {
		return b.fail(tag, errs.ErrEmptyKey)
	}
	for _, g := range b.groupBy {
		if g == tag {
			return b
		}
	}
	b.groupBy = append(b.groupBy, tag)

	return b
}

// Limit caps the number of points returned per series. Zero means no limit.
func (b *Builder) Limit(n int) *Builder {
	if n < 0 {
		return b.fail("limit", errs.ErrInvalidValue)
	}
	b.limit = n

	return b
}

// Epoch asks the server for integer timestamps of precision p instead of RFC3339
// strings. Decode the response with WithEpoch(p).
func (b *Builder) Epoch(p format.Precision) *Builder {
	if !p.Valid() {
		return b.fail("epoch", errs.ErrInvalidPrecision)
	}
	b.epoch = p

	return b
}

// Build renders the statement.
//
// Returns:
//   - *Query: The rendered query
//   - error: *errs.EncodingError for an empty measurement or invalid clause,
//     errs.ErrBuilderConsumed on reuse
func (b *Builder) Build() (*Query, error) {
	if b.consumed {
		return nil, errs.ErrBuilderConsumed
	}
	b.consumed = true

	if b.err != nil {
		return nil, b.err
	}
	if b.measurement == "" {
		return nil, &errs.EncodingError{Line: -1, Err: errs.ErrEmptyMeasurement}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(b.fields) == 0 {
		sb.WriteByte('*')
	}
	for i, f := range b.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(QuoteIdent(f))
	}

	sb.WriteString(" FROM ")
	switch {
	case b.database != "":
		sb.WriteString(QuoteIdent(b.database))
		sb.WriteByte('.')
		if b.retentionPolicy != "" {
			sb.WriteString(QuoteIdent(b.retentionPolicy))
		}
		sb.WriteByte('.')
	case b.retentionPolicy != "":
		sb.WriteString(QuoteIdent(b.retentionPolicy))
		sb.WriteByte('.')
	}
	sb.WriteString(QuoteIdent(b.measurement))

	preds := make([]string, 0, len(b.where)+2)
	if b.hasStart {
		preds = append(preds, "time > "+QuoteString(formatTime(b.start)))
	}
	if b.hasStop {
		preds = append(preds, "time < "+QuoteString(formatTime(b.stop)))
	}
	for _, p := range b.where {
		preds = append(preds, QuoteIdent(p.tag)+" = "+QuoteString(p.value))
	}
	if len(preds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(preds, " AND "))
	}

	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		for i, g := range b.groupBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(QuoteIdent(g))
		}
	}

	if b.limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(b.limit))
	}

	return &Query{
		text:            sb.String(),
		database:        b.database,
		retentionPolicy: b.retentionPolicy,
		epoch:           b.epoch,
	}, nil
}

// formatTime renders t in UTC with fractional seconds only when they are non-zero.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
