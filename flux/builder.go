// Package flux builds Flux pipelines and decodes the annotated-CSV responses of
// the InfluxDB 2.x query endpoint.
//
// Building a query:
//
//	q, err := flux.From("telegraf/autogen").
//		RangeStart(flux.Relative(flux.NewDuration(-15, flux.Minute))).
//		FilterMeasurement("cpu").
//		FilterField("usage_system").
//		FilterTag("cpu", "cpu-total").
//		Build()
//
// renders
//
//	from(bucket: "telegraf/autogen")
//	  |> range(start: -15m)
//	  |> filter(fn: (r) =>
//	    r._measurement == "cpu" and
//	    r._field == "usage_system" and
//	    r.cpu == "cpu-total"
//	  )
//	  |> yield()
//
// Decoding a response into any table type with a frame.Sink:
//
//	res, err := flux.DecodeCSV(body, frame.FrameSink{})
//	for _, tbl := range res.Tables {
//		_ = tbl.Table
//	}
//	for _, err := range res.Errors {
//		// dropped tables and server error rows
//	}
package flux

import (
	"strconv"
	"strings"

	"github.com/arloliu/influxwire/errs"
)

type stage struct {
	name string
	args string
}

// Builder accumulates the stages of a Flux pipeline. A Builder is consumed by
// Build.
//
// The pipeline renders in a fixed order: from, range, the equality filter, raw
// filters in call order, the remaining stages in call order, then yield.
type Builder struct {
	bucket     string
	start      Bound
	stop       Bound
	predicates []string
	filters    []string
	stages     []stage
	err        error
	consumed   bool
}

// From starts a pipeline reading bucket.
func From(bucket string) *Builder {
	return &Builder{bucket: bucket}
}

func (b *Builder) fail(key string, err error) *Builder {
	if b.err == nil {
		b.err = &errs.EncodingError{Line: -1, Key: key, Err: err}
	}

	return b
}

// Range sets both range bounds.
func (b *Builder) Range(start, stop Bound) *Builder {
	return b.RangeStart(start).RangeStop(stop)
}

// RangeStart sets the inclusive lower bound. It is required.
func (b *Builder) RangeStart(start Bound) *Builder {
	b.start = start
	return b
}

// RangeStop sets the exclusive upper bound. Without it the range ends now.
func (b *Builder) RangeStop(stop Bound) *Builder {
	b.stop = stop
	return b
}

// Filter adds a filter stage with a raw predicate over r. The predicate is
// inserted as is, one line per source line.
func (b *Builder) Filter(predicate string) *Builder {
	if strings.TrimSpace(predicate) == "" {
		return b.fail("filter", errs.ErrInvalidValue)
	}
	b.filters = append(b.filters, predicate)

	return b
}

// FilterMeasurement keeps rows of measurement m.
func (b *Builder) FilterMeasurement(m string) *Builder {
	return b.equal("_measurement", m)
}

// FilterField keeps rows of field f.
func (b *Builder) FilterField(f string) *Builder {
	return b.equal("_field", f)
}

// FilterTag keeps rows whose tag key equals val.
func (b *Builder) FilterTag(key, val string) *Builder {
	if key == "" {
		return b.fail(key, errs.ErrEmptyKey)
	}

	return b.equal(key, val)
}

func (b *Builder) equal(column, val string) *Builder {
	b.predicates = append(b.predicates, Column(column)+" == "+QuoteString(val))
	return b
}

// Window groups rows into windows of length every. Window(Infinite) merges the
// windows back into one table per series.
func (b *Builder) Window(every Duration) *Builder {
	if !every.IsInfinite() {
		if err := checkEvery(every); err != nil {
			return b.fail("every", err)
		}
	}
	b.stages = append(b.stages, stage{name: "window", args: "every: " + every.String()})

	return b
}

// Aggregate applies the aggregate or selector function fn, such as mean or max,
// to every table.
func (b *Builder) Aggregate(fn string) *Builder {
	if !isIdent(fn) {
		return b.fail(fn, errs.ErrInvalidCharacter)
	}
	b.stages = append(b.stages, stage{name: fn})

	return b
}

// Mean is Aggregate("mean").
func (b *Builder) Mean() *Builder {
	return b.Aggregate("mean")
}

// Duplicate copies column into a new column named as.
func (b *Builder) Duplicate(column, as string) *Builder {
	if column == "" || as == "" {
		return b.fail("duplicate", errs.ErrEmptyKey)
	}
	b.stages = append(b.stages, stage{
		name: "duplicate",
		args: "column: " + QuoteString(column) + ", as: " + QuoteString(as),
	})

	return b
}

// AggregateWindow windows rows by every and applies fn to each window.
func (b *Builder) AggregateWindow(every Duration, fn string) *Builder {
	if err := checkEvery(every); err != nil {
		return b.fail("every", err)
	}
	if !isIdent(fn) {
		return b.fail(fn, errs.ErrInvalidCharacter)
	}
	b.stages = append(b.stages, stage{
		name: "aggregateWindow",
		args: "every: " + every.String() + ", fn: " + fn,
	})

	return b
}

// Limit keeps the first n rows of every table.
func (b *Builder) Limit(n int) *Builder {
	if n <= 0 {
		return b.fail("limit", errs.ErrInvalidValue)
	}
	b.stages = append(b.stages, stage{name: "limit", args: "n: " + strconv.Itoa(n)})

	return b
}

func checkEvery(every Duration) error {
	if every.IsInfinite() || every.IsZero() || every.Negative() || !every.valid() {
		return errs.ErrInvalidDuration
	}

	return nil
}

// Build renders the pipeline.
//
// Returns:
//   - *Query: The rendered query
//   - error: *errs.EncodingError for an empty bucket, a missing or invalid range
//     or an invalid stage, errs.ErrBuilderConsumed on reuse
func (b *Builder) Build() (*Query, error) {
	if b.consumed {
		return nil, errs.ErrBuilderConsumed
	}
	b.consumed = true

	if b.err != nil {
		return nil, b.err
	}
	if b.bucket == "" {
		return nil, &errs.EncodingError{Line: -1, Err: errs.ErrEmptyBucket}
	}
	if err := b.start.validate(); err != nil {
		return nil, &errs.EncodingError{Line: -1, Key: "start", Err: err}
	}
	if !b.stop.IsZero() {
		if err := b.stop.validate(); err != nil {
			return nil, &errs.EncodingError{Line: -1, Key: "stop", Err: err}
		}
	}

	var sb strings.Builder
	sb.WriteString("from(bucket: ")
	sb.WriteString(QuoteString(b.bucket))
	sb.WriteString(")\n")

	sb.WriteString("  |> range(start: ")
	sb.WriteString(b.start.String())
	if !b.stop.IsZero() {
		sb.WriteString(", stop: ")
		sb.WriteString(b.stop.String())
	}
	sb.WriteString(")\n")

	if len(b.predicates) > 0 {
		writeFilter(&sb, strings.Join(b.predicates, " and\n"))
	}
	for _, f := range b.filters {
		writeFilter(&sb, f)
	}

	for _, s := range b.stages {
		sb.WriteString("  |> ")
		sb.WriteString(s.name)
		sb.WriteByte('(')
		sb.WriteString(s.args)
		sb.WriteString(")\n")
	}
	sb.WriteString("  |> yield()")

	return &Query{text: sb.String(), bucket: b.bucket}, nil
}

func writeFilter(sb *strings.Builder, predicate string) {
	sb.WriteString("  |> filter(fn: (r) =>\n")
	for _, line := range strings.Split(predicate, "\n") {
		line = strings.TrimRight(strings.TrimLeft(line, " \t"), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		sb.WriteString("    ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString("  )\n")
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}

	return true
}

var keywords = map[string]struct{}{
	"and": {}, "builtin": {}, "else": {}, "empty": {}, "exists": {}, "if": {}, "import": {},
	"in": {}, "not": {}, "option": {}, "or": {}, "package": {}, "return": {}, "testing": {},
	"then": {},
}

// Column renders a member expression of the row r: r.name for identifiers and
// r["name"] for keywords and other names.
func Column(name string) string {
	if _, reserved := keywords[name]; isIdent(name) && !reserved {
		return "r." + name
	}

	return "r[" + QuoteString(name) + "]"
}

// QuoteString renders a double-quoted Flux string literal. Backslashes, quotes,
// line breaks and the interpolation opener ${ are escaped.
func QuoteString(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\', '"':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case '$':
			if i+1 < len(s) && s[i+1] == '{' {
				sb.WriteByte('\\')
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')

	return sb.String()
}
