package lineprotocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arloliu/influxwire/errs"
	"github.com/arloliu/influxwire/format"
	"github.com/arloliu/influxwire/internal/logging"
	"github.com/arloliu/influxwire/internal/options"
	"github.com/arloliu/influxwire/value"
)

// DecoderConfig holds the settings of Decode and DecodeBatch.
type DecoderConfig struct {
	precision format.Precision
	logger    logrus.FieldLogger
}

// DecoderOption is a functional option for configuring line decoding.
type DecoderOption = options.Option[*DecoderConfig]

// WithDecodePrecision sets the unit of timestamps in the decoded text.
// Default is nanoseconds.
func WithDecodePrecision(p format.Precision) DecoderOption {
	return options.Named("precision", func(c *DecoderConfig) error {
		if !p.Valid() {
			return errs.ErrInvalidPrecision
		}
		c.precision = p

		return nil
	})
}

// WithLogger sets the logger that receives skipped lines during DecodeBatch.
func WithLogger(l logrus.FieldLogger) DecoderOption {
	return options.NoError(func(c *DecoderConfig) {
		c.logger = logging.OrDiscard(l)
	})
}

func newDecoderConfig(opts []DecoderOption) (*DecoderConfig, error) {
	cfg := &DecoderConfig{
		precision: format.PrecisionNanosecond,
		logger:    logging.Discard(),
	}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Result is the outcome of decoding one line of a batch.
type Result struct {
	// Row is the one-based line number inside the payload.
	Row  int
	Line *Line
	Err  error
}

// Decode parses a single line. Leading whitespace and a trailing carriage return
// are ignored.
//
// Returns:
//   - *Line: The decoded line
//   - error: *errs.ParseError naming the offending token and its byte column
func Decode(text string, opts ...DecoderOption) (*Line, error) {
	cfg, err := newDecoderConfig(opts)
	if err != nil {
		return nil, err
	}

	return decodeLine(text, 1, cfg.precision)
}

// DecodeBatch parses a newline-delimited payload. Blank lines and lines starting
// with '#' are skipped. Every other line produces a Result, so a malformed line
// never prevents decoding of the next one. Newlines inside quoted string field
// values belong to the line; such a line reports the row it starts on.
func DecodeBatch(payload []byte, opts ...DecoderOption) ([]Result, error) {
	cfg, err := newDecoderConfig(opts)
	if err != nil {
		return nil, err
	}

	text := string(payload)
	results := make([]Result, 0, strings.Count(text, "\n")+1)
	next := 1
	for len(text) > 0 {
		row := next
		var raw string
		raw, text = splitLine(text)
		next += strings.Count(raw, "\n") + 1

		trimmed := strings.TrimLeft(strings.TrimRight(raw, "\r"), " \t")
		if trimmed == "" || trimmed[0] == '#' {
			continue
		}

		line, err := decodeLine(raw, row, cfg.precision)
		if err != nil {
			cfg.logger.WithFields(logrus.Fields{"row": row, "error": err}).Debug("skipping malformed line")
		}
		results = append(results, Result{Row: row, Line: line, Err: err})
	}

	return results, nil
}

// splitLine cuts the first line off text. A newline ends the line unless it sits
// inside a quoted field value. When a quote is never closed the line ends at the
// first newline after it, leaving the rest of the payload to the next lines.
func splitLine(text string) (string, string) {
	fields, quoted, afterEq := false, false, false
	open := -1
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case quoted:
			switch c {
			case '\\':
				if i+1 < len(text) && (text[i+1] == '"' || text[i+1] == '\\') {
					i++
				}
			case '"':
				quoted = false
			}
		case c == '\n':
			return text[:i], text[i+1:]
		case c == '\\' && i+1 < len(text) && isSpecial(text[i+1], keyEscapes):
			i++
			afterEq = false
		case c == ' ':
			fields = true
			afterEq = false
		case fields && c == '"' && afterEq:
			quoted = true
			open = i
		default:
			afterEq = fields && c == '='
		}
	}
	if quoted {
		if i := strings.IndexByte(text[open:], '\n'); i >= 0 {
			return text[:open+i], text[open+i+1:]
		}
	}

	return text, ""
}

type lineParser struct {
	s   string
	pos int
	row int
}

func (p *lineParser) fail(token, expected string, err error) error {
	return &errs.ParseError{Row: p.row, Column: p.pos, Token: token, Expected: expected, Err: err}
}

// scan advances to the first unescaped byte in stops, or the end of input.
// A backslash escapes only the bytes in specials; any other backslash is literal.
func (p *lineParser) scan(stops, specials string) string {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c == '\\' && p.pos+1 < len(p.s) && isSpecial(p.s[p.pos+1], specials) {
			p.pos += 2
			continue
		}
		if isSpecial(c, stops) {
			break
		}
		p.pos++
	}

	return p.s[start:p.pos]
}

// ident scans an identifier like scan and rejects a backslash left dangling at the
// end of the line, which no escape sequence can produce.
func (p *lineParser) ident(stops, specials, expected string) (string, error) {
	start := p.pos
	raw := p.scan(stops, specials)
	if p.pos == len(p.s) && strings.HasSuffix(raw, `\`) {
		p.pos = start
		return "", p.fail(raw, expected, fmt.Errorf("%w: dangling backslash", errs.ErrInvalidEscape))
	}

	return raw, nil
}

func (p *lineParser) peek() byte {
	if p.pos < len(p.s) {
		return p.s[p.pos]
	}

	return 0
}

func unescape(s, specials string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && isSpecial(s[i+1], specials) {
			i++
		}
		sb.WriteByte(s[i])
	}

	return sb.String()
}

func decodeLine(text string, row int, precision format.Precision) (*Line, error) {
	text = strings.TrimRight(text, "\r")
	p := &lineParser{s: text, row: row}
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}

	line := &Line{}

	start := p.pos
	rawMeasurement, err := p.ident(measurementEscapes, measurementEscapes, "measurement")
	if err != nil {
		return nil, err
	}
	line.measurement = unescape(rawMeasurement, measurementEscapes)
	if line.measurement == "" {
		p.pos = start
		return nil, p.fail(p.s[start:], "measurement", errs.ErrEmptyMeasurement)
	}

	for p.peek() == ',' {
		p.pos++
		if err := p.parseTag(line); err != nil {
			return nil, err
		}
	}

	if p.peek() != ' ' {
		return nil, p.fail(p.s[p.pos:], "field set", errs.ErrMissingFields)
	}
	p.pos++

	for {
		if err := p.parseField(line); err != nil {
			return nil, err
		}
		if p.peek() != ',' {
			break
		}
		p.pos++
	}

	if p.pos == len(p.s) {
		return line, nil
	}

	// timestamp
	for p.peek() == ' ' {
		p.pos++
	}
	if p.pos == len(p.s) {
		return line, nil
	}
	tsStart := p.pos
	token := p.scan(" ", "")
	ns, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		p.pos = tsStart
		cause := errs.ErrSyntax
		if errors.Is(err, strconv.ErrRange) {
			cause = errs.ErrOverflow
		}

		return nil, p.fail(token, "integer timestamp", cause)
	}
	unit := int64(precision.Unit())
	if ns > 0 && ns > (1<<63-1)/unit || ns < 0 && ns < (-1<<63)/unit {
		p.pos = tsStart
		return nil, p.fail(token, "timestamp in range", errs.ErrOverflow)
	}
	line.ts = time.Unix(0, ns*unit).UTC()
	line.hasTime = true

	for p.peek() == ' ' {
		p.pos++
	}
	if p.pos != len(p.s) {
		return nil, p.fail(p.s[p.pos:], "end of line", errs.ErrTrailingData)
	}

	return line, nil
}

func (p *lineParser) parseTag(line *Line) error {
	start := p.pos
	key, err := p.ident(keyEscapes, keyEscapes, "tag key")
	if err != nil {
		return err
	}
	if key == "" {
		p.pos = start
		return p.fail(p.s[start:], "tag key", errs.ErrEmptyKey)
	}
	if p.peek() != '=' {
		return p.fail(key, "'=' after tag key", errs.ErrSyntax)
	}
	p.pos++

	valStart := p.pos
	val, err := p.ident(keyEscapes, keyEscapes, "tag value")
	if err != nil {
		return err
	}
	if val == "" {
		p.pos = valStart
		return p.fail(key, "tag value", errs.ErrEmptyTagValue)
	}
	if p.peek() == '=' {
		return p.fail(val, "',' or ' ' after tag value", errs.ErrSyntax)
	}

	line.tags = append(line.tags, Tag{Key: unescape(key, keyEscapes), Value: unescape(val, keyEscapes)})

	return nil
}

func (p *lineParser) parseField(line *Line) error {
	start := p.pos
	rawKey, err := p.ident(keyEscapes, keyEscapes, "field key")
	if err != nil {
		return err
	}
	if rawKey == "" {
		p.pos = start
		if p.pos == len(p.s) {
			return p.fail("", "field set", errs.ErrMissingFields)
		}

		return p.fail(p.s[start:], "field key", errs.ErrEmptyKey)
	}
	if p.peek() != '=' {
		return p.fail(rawKey, "'=' after field key", errs.ErrSyntax)
	}
	p.pos++
	key := unescape(rawKey, keyEscapes)

	valStart := p.pos
	var token string
	if p.peek() == '"' {
		end, ok := closingQuote(p.s, p.pos)
		if !ok {
			return p.fail(p.s[valStart:], "closing quote", errs.ErrUnterminatedString)
		}
		p.pos = end + 1
		token = p.s[valStart:p.pos]
	} else {
		token = p.scan(", ", "")
	}

	v, err := value.ParseLineProtocol(token)
	if err != nil {
		var pe *errs.ParseError
		if errors.As(err, &pe) {
			positioned := *pe
			positioned.Row = p.row
			positioned.Column = valStart
			positioned.ColumnName = key

			return &positioned
		}

		return err
	}

	for i := range line.fields {
		if line.fields[i].Key == key {
			line.fields[i].Value = v
			return nil
		}
	}
	line.fields = append(line.fields, Field{Key: key, Value: v})

	return nil
}

// closingQuote returns the index of the quote that closes the string starting at
// s[open], honoring the \" and \\ escapes.
func closingQuote(s string, open int) (int, bool) {
	for i := open + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
				i++
			}
		case '"':
			return i, true
		}
	}

	return 0, false
}
