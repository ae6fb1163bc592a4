package lineprotocol

import (
	"errors"
	"strconv"

	"github.com/arloliu/influxwire/errs"
	"github.com/arloliu/influxwire/format"
	"github.com/arloliu/influxwire/internal/options"
	"github.com/arloliu/influxwire/internal/pool"
)

// EncoderConfig holds the settings shared by Encode, EncodeBatch and NewPayload.
type EncoderConfig struct {
	precision   format.Precision
	compression format.CompressionType
}

func newEncoderConfig(opts []EncoderOption) (*EncoderConfig, error) {
	cfg := &EncoderConfig{
		precision:   format.PrecisionNanosecond,
		compression: format.CompressionNone,
	}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EncoderOption is a functional option for configuring line encoding.
type EncoderOption = options.Option[*EncoderConfig]

// WithPrecision sets the unit of rendered timestamps. Timestamps are truncated
// toward zero to the unit. Default is nanoseconds.
func WithPrecision(p format.Precision) EncoderOption {
	return options.Named("precision", func(c *EncoderConfig) error {
		if !p.Valid() {
			return errs.ErrInvalidPrecision
		}
		c.precision = p

		return nil
	})
}

// WithCompression sets the body compression used by NewPayload. Encode and
// EncodeBatch ignore it. Default is no compression.
func WithCompression(ct format.CompressionType) EncoderOption {
	return options.Named("compression", func(c *EncoderConfig) error {
		if ct.ContentEncoding() == "" && ct != format.CompressionNone {
			return errs.ErrInvalidCodec
		}
		c.compression = ct

		return nil
	})
}

// Encode renders one line without a trailing newline.
//
// Parameters:
//   - line: Line to render
//   - opts: Encoder options (precision)
//
// Returns:
//   - []byte: Line-protocol text
//   - error: *errs.EncodingError when the line is invalid
func Encode(line *Line, opts ...EncoderOption) ([]byte, error) {
	cfg, err := newEncoderConfig(opts)
	if err != nil {
		return nil, err
	}

	bb := pool.GetLineBuffer()
	defer pool.PutLineBuffer(bb)

	bb.B, err = AppendLine(bb.B, line, cfg.precision)
	if err != nil {
		return nil, err
	}

	return bb.Clone(), nil
}

// EncodeBatch renders lines, each followed by a newline.
//
// The batch fails atomically: when any line is invalid no output is returned and
// the error is an *errs.EncodingError whose Line field is the index of the first
// invalid line.
func EncodeBatch(lines []*Line, opts ...EncoderOption) ([]byte, error) {
	cfg, err := newEncoderConfig(opts)
	if err != nil {
		return nil, err
	}

	bb := pool.GetBatchBuffer()
	defer pool.PutBatchBuffer(bb)

	if err := appendBatch(bb, lines, cfg.precision); err != nil {
		return nil, err
	}

	return bb.Clone(), nil
}

func appendBatch(bb *pool.ByteBuffer, lines []*Line, precision format.Precision) error {
	for i, line := range lines {
		var err error
		bb.B, err = AppendLine(bb.B, line, precision)
		if err != nil {
			var encErr *errs.EncodingError
			if errors.As(err, &encErr) {
				withLine := *encErr
				withLine.Line = i

				return &withLine
			}

			return &errs.EncodingError{Line: i, Err: err}
		}
		bb.B = append(bb.B, '\n')
	}

	return nil
}

// AppendLine validates line and appends its text form to dst. On error dst is
// returned unchanged.
func AppendLine(dst []byte, line *Line, precision format.Precision) ([]byte, error) {
	if line == nil {
		return dst, &errs.EncodingError{Line: -1, Err: errs.ErrInvalidValue}
	}
	if err := line.Validate(); err != nil {
		return dst, err
	}

	dst = appendEscaped(dst, line.measurement, measurementEscapes)
	for _, t := range line.tags {
		dst = append(dst, ',')
		dst = appendEscaped(dst, t.Key, keyEscapes)
		dst = append(dst, '=')
		dst = appendEscaped(dst, t.Value, keyEscapes)
	}

	dst = append(dst, ' ')
	for i, f := range line.fields {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendEscaped(dst, f.Key, keyEscapes)
		dst = append(dst, '=')
		dst = f.Value.AppendLineProtocol(dst)
	}

	if line.hasTime {
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, line.ts.UnixNano()/int64(precision.Unit()), 10)
	}

	return dst, nil
}

const (
	measurementEscapes = ", "
	keyEscapes         = ",= "
)

func isSpecial(c byte, specials string) bool {
	for i := 0; i < len(specials); i++ {
		if specials[i] == c {
			return true
		}
	}

	return false
}

func appendEscaped(dst []byte, s, specials string) []byte {
	for i := 0; i < len(s); i++ {
		if isSpecial(s[i], specials) {
			dst = append(dst, '\\')
		}
		dst = append(dst, s[i])
	}

	return dst
}
