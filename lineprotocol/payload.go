package lineprotocol

import (
	"net/url"

	"github.com/arloliu/influxwire/compress"
	"github.com/arloliu/influxwire/format"
	"github.com/arloliu/influxwire/internal/pool"
)

// Write endpoint constants used by transports dispatching a Payload.
const (
	WritePath   = "/write"
	ContentType = "text/plain; charset=utf-8"
)

// Payload is a rendered, optionally compressed, batch ready for the write endpoint.
type Payload struct {
	// Body is the request body, compressed when Compression is not CompressionNone.
	Body []byte

	// Lines is the number of lines in the batch.
	Lines int

	// UncompressedSize is the size of the rendered line-protocol text.
	UncompressedSize int

	Compression format.CompressionType
	Precision   format.Precision
}

// NewPayload renders lines with EncodeBatch semantics and compresses the result.
//
// Parameters:
//   - lines: Lines of the batch, rendered in order
//   - opts: Encoder options (WithPrecision, WithCompression)
//
// Returns:
//   - *Payload: The request body and its metadata
//   - error: *errs.EncodingError naming the first invalid line, or a compression error
func NewPayload(lines []*Line, opts ...EncoderOption) (*Payload, error) {
	cfg, err := newEncoderConfig(opts)
	if err != nil {
		return nil, err
	}

	codec, err := compress.GetCodec(cfg.compression)
	if err != nil {
		return nil, err
	}

	bb := pool.GetBatchBuffer()
	defer pool.PutBatchBuffer(bb)

	if err := appendBatch(bb, lines, cfg.precision); err != nil {
		return nil, err
	}

	var body []byte
	if cfg.compression == format.CompressionNone {
		body = bb.Clone()
	} else if body, err = codec.Compress(bb.Bytes()); err != nil {
		return nil, err
	}

	return &Payload{
		Body:             body,
		Lines:            len(lines),
		UncompressedSize: bb.Len(),
		Compression:      cfg.compression,
		Precision:        cfg.precision,
	}, nil
}

// ContentEncoding returns the Content-Encoding header value for Body, or an empty
// string when the body is not compressed.
func (p *Payload) ContentEncoding() string {
	return p.Compression.ContentEncoding()
}

// Values returns the write endpoint query parameters. The retention policy is
// omitted when empty.
func (p *Payload) Values(database, retentionPolicy string) url.Values {
	v := url.Values{}
	v.Set("db", database)
	if retentionPolicy != "" {
		v.Set("rp", retentionPolicy)
	}
	v.Set("precision", p.Precision.String())

	return v
}

// Decompressed returns the line-protocol text of the payload.
func (p *Payload) Decompressed() ([]byte, error) {
	codec, err := compress.GetCodec(p.Compression)
	if err != nil {
		return nil, err
	}

	return codec.Decompress(p.Body)
}
