package compress

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/arloliu/influxwire/format"
)

// gzipWriterPool pools gzip writers; Reset rebinds a writer to a new destination.
var gzipWriterPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(nil, gzip.DefaultCompression)
		return w
	},
}

var gzipReaderPool sync.Pool

// GzipCompressor produces RFC 1952 gzip streams, the Content-Encoding accepted by
// the write endpoint.
type GzipCompressor struct{}

var _ Codec = (*GzipCompressor)(nil)

// NewGzipCompressor creates a new gzip codec.
func NewGzipCompressor() GzipCompressor {
	return GzipCompressor{}
}

// Type returns format.CompressionGzip.
func (c GzipCompressor) Type() format.CompressionType {
	return format.CompressionGzip
}

// Compress compresses data into a single gzip member.
func (c GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data)/2 + 64)

	w, _ := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)
	w.Reset(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip compression failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip compression failed: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress decompresses a gzip stream, including multi-member streams.
func (c GzipCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var (
		r   *gzip.Reader
		err error
	)
	if pooled, ok := gzipReaderPool.Get().(*gzip.Reader); ok {
		r = pooled
		err = r.Reset(bytes.NewReader(data))
	} else {
		r, err = gzip.NewReader(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("gzip decompression failed: %w", err)
	}
	defer gzipReaderPool.Put(r)

	out, err := io.ReadAll(io.LimitReader(r, maxDecodedSize+1))
	if err != nil {
		return nil, fmt.Errorf("gzip decompression failed: %w", err)
	}
	if len(out) > maxDecodedSize {
		return nil, fmt.Errorf("gzip decompression failed: output exceeds %d bytes", maxDecodedSize)
	}

	return out, nil
}
