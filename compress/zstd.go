package compress

import "github.com/arloliu/influxwire/format"

// ZstdCompressor provides Zstandard compression for large write batches and
// query responses.
//
// The implementation is selected at build time: pure Go (klauspost/compress) by
// default, the cgo binding with the gozstd build tag.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd codec with default settings.
//
// Example:
//
//	codec := NewZstdCompressor()
//	compressed, err := codec.Compress(payload)
//	if err != nil {
//		return err
//	}
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}

// Type returns format.CompressionZstd.
func (c ZstdCompressor) Type() format.CompressionType {
	return format.CompressionZstd
}
