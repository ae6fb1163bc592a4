package compress

import (
	"fmt"

	"github.com/arloliu/influxwire/errs"
	"github.com/arloliu/influxwire/format"
)

// Compressor compresses a complete request body, typically a line-protocol batch.
type Compressor interface {
	// Compress compresses data and returns the result.
	//
	// Memory management:
	//   - Returned slice is owned by the caller, except for the no-op codec which
	//     returns data itself
	//   - Input slice is not modified
	Compress(data []byte) ([]byte, error)
}

// Decompressor restores a complete body compressed by the matching Compressor,
// typically a query response received with a Content-Encoding header.
//
// Example:
//
//	codec, _ := compress.GetCodec(format.CompressionGzip)
//	body, err := codec.Decompress(raw)
//	if err != nil {
//	    return fmt.Errorf("decompress response: %w", err)
//	}
type Decompressor interface {
	// Decompress returns the original bytes, or an error when data is corrupted or
	// was produced by a different algorithm.
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions and names its algorithm.
type Codec interface {
	Compressor
	Decompressor

	// Type returns the compression algorithm implemented by the codec.
	Type() format.CompressionType
}

// CompressionStats describes one compression operation.
type CompressionStats struct {
	// Algorithm identifies the compression algorithm used
	Algorithm format.CompressionType

	// OriginalSize is the size of input data before compression
	OriginalSize int64

	// CompressedSize is the size of data after compression
	CompressedSize int64
}

// CompressionRatio returns compressed size / original size, or 0 for empty input.
func (s CompressionStats) CompressionRatio() float64 {
	if s.OriginalSize == 0 {
		return 0.0
	}

	return float64(s.CompressedSize) / float64(s.OriginalSize)
}

// SpaceSavings returns the space saved as a percentage (0-100).
func (s CompressionStats) SpaceSavings() float64 {
	return (1.0 - s.CompressionRatio()) * 100.0
}

// Measure compresses data with codec and reports its statistics alongside the
// compressed bytes.
func Measure(codec Codec, data []byte) ([]byte, CompressionStats, error) {
	out, err := codec.Compress(data)
	if err != nil {
		return nil, CompressionStats{}, err
	}

	return out, CompressionStats{
		Algorithm:      codec.Type(),
		OriginalSize:   int64(len(data)),
		CompressedSize: int64(len(out)),
	}, nil
}

// CreateCodec is a factory function that creates a Codec based on the specified compression type.
//
// Parameters:
//   - compressionType: Type of compression (None, Gzip, Zstd, S2, or LZ4)
//   - target: Description of target usage (for error messages)
//
// Returns:
//   - Codec: Codec instance for the specified type
//   - error: errs.ErrInvalidCodec for unknown types
func CreateCodec(compressionType format.CompressionType, target string) (Codec, error) {
	switch compressionType {
	case format.CompressionNone:
		return NewNoOpCompressor(), nil
	case format.CompressionGzip:
		return NewGzipCompressor(), nil
	case format.CompressionZstd:
		return NewZstdCompressor(), nil
	case format.CompressionS2:
		return NewS2Compressor(), nil
	case format.CompressionLZ4:
		return NewLZ4Compressor(), nil
	default:
		return nil, fmt.Errorf("%w: %s %s", errs.ErrInvalidCodec, target, compressionType)
	}
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionNone: NewNoOpCompressor(),
	format.CompressionGzip: NewGzipCompressor(),
	format.CompressionZstd: NewZstdCompressor(),
	format.CompressionS2:   NewS2Compressor(),
	format.CompressionLZ4:  NewLZ4Compressor(),
}

// GetCodec retrieves a built-in Codec for the specified compression type.
func GetCodec(compressionType format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("%w: %s", errs.ErrInvalidCodec, compressionType)
}

// ForContentEncoding returns the built-in Codec for an HTTP Content-Encoding token.
func ForContentEncoding(token string) (Codec, error) {
	ct, err := format.ParseContentEncoding(token)
	if err != nil {
		return nil, err
	}

	return GetCodec(ct)
}
