//go:build gozstd && cgo

package compress

import (
	"fmt"

	"github.com/valyala/gozstd"
)

const zstdDefaultLevel = 3

// Compress compresses data with the reference C implementation.
func (c ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return gozstd.CompressLevel(nil, data, zstdDefaultLevel), nil
}

// Decompress decompresses zstd frames with the reference C implementation.
func (c ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	out, err := gozstd.Decompress(nil, data)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	if len(out) > maxDecodedSize {
		return nil, fmt.Errorf("zstd decompression failed: output exceeds %d bytes", maxDecodedSize)
	}

	return out, nil
}
