// Package compress provides the body codecs used on both sides of the wire:
// compressing line-protocol write payloads and decompressing query responses
// that arrive with a Content-Encoding.
//
// # Supported Algorithms
//
//   - None (format.CompressionNone): bodies pass through untouched
//   - Gzip (format.CompressionGzip): the encoding accepted by the database write
//     endpoint and most proxies
//   - Zstd (format.CompressionZstd): best ratio for large batches
//   - S2 (format.CompressionS2): fast block compression
//   - LZ4 (format.CompressionLZ4): LZ4 frame format, fastest decompression
//
// Every codec implements Codec and is safe for concurrent use. Encoders and
// decoders with warm-up cost are pooled with sync.Pool.
//
// # Usage
//
//	codec, err := compress.GetCodec(format.CompressionGzip)
//	if err != nil {
//	    return err
//	}
//	body, err := codec.Compress(payload)
//
// Response bodies are usually resolved from their header:
//
//	codec, err := compress.ForContentEncoding(resp.Header.Get("Content-Encoding"))
//	if err != nil {
//	    return err
//	}
//	raw, err := codec.Decompress(body)
//
// # Build Tags
//
// Zstd uses the pure Go klauspost/compress implementation by default. Building
// with the gozstd tag (and cgo enabled) switches to the cgo binding of the
// reference C library.
package compress
