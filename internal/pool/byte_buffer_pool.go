package pool

import (
	"io"
	"sync"
)

// Default sizes for pooled line-protocol buffers.
const (
	LineBufferDefaultSize   = 256             // 256B, one typical line
	LineBufferMaxThreshold  = 1024 * 16       // 16KiB
	BatchBufferDefaultSize  = 1024 * 64       // 64KiB
	BatchBufferMaxThreshold = 1024 * 1024 * 8 // 8MiB
)

// ByteBuffer is an append-only byte slice wrapper handed out by ByteBufferPool.
type ByteBuffer struct {
	// B is the underlying byte slice.
	B []byte
}

var _ io.Writer = (*ByteBuffer)(nil)

// NewByteBuffer creates a ByteBuffer with the given initial capacity.
func NewByteBuffer(defaultSize int) *ByteBuffer {
	return &ByteBuffer{B: make([]byte, 0, defaultSize)}
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte {
	return bb.B
}

// Reset empties the buffer but keeps its capacity.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// Len returns the length of the buffer.
func (bb *ByteBuffer) Len() int {
	return len(bb.B)
}

// Truncate shrinks the buffer to n bytes. It is used to roll back a partially
// rendered line.
func (bb *ByteBuffer) Truncate(n int) {
	if n < 0 || n > len(bb.B) {
		panic("Truncate: out of range")
	}
	bb.B = bb.B[:n]
}

// Write implements io.Writer and never fails.
func (bb *ByteBuffer) Write(p []byte) (int, error) {
	bb.B = append(bb.B, p...)
	return len(p), nil
}

// WriteString appends s to the buffer.
func (bb *ByteBuffer) WriteString(s string) {
	bb.B = append(bb.B, s...)
}

// WriteByte appends c to the buffer.
func (bb *ByteBuffer) WriteByte(c byte) error {
	bb.B = append(bb.B, c)
	return nil
}

// Clone returns a copy of the buffer contents that stays valid after the buffer
// is returned to its pool.
func (bb *ByteBuffer) Clone() []byte {
	out := make([]byte, len(bb.B))
	copy(out, bb.B)

	return out
}

// ByteBufferPool pools ByteBuffers and drops oversized ones on Put.
type ByteBufferPool struct {
	pool         sync.Pool
	maxThreshold int
}

// NewByteBufferPool creates a pool whose buffers start with defaultSize capacity.
// Buffers grown beyond maxThreshold are not returned to the pool; a maxThreshold
// of zero keeps every buffer.
func NewByteBufferPool(defaultSize, maxThreshold int) *ByteBufferPool {
	return &ByteBufferPool{
		pool: sync.Pool{
			New: func() any {
				return NewByteBuffer(defaultSize)
			},
		},
		maxThreshold: maxThreshold,
	}
}

// Get retrieves a ByteBuffer from the pool.
func (bbp *ByteBufferPool) Get() *ByteBuffer {
	bb, _ := bbp.pool.Get().(*ByteBuffer)
	return bb
}

// Put returns a ByteBuffer to the pool for reuse.
func (bbp *ByteBufferPool) Put(bb *ByteBuffer) {
	if bb == nil {
		return
	}
	if bbp.maxThreshold > 0 && cap(bb.B) > bbp.maxThreshold {
		return
	}

	bb.Reset()
	bbp.pool.Put(bb)
}

var (
	lineDefaultPool  = NewByteBufferPool(LineBufferDefaultSize, LineBufferMaxThreshold)
	batchDefaultPool = NewByteBufferPool(BatchBufferDefaultSize, BatchBufferMaxThreshold)
)

// GetLineBuffer retrieves a buffer sized for a single line.
func GetLineBuffer() *ByteBuffer {
	return lineDefaultPool.Get()
}

// PutLineBuffer returns a buffer obtained from GetLineBuffer.
func PutLineBuffer(bb *ByteBuffer) {
	lineDefaultPool.Put(bb)
}

// GetBatchBuffer retrieves a buffer sized for a batch payload.
func GetBatchBuffer() *ByteBuffer {
	return batchDefaultPool.Get()
}

// PutBatchBuffer returns a buffer obtained from GetBatchBuffer.
func PutBatchBuffer(bb *ByteBuffer) {
	batchDefaultPool.Put(bb)
}
