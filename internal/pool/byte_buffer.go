// Package pool provides reusable byte buffers for segment encoding.
package pool

import "sync"

const (
	// SegmentBufferDefaultSize is the default capacity of buffers obtained
	// from the pool, sized for a typical per-column block.
	SegmentBufferDefaultSize = 1024 * 16
	// SegmentBufferMaxThreshold is the largest buffer the pool retains;
	// bigger buffers are released to the GC to bound steady-state memory.
	SegmentBufferMaxThreshold = 1024 * 256
)

// ByteBuffer is an append-oriented byte slice with explicit growth control.
type ByteBuffer struct {
	// B is the underlying byte slice.
	B []byte
}

// NewByteBuffer creates a ByteBuffer with the given initial capacity.
func NewByteBuffer(capacity int) *ByteBuffer {
	return &ByteBuffer{B: make([]byte, 0, capacity)}
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte { return bb.B }

// Len returns the number of bytes written.
func (bb *ByteBuffer) Len() int { return len(bb.B) }

// Cap returns the buffer capacity.
func (bb *ByteBuffer) Cap() int { return cap(bb.B) }

// Reset empties the buffer, retaining its capacity.
func (bb *ByteBuffer) Reset() { bb.B = bb.B[:0] }

// MustWrite appends data, growing as needed.
func (bb *ByteBuffer) MustWrite(data []byte) { bb.B = append(bb.B, data...) }

// ExtendOrGrow lengthens the buffer by n bytes, growing capacity first when
// necessary, and returns the index where the extension starts.
func (bb *ByteBuffer) ExtendOrGrow(n int) int {
	start := len(bb.B)
	if cap(bb.B)-start < n {
		bb.Grow(n)
	}
	bb.B = bb.B[:start+n]

	return start
}

// Grow ensures the buffer can hold n more bytes without reallocating.
//
// Small buffers grow by SegmentBufferDefaultSize to minimize reallocations;
// larger buffers grow by 25% of current capacity.
func (bb *ByteBuffer) Grow(n int) {
	curLen := len(bb.B)
	if cap(bb.B)-curLen >= n {
		return
	}

	grow := SegmentBufferDefaultSize
	if cap(bb.B) >= 2*SegmentBufferDefaultSize {
		grow = cap(bb.B) / 4
	}
	if grow < n {
		grow = n
	}

	next := make([]byte, curLen, cap(bb.B)+grow)
	copy(next, bb.B)
	bb.B = next
}

var segmentBufferPool = sync.Pool{
	New: func() any {
		return NewByteBuffer(SegmentBufferDefaultSize)
	},
}

// GetSegmentBuffer obtains a reset buffer from the pool.
func GetSegmentBuffer() *ByteBuffer {
	bb, ok := segmentBufferPool.Get().(*ByteBuffer)
	if !ok {
		return NewByteBuffer(SegmentBufferDefaultSize)
	}
	bb.Reset()

	return bb
}

// PutSegmentBuffer returns a buffer to the pool. Oversized buffers are
// dropped so a single large segment does not pin memory forever.
func PutSegmentBuffer(bb *ByteBuffer) {
	if bb == nil || cap(bb.B) > SegmentBufferMaxThreshold {
		return
	}
	segmentBufferPool.Put(bb)
}
