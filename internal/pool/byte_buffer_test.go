package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteBuffer_ExtendOrGrow(t *testing.T) {
	bb := NewByteBuffer(4)

	start := bb.ExtendOrGrow(8)
	require.Equal(t, 0, start)
	require.Equal(t, 8, bb.Len())

	start = bb.ExtendOrGrow(3)
	require.Equal(t, 8, start)
	require.Equal(t, 11, bb.Len())
}

func TestByteBuffer_GrowKeepsPrefix(t *testing.T) {
	bb := NewByteBuffer(2)
	bb.MustWrite([]byte{1, 2, 3})

	bb.Grow(1 << 16)
	require.GreaterOrEqual(t, bb.Cap(), 1<<16)
	require.Equal(t, []byte{1, 2, 3}, bb.Bytes())
}

func TestPool_RoundTrip(t *testing.T) {
	bb := GetSegmentBuffer()
	bb.MustWrite([]byte("payload"))
	PutSegmentBuffer(bb)

	again := GetSegmentBuffer()
	require.Equal(t, 0, again.Len())
	PutSegmentBuffer(again)

	// Oversized buffers are dropped, not pooled.
	big := NewByteBuffer(SegmentBufferMaxThreshold + 1)
	PutSegmentBuffer(big)
}
