package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/ndts/errs"
)

func TestBitWriter_ReadBack_Identity(t *testing.T) {
	type chunk struct {
		value uint64
		bits  int
	}
	chunks := []chunk{
		{1, 1},
		{0, 1},
		{0x2A, 6},
		{0xFFFF, 16},
		{0xDEADBEEFCAFEBABE, 64},
		{5, 3},
		{0x1FFFFF, 21},
	}

	w := NewBitWriter(64)
	for _, c := range chunks {
		require.NoError(t, w.WriteBits(c.value, c.bits))
	}

	data, err := w.Bytes()
	require.NoError(t, err)

	r := NewBitReader(data)
	for i, c := range chunks {
		got, ok := r.ReadBits(c.bits)
		require.True(t, ok, "chunk %d", i)
		require.Equal(t, c.value, got, "chunk %d", i)
	}
}

func TestBitWriter_SingleBits(t *testing.T) {
	w := NewBitWriter(8)
	pattern := []uint64{1, 0, 1, 1, 0, 0, 1, 0, 1}
	for _, b := range pattern {
		require.NoError(t, w.WriteBit(b))
	}

	data, err := w.Bytes()
	require.NoError(t, err)
	require.Len(t, data, 2) // 9 bits pad to 2 bytes

	r := NewBitReader(data)
	for i, want := range pattern {
		got, ok := r.ReadBit()
		require.True(t, ok)
		require.Equal(t, want, got, "bit %d", i)
	}
}

func TestBitWriter_CapacityExceeded(t *testing.T) {
	w := NewBitWriter(2)
	require.NoError(t, w.WriteBits(0xABCD, 16))

	err := w.WriteBits(1, 1)
	if err == nil {
		_, err = w.Bytes()
	}
	require.Error(t, err)
	require.Equal(t, errs.KindBufferFull, errs.KindOf(err))
}

func TestBitReader_Exhausted(t *testing.T) {
	r := NewBitReader([]byte{0xFF})
	_, ok := r.ReadBits(8)
	require.True(t, ok)

	_, ok = r.ReadBit()
	require.False(t, ok)

	_, ok = r.ReadBits(4)
	require.False(t, ok)
}

func TestCountTrailingZeros(t *testing.T) {
	require.Equal(t, 64, CountTrailingZeros(0))
	require.Equal(t, 0, CountTrailingZeros(1))
	require.Equal(t, 3, CountTrailingZeros(8))
	require.Equal(t, 63, CountTrailingZeros(1<<63))
}

func TestZigZag_Identity(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 63, -64, 1 << 40, -(1 << 40), 1<<63 - 1, -1 << 63} {
		require.Equal(t, v, UnZigZag(ZigZag(v)))
	}
}

func TestUvarint_Truncated(t *testing.T) {
	buf, ok := AppendUvarint(make([]byte, 0, 16), 1<<40)
	require.True(t, ok)

	_, _, ok = Uvarint(buf[:2], 0)
	require.False(t, ok)

	_, _, ok = Uvarint(nil, 0)
	require.False(t, ok)
}
