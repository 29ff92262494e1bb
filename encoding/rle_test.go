package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/ndts/errs"
)

func TestRLEEncoder_LongRuns(t *testing.T) {
	values := make([]int64, 0, 300)
	for i := 0; i < 100; i++ {
		values = append(values, 7)
	}
	for i := 0; i < 150; i++ {
		values = append(values, -3)
	}
	for i := 0; i < 50; i++ {
		values = append(values, 0)
	}

	encoder := NewRLEEncoder(64)
	require.NoError(t, encoder.WriteSlice(values))
	require.Equal(t, 300, encoder.Len())

	data, err := encoder.Bytes()
	require.NoError(t, err)
	require.Less(t, len(data), 16)

	decoded, err := NewRLEDecoder().Decode(data, 300)
	require.NoError(t, err)
	require.Equal(t, values, decoded)
}

func TestRLEEncoder_NoRuns(t *testing.T) {
	values := []int64{1, 2, 3, 4, 5}

	encoder := NewRLEEncoder(64)
	require.NoError(t, encoder.WriteSlice(values))

	data, err := encoder.Bytes()
	require.NoError(t, err)

	decoded, err := NewRLEDecoder().Decode(data, len(values))
	require.NoError(t, err)
	require.Equal(t, values, decoded)
}

func TestRLEEncoder_BufferFull(t *testing.T) {
	encoder := NewRLEEncoder(2)
	// Alternating values force a pair flush per value.
	var err error
	for i := int64(0); i < 10 && err == nil; i++ {
		err = encoder.Write(i * 1000)
	}
	if err == nil {
		_, err = encoder.Bytes()
	}
	require.Error(t, err)
	require.Equal(t, errs.KindBufferFull, errs.KindOf(err))
}

func TestRLEDecoder_CountMismatch(t *testing.T) {
	encoder := NewRLEEncoder(64)
	require.NoError(t, encoder.WriteSlice([]int64{5, 5, 5}))

	data, err := encoder.Bytes()
	require.NoError(t, err)

	// Declaring fewer values than the run holds is inconsistent.
	_, err = NewRLEDecoder().Decode(data, 2)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrCorrupt)

	// Declaring more values than encoded runs out of pairs.
	_, err = NewRLEDecoder().Decode(data, 4)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrCorrupt)
}

func TestRLEEncoder_Empty(t *testing.T) {
	encoder := NewRLEEncoder(16)
	data, err := encoder.Bytes()
	require.NoError(t, err)
	require.Empty(t, data)

	decoded, err := NewRLEDecoder().Decode(nil, 0)
	require.NoError(t, err)
	require.Empty(t, decoded)
}
