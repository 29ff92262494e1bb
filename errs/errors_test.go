package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := New(KindCorrupt, "bad block")
	require.Equal(t, KindCorrupt, KindOf(err))
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	require.Equal(t, KindUnknown, KindOf(nil))
}

func TestWrap_PreservesSentinelAndKind(t *testing.T) {
	err := Wrap(KindCorrupt, ErrChecksumMismatch, "segment block 3")

	require.ErrorIs(t, err, ErrChecksumMismatch)
	require.ErrorIs(t, err, ErrCorrupt)
	require.Equal(t, KindCorrupt, KindOf(err))
	require.Contains(t, err.Error(), "segment block 3")
	require.Contains(t, err.Error(), "checksum mismatch")
}

func TestWrap_NilIsNil(t *testing.T) {
	require.NoError(t, Wrap(KindIo, nil, "whatever"))
	require.NoError(t, Wrapf(KindIo, nil, "whatever %d", 1))
}

func TestKindClassMatching(t *testing.T) {
	// A kind-class sentinel matches any error of that kind.
	err := Newf(KindBufferFull, "encoder at %d bytes", 512)
	require.ErrorIs(t, err, ErrBufferFull)
	require.NotErrorIs(t, err, ErrCorrupt)
}

func TestWrapChain_SurvivesFmtWrap(t *testing.T) {
	inner := Wrap(KindIo, ErrPoolClosed, "pool")
	outer := fmt.Errorf("query failed: %w", inner)

	require.ErrorIs(t, outer, ErrPoolClosed)
	require.Equal(t, KindIo, KindOf(outer))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "corrupt", KindCorrupt.String())
	require.Equal(t, "buffer full", KindBufferFull.String())
	require.Equal(t, "unknown", Kind(250).String())
}
