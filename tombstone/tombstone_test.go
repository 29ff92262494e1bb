package tombstone

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/ndts/errs"
)

func TestMarkContains(t *testing.T) {
	tomb := New(filepath.Join(t.TempDir(), "seg.ndts.tomb"))

	tomb.Mark(1)
	tomb.Mark(5)
	tomb.Mark(10)
	tomb.Mark(5) // idempotent

	require.True(t, tomb.Contains(1))
	require.True(t, tomb.Contains(5))
	require.True(t, tomb.Contains(10))
	require.False(t, tomb.Contains(2))
	require.Equal(t, uint64(3), tomb.Cardinality())
	require.Equal(t, []uint32{1, 5, 10}, tomb.ToVec())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.ndts.tomb")
	tomb := New(path)

	tomb.MarkBatch([]uint32{7, 3, 99, 100000})
	require.True(t, tomb.Dirty())
	require.NoError(t, tomb.Save())
	require.False(t, tomb.Dirty())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Contains(7))
	require.True(t, loaded.Contains(100000))
	require.Equal(t, uint64(4), loaded.Cardinality())
	require.Equal(t, []uint32{3, 7, 99, 100000}, loaded.ToVec())
}

func TestSave_NoOpWhenClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.ndts.tomb")
	tomb := New(path)

	require.NoError(t, tomb.Save())
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestLoad_MissingFile(t *testing.T) {
	tomb, err := Load(filepath.Join(t.TempDir(), "absent.tomb"))
	require.NoError(t, err)
	require.Equal(t, uint64(0), tomb.Cardinality())
}

func TestLoad_BadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tomb")
	require.NoError(t, os.WriteFile(path, []byte("NOPE\x01\x00\x00\x00\x00\x00\x00\x00"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrInvalidMagicNumber)
}

func TestClearAndDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.ndts.tomb")
	tomb := New(path)

	tomb.Mark(4)
	require.NoError(t, tomb.Save())

	tomb.Clear()
	require.Equal(t, uint64(0), tomb.Cardinality())
	require.True(t, tomb.Dirty())
	require.NoError(t, tomb.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(0), loaded.Cardinality())

	require.NoError(t, tomb.Delete())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	// Deleting an absent sidecar is fine.
	require.NoError(t, tomb.Delete())
}
