package replay

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/format"
	"github.com/arloliu/ndts/segment"
	"github.com/arloliu/ndts/table"
)

func writeSymbolSegment(t *testing.T, dir, symbol string, ts []int64, prices []float64) {
	t.Helper()

	schema := []table.ColumnDef{
		{Name: "ts", Type: format.TypeInt64},
		{Name: "price", Type: format.TypeFloat64},
	}
	w, err := segment.Open(filepath.Join(dir, symbol+".ndts"), schema)
	require.NoError(t, err)

	rows := make([]map[string]any, len(ts))
	for i := range rows {
		rows[i] = map[string]any{"ts": ts[i], "price": prices[i]}
	}
	require.NoError(t, w.Append(rows))
	require.NoError(t, w.Close())
}

func buildPool(t *testing.T) (*Pool, string) {
	t.Helper()
	dir := t.TempDir()

	// Interleaved timestamps with a shared tick at 2000.
	writeSymbolSegment(t, dir, "AAA", []int64{1000, 2000, 4000}, []float64{10, 11, 12})
	writeSymbolSegment(t, dir, "BBB", []int64{1500, 2000, 3000, 5000}, []float64{20, 21, 22, 23})

	pool, err := Init([]string{"AAA", "BBB", "MISSING"}, dir)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool, dir
}

func TestPool_Init_SkipsMissing(t *testing.T) {
	pool, _ := buildPool(t)
	require.Equal(t, []string{"AAA", "BBB"}, pool.Symbols())

	_, err := pool.Column("MISSING", "ts")
	require.Error(t, err)
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestPool_ColumnAndPrefetch(t *testing.T) {
	pool, _ := buildPool(t)

	col, err := pool.Column("AAA", "ts")
	require.NoError(t, err)
	ts, err := col.Int64s()
	require.NoError(t, err)
	require.Equal(t, []int64{1000, 2000, 4000}, ts)

	require.NoError(t, pool.Prefetch("BBB", []string{"ts", "price"}))
}

func TestPool_CloseInvalidates(t *testing.T) {
	dir := t.TempDir()
	writeSymbolSegment(t, dir, "AAA", []int64{1}, []float64{1})

	pool, err := Init([]string{"AAA"}, dir)
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	_, err = pool.Column("AAA", "ts")
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrPoolClosed)
}

func TestReplayTicks_GlobalOrderAndTieBreak(t *testing.T) {
	pool, _ := buildPool(t)

	it, err := NewMerge(pool, "ts").ReplayTicks()
	require.NoError(t, err)
	defer it.Close()

	var got []Tick
	for tick := range it.All() {
		got = append(got, tick)
	}

	// Total equals the sum of per-symbol rows.
	require.Len(t, got, 7)

	// Monotonically non-decreasing timestamps.
	for i := 1; i < len(got); i++ {
		require.GreaterOrEqual(t, got[i].Timestamp, got[i-1].Timestamp)
	}

	// The shared timestamp resolves in symbol insertion order.
	require.Equal(t, int64(2000), got[2].Timestamp)
	require.Equal(t, "AAA", got[2].Symbol)
	require.Equal(t, int64(2000), got[3].Timestamp)
	require.Equal(t, "BBB", got[3].Symbol)

	// Values are materialized per tick.
	require.Equal(t, 10.0, got[0].Values["price"].Float64())
}

func TestReplayTicks_TimeRange(t *testing.T) {
	pool, _ := buildPool(t)

	it, err := NewMerge(pool, "ts", WithTimeRange(2000, 4000)).ReplayTicks()
	require.NoError(t, err)
	defer it.Close()

	var stamps []int64
	for tick := range it.All() {
		stamps = append(stamps, tick.Timestamp)
	}
	require.Equal(t, []int64{2000, 2000, 3000}, stamps)
}

func TestTickIterator_Seek(t *testing.T) {
	pool, _ := buildPool(t)

	it, err := NewMerge(pool, "ts").ReplayTicks()
	require.NoError(t, err)
	defer it.Close()

	it.Seek(3000)

	var stamps []int64
	for tick := range it.All() {
		stamps = append(stamps, tick.Timestamp)
	}
	require.Equal(t, []int64{3000, 4000, 5000}, stamps)
}

func TestReplaySnapshots(t *testing.T) {
	pool, _ := buildPool(t)

	snaps, err := NewMerge(pool, "ts").ReplaySnapshots()
	require.NoError(t, err)
	defer snaps.Close()

	var got []Snapshot
	for {
		snap, ok := snaps.Next()
		if !ok {
			break
		}
		got = append(got, snap)
	}

	// One snapshot per distinct timestamp: 1000, 1500, 2000, 3000, 4000, 5000.
	require.Len(t, got, 6)
	require.Equal(t, map[string]float64{"AAA": 10}, got[0].Prices)
	require.Equal(t, map[string]float64{"AAA": 11, "BBB": 21}, got[2].Prices)
	require.Equal(t, map[string]float64{"BBB": 23}, got[5].Prices)
}

func TestAsOf(t *testing.T) {
	pool, _ := buildPool(t)
	m := NewMerge(pool, "ts")

	snap, err := m.AsOf(2500)
	require.NoError(t, err)
	require.Len(t, snap, 2)
	require.Equal(t, int64(2000), snap["AAA"]["ts"].Int64())
	require.Equal(t, 11.0, snap["AAA"]["price"].Float64())
	require.Equal(t, int64(2000), snap["BBB"]["ts"].Int64())

	// Before any tick of AAA and BBB.
	snap, err = m.AsOf(500)
	require.NoError(t, err)
	require.Empty(t, snap)

	// Exactly on a timestamp includes it.
	snap, err = m.AsOf(1000)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	require.Equal(t, 10.0, snap["AAA"]["price"].Float64())
}
