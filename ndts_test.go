package ndts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/ndts/format"
	"github.com/arloliu/ndts/partition"
	"github.com/arloliu/ndts/segment"
	"github.com/arloliu/ndts/table"
)

// End-to-end: write day-partitioned ticks, read them back through the
// partitioned table, load a day into SQL, and replay merged symbols.
func TestStoreQueryReplay(t *testing.T) {
	dir := t.TempDir()

	schema := []table.ColumnDef{
		{Name: "ts", Type: TypeInt64},
		{Name: "price", Type: TypeFloat64},
		{Name: "symbol", Type: TypeString},
	}

	pt, err := OpenDayPartitioned(filepath.Join(dir, "ticks"), schema, "ts", nil)
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	var rows []map[string]any
	for day := 0; day < 5; day++ {
		for i := 0; i < 20; i++ {
			rows = append(rows, map[string]any{
				"ts":     base + int64(day)*86_400_000 + int64(i)*1000,
				"price":  100 + float64(day) + float64(i)*0.1,
				"symbol": "BTC/USDT",
			})
		}
	}
	require.NoError(t, pt.Append(rows))

	metas, err := pt.ListPartitions()
	require.NoError(t, err)
	require.Len(t, metas, 5)

	// Prune to a single day.
	got, err := pt.Query(nil, &partition.TimeRange{Start: base + 86_400_000, End: base + 2*86_400_000})
	require.NoError(t, err)
	require.Len(t, got, 20)

	// Load one day's segment into a SQL engine.
	tbl, err := segment.ReadAll(metas[1].Path)
	require.NoError(t, err)
	day1, err := table.FromColumns("day1", tbl.Columns())
	require.NoError(t, err)

	engine := NewEngine(day1)
	res, err := engine.Execute("SELECT COUNT(*) AS n, MAX(price) AS hi FROM day1")
	require.NoError(t, err)
	require.Equal(t, int64(20), res.Rows[0]["n"].Int64())
	require.InDelta(t, 102.9, res.Rows[0]["hi"].Float64(), 1e-9)

	// Per-symbol segments for merged replay.
	replayDir := filepath.Join(dir, "replay")
	require.NoError(t, os.MkdirAll(replayDir, 0o755))
	for si, sym := range []string{"AAA", "BBB"} {
		w, err := segment.Open(filepath.Join(replayDir, sym+".ndts"), schema)
		require.NoError(t, err)
		var symRows []map[string]any
		for i := 0; i < 10; i++ {
			symRows = append(symRows, map[string]any{
				"ts":     base + int64(i*2000+si*1000),
				"price":  float64(10 * (si + 1)),
				"symbol": sym,
			})
		}
		require.NoError(t, w.Append(symRows))
		require.NoError(t, w.Close())
	}

	pool, merge, err := OpenReplay([]string{"AAA", "BBB"}, replayDir, "ts", nil)
	require.NoError(t, err)
	defer pool.Close()

	it, err := merge.ReplayTicks()
	require.NoError(t, err)
	defer it.Close()

	count := 0
	last := int64(0)
	for tick := range it.All() {
		require.GreaterOrEqual(t, tick.Timestamp, last)
		last = tick.Timestamp
		count++
	}
	require.Equal(t, 20, count)

	snap, err := merge.AsOf(base + 3500)
	require.NoError(t, err)
	require.Equal(t, 10.0, snap["AAA"]["price"].Float64())
	require.Equal(t, 20.0, snap["BBB"]["price"].Float64())
}

func TestReexportedTypes(t *testing.T) {
	require.Equal(t, format.TypeFloat64, TypeFloat64)
	require.Equal(t, format.TypeString, TypeString)
}
