package table

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/format"
)

func tickSchema() []ColumnDef {
	return []ColumnDef{
		{Name: "ts", Type: format.TypeInt64},
		{Name: "price", Type: format.TypeFloat64},
		{Name: "qty", Type: format.TypeInt32},
		{Name: "symbol", Type: format.TypeString},
	}
}

func TestCreate(t *testing.T) {
	tbl, err := Create("ticks", tickSchema(), 64)
	require.NoError(t, err)
	require.Equal(t, 0, tbl.RowCount())
	require.Len(t, tbl.Columns(), 4)

	col, err := tbl.Column("price")
	require.NoError(t, err)
	require.Equal(t, format.TypeFloat64, col.Type())
	require.GreaterOrEqual(t, col.Cap(), 64)

	_, err = tbl.Column("missing")
	require.Error(t, err)
	require.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestCreate_DuplicateColumn(t *testing.T) {
	_, err := Create("bad", []ColumnDef{
		{Name: "a", Type: format.TypeInt64},
		{Name: "a", Type: format.TypeFloat64},
	}, 8)
	require.Error(t, err)
}

func TestAppendRow_DefaultsAndCoercion(t *testing.T) {
	tbl, err := Create("ticks", tickSchema(), 4)
	require.NoError(t, err)

	require.NoError(t, tbl.AppendRow(map[string]any{
		"ts":     int64(1000),
		"price":  100.5,
		"qty":    7,
		"symbol": "BTC/USDT",
	}))
	// Missing values default to the per-type zero.
	require.NoError(t, tbl.AppendRow(map[string]any{"ts": int64(2000)}))
	// i64 from decimal string truncates to integer.
	require.NoError(t, tbl.AppendRow(map[string]any{"ts": "3000.9", "price": "101.25"}))

	require.Equal(t, 3, tbl.RowCount())

	ts, err := mustCol(tbl, "ts").Int64s()
	require.NoError(t, err)
	require.Equal(t, []int64{1000, 2000, 3000}, ts)

	prices, err := mustCol(tbl, "price").Float64s()
	require.NoError(t, err)
	require.Equal(t, []float64{100.5, 0, 101.25}, prices)

	syms, err := mustCol(tbl, "symbol").Strings()
	require.NoError(t, err)
	require.Equal(t, []string{"BTC/USDT", "", ""}, syms)
}

func mustCol(t *Table, name string) *Column {
	col, err := t.Column(name)
	if err != nil {
		panic(err)
	}

	return col
}

func TestAppendRow_NarrowingWraps(t *testing.T) {
	tbl, err := Create("t", []ColumnDef{
		{Name: "a", Type: format.TypeInt16},
		{Name: "b", Type: format.TypeInt32},
	}, 2)
	require.NoError(t, err)

	require.NoError(t, tbl.AppendRow(map[string]any{"a": int64(65536 + 5), "b": int64(1) << 32}))

	a, err := mustCol(tbl, "a").Int16s()
	require.NoError(t, err)
	require.Equal(t, int16(5), a[0])

	b, err := mustCol(tbl, "b").Int32s()
	require.NoError(t, err)
	require.Equal(t, int32(0), b[0])
}

func TestAppendBatch_EquivalentToSequential(t *testing.T) {
	rows := make([]map[string]any, 100)
	for i := range rows {
		rows[i] = map[string]any{"ts": int64(i), "price": float64(i) * 1.5, "qty": i, "symbol": "S"}
	}

	batch, err := Create("batch", tickSchema(), 2)
	require.NoError(t, err)
	require.NoError(t, batch.AppendBatch(rows))

	seq, err := Create("seq", tickSchema(), 2)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, seq.AppendRow(r))
	}

	require.Equal(t, seq.RowCount(), batch.RowCount())
	for i := 0; i < seq.RowCount(); i++ {
		br, _ := batch.Row(i)
		sr, _ := seq.Row(i)
		require.Equal(t, sr, br)
	}
}

func TestGrowthPolicy(t *testing.T) {
	require.Equal(t, 6, grownCap(4, 5))    // ceil(4*1.5)
	require.Equal(t, 8, grownCap(4, 7))    // doubled when request exceeds factor
	require.Equal(t, 100, grownCap(4, 100)) // raised to the request
}

func TestUpdateRow(t *testing.T) {
	tbl, err := Create("ticks", tickSchema(), 4)
	require.NoError(t, err)
	require.NoError(t, tbl.AppendRow(map[string]any{"ts": int64(1), "price": 10.0}))

	// Unknown column names are ignored, nil leaves the cell unchanged.
	require.NoError(t, tbl.UpdateRow(0, map[string]any{"price": 20.0, "bogus": 1, "ts": nil}))

	row, err := tbl.Row(0)
	require.NoError(t, err)
	require.Equal(t, 20.0, row["price"].Float64())
	require.Equal(t, int64(1), row["ts"].Int64())

	err = tbl.UpdateRow(5, map[string]any{"price": 1.0})
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrOutOfBounds)
}

func TestSliceAndFilter(t *testing.T) {
	tbl, err := Create("ticks", tickSchema(), 8)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, tbl.AppendRow(map[string]any{"ts": int64(i), "price": float64(i)}))
	}

	rows := tbl.Slice(3, 6)
	require.Len(t, rows, 3)
	require.Equal(t, int64(3), rows[0]["ts"].Int64())

	// End is clamped to the row count.
	rows = tbl.Slice(8, 100)
	require.Len(t, rows, 2)

	require.Empty(t, tbl.Slice(6, 3))

	even := tbl.Filter(func(r Row, i int) bool { return r["ts"].Int64()%2 == 0 })
	require.Len(t, even, 5)
	require.Equal(t, int64(0), even[0]["ts"].Int64())
	require.Equal(t, int64(8), even[4]["ts"].Int64())
}

func TestAggregate(t *testing.T) {
	tbl, err := Create("ticks", tickSchema(), 8)
	require.NoError(t, err)

	// Empty-table boundary values.
	sum, err := tbl.Aggregate("price", AggSum)
	require.NoError(t, err)
	require.Equal(t, 0.0, sum)

	avg, err := tbl.Aggregate("price", AggAvg)
	require.NoError(t, err)
	require.True(t, math.IsNaN(avg))

	mn, err := tbl.Aggregate("price", AggMin)
	require.NoError(t, err)
	require.True(t, math.IsInf(mn, 1))

	mx, err := tbl.Aggregate("price", AggMax)
	require.NoError(t, err)
	require.True(t, math.IsInf(mx, -1))

	cnt, err := tbl.Aggregate("price", AggCount)
	require.NoError(t, err)
	require.Equal(t, 0.0, cnt)

	for i := 1; i <= 4; i++ {
		require.NoError(t, tbl.AppendRow(map[string]any{"price": float64(i * 10)}))
	}

	sum, err = tbl.Aggregate("price", AggSum)
	require.NoError(t, err)
	require.Equal(t, 100.0, sum)

	avg, err = tbl.Aggregate("price", AggAvg)
	require.NoError(t, err)
	require.Equal(t, 25.0, avg)

	// Count covers the whole table regardless of column.
	cnt, err = tbl.Aggregate("symbol", AggCount)
	require.NoError(t, err)
	require.Equal(t, 4.0, cnt)
}

func TestSampleBy(t *testing.T) {
	tbl, err := Create("kline", []ColumnDef{
		{Name: "ts", Type: format.TypeInt64},
		{Name: "price", Type: format.TypeFloat64},
	}, 16)
	require.NoError(t, err)

	// Two buckets of width 1000: [0,1000) and [1000,2000).
	for _, r := range []struct {
		ts    int64
		price float64
	}{
		{100, 10}, {500, 30}, {900, 20},
		{1000, 5}, {1900, 45},
	} {
		require.NoError(t, tbl.AppendRow(map[string]any{"ts": r.ts, "price": r.price}))
	}

	rows, err := tbl.SampleBy("ts", 1000, []SampleAggregation{
		{Column: "price", Op: SampleFirst},
		{Column: "price", Op: SampleMax},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, int64(0), rows[0]["ts"].Int64())
	require.Equal(t, 10.0, rows[0]["price_first"].Float64())
	require.Equal(t, 30.0, rows[0]["price_max"].Float64())

	require.Equal(t, int64(1000), rows[1]["ts"].Int64())
	require.Equal(t, 5.0, rows[1]["price_first"].Float64())
	require.Equal(t, 45.0, rows[1]["price_max"].Float64())

	// A single reduction keeps the bare column name.
	rows, err = tbl.SampleBy("ts", 1000, []SampleAggregation{{Column: "price", Op: SampleAvg}})
	require.NoError(t, err)
	require.Equal(t, 20.0, rows[0]["price"].Float64())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ticks.bin")

	tbl, err := Create("ticks", []ColumnDef{
		{Name: "ts", Type: format.TypeInt64},
		{Name: "price", Type: format.TypeFloat64},
		{Name: "qty", Type: format.TypeInt32},
		{Name: "flag", Type: format.TypeInt16},
	}, 8)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, tbl.AppendRow(map[string]any{
			"ts":    int64(1_700_000_000_000) + int64(i)*1000,
			"price": 100.0 + float64(i)*0.25,
			"qty":   i * 3,
			"flag":  i % 2,
		}))
	}

	require.NoError(t, tbl.SaveToFile(path))

	loaded, err := LoadFromFile("ticks", path)
	require.NoError(t, err)
	require.Equal(t, tbl.RowCount(), loaded.RowCount())
	for i := 0; i < tbl.RowCount(); i++ {
		want, _ := tbl.Row(i)
		got, _ := loaded.Row(i)
		require.Equal(t, want, got)
	}
}

func TestSaveToFile_StringUnsupported(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Create("ticks", tickSchema(), 4)
	require.NoError(t, err)

	err = tbl.SaveToFile(filepath.Join(dir, "nope.bin"))
	require.Error(t, err)
	require.Equal(t, errs.KindUnsupported, errs.KindOf(err))
}

func TestIndex_EqualAndRange(t *testing.T) {
	tbl, err := Create("ticks", tickSchema(), 16)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		sym := "AAA"
		if i%2 == 1 {
			sym = "BBB"
		}
		require.NoError(t, tbl.AppendRow(map[string]any{"ts": int64(i), "price": float64(i), "symbol": sym}))
	}

	_, err = tbl.CreateIndex("sym_ts", []string{"symbol", "ts"})
	require.NoError(t, err)

	idx := tbl.FindIndex([]string{"symbol"})
	require.NotNil(t, idx)

	rows := idx.LookupRange([]Value{Str("AAA")}, &RangeBound{Value: Int(2), Inclusive: true}, &RangeBound{Value: Int(8), Inclusive: false})
	require.Equal(t, []int{2, 4, 6}, rows)

	full := tbl.FindIndex([]string{"symbol", "ts"})
	require.Equal(t, []int{3}, full.LookupEqual([]Value{Str("BBB"), Int(3)}))

	// Updates invalidate; the next probe rebuilds.
	require.NoError(t, tbl.UpdateRow(3, map[string]any{"ts": int64(100)}))
	require.Empty(t, full.LookupEqual([]Value{Str("BBB"), Int(3)}))
	require.Equal(t, []int{3}, full.LookupEqual([]Value{Str("BBB"), Int(100)}))
}

func TestValue_Compare(t *testing.T) {
	require.Equal(t, 0, Int(5).Compare(Float(5)))
	require.Equal(t, -1, Int(2).Compare(Float(2.5)))
	require.Equal(t, 1, Str("b").Compare(Str("a")))
	// Null collates as the empty string.
	require.Equal(t, -1, Null().Compare(Str("a")))
}
