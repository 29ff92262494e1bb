package segment

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/format"
	"github.com/arloliu/ndts/table"
)

func tickSchema() []table.ColumnDef {
	return []table.ColumnDef{
		{Name: "ts", Type: format.TypeInt64},
		{Name: "price", Type: format.TypeFloat64},
		{Name: "qty", Type: format.TypeInt32},
		{Name: "symbol", Type: format.TypeString},
	}
}

func tickRows(n int, start int64) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{
			"ts":     start + int64(i)*1000,
			"price":  100.0 + float64(i)*0.5,
			"qty":    i % 16,
			"symbol": "BTC/USDT",
		}
	}

	return rows
}

func TestWriter_RawRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.ndts")

	w, err := Open(path, tickSchema())
	require.NoError(t, err)
	require.NoError(t, w.Append(tickRows(100, 1_700_000_000_000)))
	require.Equal(t, 100, w.RowCount())
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 100, r.RowCount())

	tsCol, err := r.Column("ts")
	require.NoError(t, err)
	ts, err := tsCol.Int64s()
	require.NoError(t, err)
	require.Len(t, ts, 100)
	require.Equal(t, int64(1_700_000_000_000), ts[0])
	require.Equal(t, int64(1_700_000_000_000+99_000), ts[99])

	priceCol, err := r.Column("price")
	require.NoError(t, err)
	prices, err := priceCol.Float64s()
	require.NoError(t, err)
	require.Equal(t, 100.0, prices[0])
	require.Equal(t, 149.5, prices[99])

	symCol, err := r.Column("symbol")
	require.NoError(t, err)
	syms, err := symCol.Strings()
	require.NoError(t, err)
	require.Equal(t, "BTC/USDT", syms[42])
}

func TestWriter_CompressedCodecs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.ndts")

	w, err := Open(path, tickSchema(),
		WithCodec("ts", format.CodecDelta),
		WithCodec("price", format.CodecGorilla),
		WithCodec("qty", format.CodecRLE),
		WithCodec("symbol", format.CodecZstd),
	)
	require.NoError(t, err)
	require.NoError(t, w.Append(tickRows(500, 1_700_000_000_000)))
	require.NoError(t, w.Close())

	tbl, err := ReadAll(path)
	require.NoError(t, err)
	require.Equal(t, 500, tbl.RowCount())

	row, err := tbl.Row(499)
	require.NoError(t, err)
	require.Equal(t, int64(1_700_000_000_000+499_000), row["ts"].Int64())
	require.Equal(t, 100.0+499*0.5, row["price"].Float64())
	require.Equal(t, int64(499%16), row["qty"].Int64())
	require.Equal(t, "BTC/USDT", row["symbol"].Raw())
}

func TestWriter_BlockCompression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.ndts")

	w, err := Open(path, tickSchema(),
		WithCodec("ts", format.CodecDelta),
		WithCodec("price", format.CodecGorilla),
		WithBlockCompression(format.CompressionS2),
	)
	require.NoError(t, err)
	require.NoError(t, w.Append(tickRows(200, 0)))
	require.NoError(t, w.Close())

	tbl, err := ReadAll(path)
	require.NoError(t, err)
	require.Equal(t, 200, tbl.RowCount())

	row, err := tbl.Row(10)
	require.NoError(t, err)
	require.Equal(t, 105.0, row["price"].Float64())
}

func TestWriter_ReopenAppendsBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.ndts")

	w, err := Open(path, tickSchema(), WithCodec("ts", format.CodecDelta))
	require.NoError(t, err)
	require.NoError(t, w.Append(tickRows(50, 0)))
	require.NoError(t, w.Close())

	// Reopen and append a second batch; readers union blocks in append order.
	w, err = Open(path, tickSchema())
	require.NoError(t, err)
	require.Equal(t, 50, w.RowCount())
	require.NoError(t, w.Append(tickRows(30, 50_000)))
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 80, r.RowCount())
	tsCol, err := r.Column("ts")
	require.NoError(t, err)
	ts, err := tsCol.Int64s()
	require.NoError(t, err)
	require.Len(t, ts, 80)
	require.Equal(t, int64(49_000), ts[49])
	require.Equal(t, int64(50_000), ts[50])
	require.Equal(t, int64(79_000), ts[79])
}

func TestWriter_SchemaMismatchOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.ndts")

	w, err := Open(path, tickSchema())
	require.NoError(t, err)
	require.NoError(t, w.Append(tickRows(1, 0)))
	require.NoError(t, w.Close())

	_, err = Open(path, []table.ColumnDef{{Name: "other", Type: format.TypeInt64}})
	require.Error(t, err)
	require.Equal(t, errs.KindTypeMismatch, errs.KindOf(err))
}

func TestWriter_UnknownColumnInRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.ndts")

	w, err := Open(path, tickSchema())
	require.NoError(t, err)
	defer w.Close()

	err = w.Append([]map[string]any{{"bogus": 1}})
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrColumnCountMismatch)
}

func TestWriter_CodecTypeValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.ndts")

	_, err := Open(path, tickSchema(), WithCodec("symbol", format.CodecGorilla))
	require.Error(t, err)
	require.Equal(t, errs.KindUnsupported, errs.KindOf(err))
}

func TestReader_CRCMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.ndts")

	w, err := Open(path, tickSchema(), WithCodec("price", format.CodecGorilla))
	require.NoError(t, err)
	require.NoError(t, w.Append(tickRows(64, 0)))
	require.NoError(t, w.Close())

	// Flip one byte inside the gorilla block payload.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	header, err := ReadHeader(path)
	require.NoError(t, err)
	var off int64
	for _, blk := range header.Blocks {
		if blk.Column == "price" {
			off = blk.Offset + 20
		}
	}
	require.NotZero(t, off)
	data[off] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = OpenReader(path)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrChecksumMismatch)
}

func TestReader_BadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.ndts")

	buf := make([]byte, 64)
	binary.LittleEndian.PutUint32(buf, 16)
	copy(buf[4:], `{"magic":"NOPE"}`)
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	_, err := OpenReader(path)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrInvalidMagicNumber)
}

func TestReader_ZeroCopyAlignment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.ndts")

	w, err := Open(path, tickSchema())
	require.NoError(t, err)
	require.NoError(t, w.Append(tickRows(8, 0)))
	require.NoError(t, w.Close())

	header, err := ReadHeader(path)
	require.NoError(t, err)
	for _, blk := range header.Blocks {
		if blk.Codec == "raw" && blk.Column != "symbol" {
			require.Zero(t, blk.Offset%8, "column %s payload must be 8-byte aligned", blk.Column)
		}
	}
}

func TestReadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.ndts")

	w, err := Open(path, tickSchema(), WithTombstone())
	require.NoError(t, err)
	require.NoError(t, w.Append(tickRows(10, 0)))
	require.NoError(t, w.Close())

	header, err := ReadHeader(path)
	require.NoError(t, err)
	require.Equal(t, FormatVersion, header.Version)
	require.Equal(t, 10, header.RowCount)
	require.True(t, header.Tombstone)
	require.Len(t, header.Columns, 4)
}
