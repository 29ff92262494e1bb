package table

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/goccy/go-json"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/format"
)

// fileFormatVersion is the binary table file version.
const fileFormatVersion = 1

type fileColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type fileHeader struct {
	Version  int          `json:"version"`
	RowCount int          `json:"rowCount"`
	Columns  []fileColumn `json:"columns"`
}

// SaveToFile persists the table in the segment layout with raw payloads:
// a u32 header length, a JSON header, zero padding to an 8-byte boundary,
// then each column's densely packed little-endian payload. Binary
// persistence is numeric-only; string columns fail with Unsupported.
func (t *Table) SaveToFile(path string) error {
	header := fileHeader{
		Version:  fileFormatVersion,
		RowCount: t.rowCount,
		Columns:  make([]fileColumn, 0, len(t.columns)),
	}
	for _, col := range t.columns {
		if !col.Type().Numeric() {
			return errs.Newf(errs.KindUnsupported, "binary persistence is numeric-only: column %q is %s", col.Name(), col.Type())
		}
		header.Columns = append(header.Columns, fileColumn{Name: col.Name(), Type: col.Type().String()})
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return errs.Wrap(errs.KindIo, err, "marshal table header")
	}

	payloadStart := align8(4 + len(headerBytes))
	size := payloadStart
	for _, col := range t.columns {
		size += col.Type().Width() * t.rowCount
	}

	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(headerBytes)))
	copy(buf[4:], headerBytes)

	offset := payloadStart
	for _, col := range t.columns {
		offset += encodeRawColumn(buf[offset:], col)
	}

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return errs.Wrap(errs.KindIo, err, "write table file")
	}

	return nil
}

// LoadFromFile reconstructs a table persisted by SaveToFile.
func LoadFromFile(name, path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindIo, err, "read table file")
	}

	header, payloadStart, err := parseFileHeader(data)
	if err != nil {
		return nil, err
	}

	schema := make([]ColumnDef, 0, len(header.Columns))
	for _, fc := range header.Columns {
		typ, ok := format.ParseColumnType(fc.Type)
		if !ok {
			return nil, errs.Newf(errs.KindUnsupported, "unknown column type %q", fc.Type)
		}
		schema = append(schema, ColumnDef{Name: fc.Name, Type: typ})
	}

	t, err := Create(name, schema, header.RowCount)
	if err != nil {
		return nil, err
	}

	offset := payloadStart
	for _, col := range t.columns {
		n := col.Type().Width() * header.RowCount
		if offset+n > len(data) {
			return nil, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "table file")
		}
		decodeRawColumn(col, data[offset:offset+n], header.RowCount)
		offset += n
	}
	t.rowCount = header.RowCount

	return t, nil
}

func parseFileHeader(data []byte) (fileHeader, int, error) {
	var header fileHeader
	if len(data) < 4 {
		return header, 0, errs.Wrap(errs.KindCorrupt, errs.ErrInvalidHeaderSize, "table file")
	}

	headerLen := int(binary.LittleEndian.Uint32(data[0:4]))
	if 4+headerLen > len(data) {
		return header, 0, errs.Wrap(errs.KindCorrupt, errs.ErrInvalidHeaderSize, "table file")
	}

	if err := json.Unmarshal(data[4:4+headerLen], &header); err != nil {
		return header, 0, errs.Wrap(errs.KindCorrupt, err, "parse table header")
	}
	if header.Version != fileFormatVersion {
		return header, 0, errs.Wrap(errs.KindCorrupt, errs.ErrInvalidVersion, "table file")
	}

	return header, align8(4 + headerLen), nil
}

func align8(n int) int {
	return (n + 7) &^ 7
}

// encodeRawColumn packs the column's live elements little-endian into dst
// and returns the bytes written.
func encodeRawColumn(dst []byte, col *Column) int {
	switch col.Type() {
	case format.TypeInt16:
		for i, v := range col.i16 {
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(v))
		}
		return len(col.i16) * 2
	case format.TypeInt32:
		for i, v := range col.i32 {
			binary.LittleEndian.PutUint32(dst[i*4:], uint32(v))
		}
		return len(col.i32) * 4
	case format.TypeInt64:
		for i, v := range col.i64 {
			binary.LittleEndian.PutUint64(dst[i*8:], uint64(v))
		}
		return len(col.i64) * 8
	case format.TypeFloat64:
		for i, v := range col.f64 {
			binary.LittleEndian.PutUint64(dst[i*8:], math.Float64bits(v))
		}
		return len(col.f64) * 8
	default:
		return 0
	}
}

func decodeRawColumn(col *Column, src []byte, rows int) {
	switch col.Type() {
	case format.TypeInt16:
		col.i16 = col.i16[:0]
		for i := 0; i < rows; i++ {
			col.i16 = append(col.i16, int16(binary.LittleEndian.Uint16(src[i*2:])))
		}
	case format.TypeInt32:
		col.i32 = col.i32[:0]
		for i := 0; i < rows; i++ {
			col.i32 = append(col.i32, int32(binary.LittleEndian.Uint32(src[i*4:])))
		}
	case format.TypeInt64:
		col.i64 = col.i64[:0]
		for i := 0; i < rows; i++ {
			col.i64 = append(col.i64, int64(binary.LittleEndian.Uint64(src[i*8:])))
		}
	case format.TypeFloat64:
		col.f64 = col.f64[:0]
		for i := 0; i < rows; i++ {
			col.f64 = append(col.f64, math.Float64frombits(binary.LittleEndian.Uint64(src[i*8:])))
		}
	}
}
