package segment

import (
	"encoding/binary"
	"hash/crc32"
	"math"
	"os"
	"unsafe"

	"github.com/edsrzf/mmap-go"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arloliu/ndts/compress"
	"github.com/arloliu/ndts/encoding"
	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/format"
	"github.com/arloliu/ndts/table"
)

// decodedColumnCacheSize bounds the decoded columns a reader retains.
const decodedColumnCacheSize = 32

// Reader provides read access to a segment through a read-only memory
// mapping.
//
// Raw numeric columns stored as a single block are exposed zero-copy:
// the typed slice reinterprets the mapping in place (payloads are 8-byte
// aligned; little-endian hosts assumed). Compressed or multi-block
// columns are decoded into freshly allocated arrays owned by the reader
// and cached. Views borrowed from the reader must not outlive it.
type Reader struct {
	path    string
	file    *os.File
	mapped  mmap.MMap
	header  *Header
	payload int
	decoded *lru.Cache[string, *table.Column]
	closed  bool
}

// OpenReader memory-maps the segment and validates its magic, version,
// and the CRC of every framed block (raw blocks carry no CRC).
// Validation failures surface as Corrupt.
func OpenReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindIo, err, "open segment")
	}

	mapped, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		file.Close()
		return nil, errs.Wrap(errs.KindIo, err, "mmap segment")
	}

	header, payloadStart, err := parseHeader(mapped)
	if err != nil {
		mapped.Unmap()
		file.Close()
		return nil, err
	}

	cache, _ := lru.New[string, *table.Column](decodedColumnCacheSize)
	r := &Reader{
		path:    path,
		file:    file,
		mapped:  mapped,
		header:  header,
		payload: payloadStart,
		decoded: cache,
	}

	if err := r.verifyBlocks(); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

func (r *Reader) verifyBlocks() error {
	for _, blk := range r.header.Blocks {
		if blk.Offset < int64(r.payload) || blk.Offset+blk.Length > int64(len(r.mapped)) {
			return errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "segment block bounds")
		}
		if blk.Codec == format.CodecRaw.String() {
			continue
		}

		frame := r.mapped[blk.Offset : blk.Offset+blk.Length]
		if len(frame) < 12 {
			return errs.Wrap(errs.KindCorrupt, errs.ErrInvalidBlockSize, "segment block frame")
		}
		payloadLen := int(binary.LittleEndian.Uint32(frame[4:8]))
		if 12+payloadLen != len(frame) {
			return errs.Wrap(errs.KindCorrupt, errs.ErrInvalidBlockSize, "segment block length")
		}
		want := binary.LittleEndian.Uint32(frame[8:12])
		if crc32.ChecksumIEEE(frame[12:]) != want {
			return errs.Wrap(errs.KindCorrupt, errs.ErrChecksumMismatch, "segment block")
		}
	}

	return nil
}

// Header returns the parsed segment header.
func (r *Reader) Header() *Header { return r.header }

// RowCount returns the total row count across all batches.
func (r *Reader) RowCount() int { return r.header.RowCount }

// Path returns the segment file path.
func (r *Reader) Path() string { return r.path }

// Column returns a typed view of the named column, decoding and caching
// compressed payloads on first access.
func (r *Reader) Column(name string) (*table.Column, error) {
	if r.closed {
		return nil, errs.Wrap(errs.KindIo, errs.ErrPoolClosed, "segment reader")
	}
	if col, ok := r.decoded.Get(name); ok {
		return col, nil
	}

	typ, ok := r.header.ColumnType(name)
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "column %q not in segment %s", name, r.path)
	}

	blocks := make([]HeaderBlock, 0, 4)
	for _, blk := range r.header.Blocks {
		if blk.Column == name {
			blocks = append(blocks, blk)
		}
	}

	col, err := r.assembleColumn(name, typ, blocks)
	if err != nil {
		return nil, err
	}
	r.decoded.Add(name, col)

	return col, nil
}

// Table assembles every column into a borrowed columnar table.
func (r *Reader) Table(name string) (*table.Table, error) {
	cols := make([]*table.Column, 0, len(r.header.Columns))
	for _, hc := range r.header.Columns {
		col, err := r.Column(hc.Name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}

	return table.FromColumns(name, cols)
}

// assembleColumn unions the column's blocks in append order.
func (r *Reader) assembleColumn(name string, typ format.ColumnType, blocks []HeaderBlock) (*table.Column, error) {
	// Single raw numeric block: zero-copy reinterpretation of the mapping.
	if len(blocks) == 1 && blocks[0].Codec == format.CodecRaw.String() && typ.Numeric() {
		return r.rawView(name, typ, blocks[0])
	}

	switch typ {
	case format.TypeFloat64:
		out := make([]float64, 0, r.header.RowCount)
		for _, blk := range blocks {
			vals, err := r.decodeFloatBlock(blk)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}

		return table.NewFloat64View(name, out), nil
	case format.TypeInt64, format.TypeInt32, format.TypeInt16:
		out := make([]int64, 0, r.header.RowCount)
		for _, blk := range blocks {
			vals, err := r.decodeIntBlock(blk, typ)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}

		return intColumn(name, typ, out), nil
	case format.TypeString:
		out := make([]string, 0, r.header.RowCount)
		for _, blk := range blocks {
			vals, err := r.decodeStringBlock(blk)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}

		return table.NewStringView(name, out), nil
	default:
		return nil, errs.Newf(errs.KindUnsupported, "column type for %q", name)
	}
}

func (r *Reader) rawView(name string, typ format.ColumnType, blk HeaderBlock) (*table.Column, error) {
	base := unsafe.Pointer(&r.mapped[blk.Offset])
	switch typ {
	case format.TypeInt16:
		return table.NewInt16View(name, unsafe.Slice((*int16)(base), blk.Rows)), nil
	case format.TypeInt32:
		return table.NewInt32View(name, unsafe.Slice((*int32)(base), blk.Rows)), nil
	case format.TypeInt64:
		return table.NewInt64View(name, unsafe.Slice((*int64)(base), blk.Rows)), nil
	case format.TypeFloat64:
		return table.NewFloat64View(name, unsafe.Slice((*float64)(base), blk.Rows)), nil
	default:
		return nil, errs.Newf(errs.KindUnsupported, "raw view of %s column %q", typ, name)
	}
}

func (r *Reader) framedPayload(blk HeaderBlock, compressible bool) ([]byte, int, error) {
	frame := r.mapped[blk.Offset : blk.Offset+blk.Length]
	rows := int(binary.LittleEndian.Uint32(frame[0:4]))
	payload := []byte(frame[12:])

	if compressible && r.header.Compression != "" {
		for _, ct := range []format.CompressionType{format.CompressionZstd, format.CompressionS2, format.CompressionLZ4} {
			if ct.String() != r.header.Compression {
				continue
			}
			codec, err := compress.GetCodec(ct)
			if err != nil {
				return nil, 0, err
			}
			payload, err = codec.Decompress(payload)
			if err != nil {
				return nil, 0, errs.Wrap(errs.KindCorrupt, err, "block decompression")
			}

			return payload, rows, nil
		}

		return nil, 0, errs.Newf(errs.KindUnsupported, "unknown compression %q", r.header.Compression)
	}

	return payload, rows, nil
}

func (r *Reader) decodeFloatBlock(blk HeaderBlock) ([]float64, error) {
	switch blk.Codec {
	case format.CodecRaw.String():
		data := r.mapped[blk.Offset : blk.Offset+blk.Length]
		out := make([]float64, blk.Rows)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}

		return out, nil
	case format.CodecGorilla.String():
		payload, rows, err := r.framedPayload(blk, true)
		if err != nil {
			return nil, err
		}

		return encoding.NewGorillaDecoder().Decode(payload, rows)
	default:
		return nil, errs.Newf(errs.KindUnsupported, "codec %q for f64 column %q", blk.Codec, blk.Column)
	}
}

func (r *Reader) decodeIntBlock(blk HeaderBlock, typ format.ColumnType) ([]int64, error) {
	switch blk.Codec {
	case format.CodecRaw.String():
		data := r.mapped[blk.Offset : blk.Offset+blk.Length]
		out := make([]int64, blk.Rows)
		for i := range out {
			switch typ {
			case format.TypeInt16:
				out[i] = int64(int16(binary.LittleEndian.Uint16(data[i*2:])))
			case format.TypeInt32:
				out[i] = int64(int32(binary.LittleEndian.Uint32(data[i*4:])))
			default:
				out[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
			}
		}

		return out, nil
	case format.CodecDelta.String():
		payload, rows, err := r.framedPayload(blk, true)
		if err != nil {
			return nil, err
		}

		return encoding.NewDeltaDecoder().Decode(payload, rows)
	case format.CodecRLE.String():
		payload, rows, err := r.framedPayload(blk, true)
		if err != nil {
			return nil, err
		}

		return encoding.NewRLEDecoder().Decode(payload, rows)
	default:
		return nil, errs.Newf(errs.KindUnsupported, "codec %q for integer column %q", blk.Codec, blk.Column)
	}
}

func (r *Reader) decodeStringBlock(blk HeaderBlock) ([]string, error) {
	payload, rows, err := r.framedPayload(blk, false)
	if err != nil {
		return nil, err
	}

	if blk.Codec == format.CodecZstd.String() {
		payload, err = compress.NewZstdCompressor().Decompress(payload)
		if err != nil {
			return nil, errs.Wrap(errs.KindCorrupt, err, "string column decompression")
		}
	} else if blk.Codec != format.CodecRaw.String() {
		return nil, errs.Newf(errs.KindUnsupported, "codec %q for string column %q", blk.Codec, blk.Column)
	}

	return decodeVarstring(payload, rows)
}

func decodeVarstring(payload []byte, rows int) ([]string, error) {
	out := make([]string, 0, rows)
	offset := 0
	for i := 0; i < rows; i++ {
		if offset+4 > len(payload) {
			return nil, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "varstring length")
		}
		n := int(binary.LittleEndian.Uint32(payload[offset:]))
		offset += 4
		if offset+n > len(payload) {
			return nil, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "varstring bytes")
		}
		out = append(out, string(payload[offset:offset+n]))
		offset += n
	}

	return out, nil
}

func intColumn(name string, typ format.ColumnType, vals []int64) *table.Column {
	switch typ {
	case format.TypeInt16:
		narrow := make([]int16, len(vals))
		for i, v := range vals {
			narrow[i] = int16(v)
		}

		return table.NewInt16View(name, narrow)
	case format.TypeInt32:
		narrow := make([]int32, len(vals))
		for i, v := range vals {
			narrow[i] = int32(v)
		}

		return table.NewInt32View(name, narrow)
	default:
		return table.NewInt64View(name, vals)
	}
}

// Close unmaps the segment. Outstanding zero-copy views become invalid.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.decoded.Purge()

	err := r.mapped.Unmap()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}

	return errs.Wrap(errs.KindIo, err, "close segment reader")
}

// ReadHeader decodes just the header of the segment at path.
func ReadHeader(path string) (*Header, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindIo, err, "open segment")
	}
	defer file.Close()

	lenBuf := make([]byte, 4)
	if _, err := file.ReadAt(lenBuf, 0); err != nil {
		return nil, errs.Wrap(errs.KindCorrupt, err, "read segment header length")
	}
	headerLen := int(binary.LittleEndian.Uint32(lenBuf))
	if headerLen <= 0 || headerLen > 1<<24 {
		return nil, errs.Wrap(errs.KindCorrupt, errs.ErrInvalidHeaderSize, "segment")
	}

	regionBytes := make([]byte, 4+headerLen)
	if _, err := file.ReadAt(regionBytes, 0); err != nil {
		return nil, errs.Wrap(errs.KindCorrupt, err, "read segment header")
	}

	header, _, err := parseHeader(regionBytes)

	return header, err
}

// ReadAll loads the whole segment into an owned columnar table, reassembling
// per-column blocks in append order.
func ReadAll(path string) (*table.Table, error) {
	r, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	borrowed, err := r.Table("segment")
	if err != nil {
		return nil, err
	}

	// Copy out of the mapping so the result owns its values.
	schema := borrowed.Schema()
	owned, err := table.Create("segment", schema, borrowed.RowCount())
	if err != nil {
		return nil, err
	}
	rowsBatch := make([]map[string]any, 0, borrowed.RowCount())
	for i := 0; i < borrowed.RowCount(); i++ {
		row, err := borrowed.Row(i)
		if err != nil {
			return nil, err
		}
		generic := make(map[string]any, len(row))
		for k, v := range row {
			generic[k] = v.Raw()
		}
		rowsBatch = append(rowsBatch, generic)
	}
	if err := owned.AppendBatch(rowsBatch); err != nil {
		return nil, err
	}

	return owned, nil
}
