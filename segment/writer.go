package segment

import (
	"encoding/binary"
	"hash/crc32"
	"math"
	"os"

	"github.com/arloliu/ndts/compress"
	"github.com/arloliu/ndts/encoding"
	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/format"
	"github.com/arloliu/ndts/internal/pool"
	"github.com/arloliu/ndts/table"
)

// Option configures a Writer at open time.
type Option func(*Writer)

// WithCodec selects the codec for one column. The default is raw for
// numeric columns and uncompressed varstring for string columns.
func WithCodec(column string, codec format.CodecType) Option {
	return func(w *Writer) {
		w.codecs[column] = codec
	}
}

// WithBlockCompression compresses the framed payload of every
// codec-encoded numeric block (gorilla, delta, rle) with the given
// algorithm on top of its codec. Raw numeric payloads stay uncompressed
// to preserve zero-copy reads; string blocks are not compressed by this
// option.
func WithBlockCompression(ct format.CompressionType) Option {
	return func(w *Writer) {
		w.compression = ct
	}
}

// WithTombstone marks the segment as carrying a tombstone sidecar.
func WithTombstone() Option {
	return func(w *Writer) {
		w.tombstone = true
	}
}

// Writer appends row batches to a segment file. A writer is single-owner:
// writes to one segment are serial and never reentrant. Existing blocks
// are never rewritten; reopening appends further blocks and Close updates
// the header's total row count in place.
type Writer struct {
	path        string
	file        *os.File
	header      *Header
	schema      []table.ColumnDef
	codecs      map[string]format.CodecType
	compression format.CompressionType
	region      int
	offset      int64
	tombstone   bool
	closed      bool
}

// Open creates a segment at path, or reopens an existing one for append.
// On reopen the stored schema must match; codec options are taken from
// the stored header.
func Open(path string, schema []table.ColumnDef, opts ...Option) (*Writer, error) {
	w := &Writer{
		path:        path,
		schema:      schema,
		codecs:      make(map[string]format.CodecType),
		compression: format.CompressionNone,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.validateCodecs(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errs.Wrap(errs.KindIo, err, "open segment")
	}
	w.file = file

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errs.Wrap(errs.KindIo, err, "stat segment")
	}

	if info.Size() > 0 {
		if err := w.reopen(info.Size()); err != nil {
			file.Close()
			return nil, err
		}

		return w, nil
	}

	w.header = &Header{
		Magic:     headerMagic,
		Version:   FormatVersion,
		Columns:   make([]HeaderColumn, 0, len(schema)),
		Codecs:    make(map[string]string),
		Tombstone: w.tombstone,
	}
	if w.compression != format.CompressionNone {
		w.header.Compression = w.compression.String()
	}
	for _, def := range schema {
		w.header.Columns = append(w.header.Columns, HeaderColumn{Name: def.Name, Type: def.Type.String()})
		if codec, ok := w.codecs[def.Name]; ok {
			w.header.Codecs[def.Name] = codec.String()
		}
	}

	region, err := encodeHeaderRegion(w.header, 0)
	if err != nil {
		file.Close()
		return nil, err
	}
	if _, err := file.WriteAt(region, 0); err != nil {
		file.Close()
		return nil, errs.Wrap(errs.KindIo, err, "write segment header")
	}
	w.region = len(region)
	w.offset = int64(len(region))

	return w, nil
}

func (w *Writer) validateCodecs() error {
	byName := make(map[string]format.ColumnType, len(w.schema))
	for _, def := range w.schema {
		byName[def.Name] = def.Type
	}

	for name, codec := range w.codecs {
		typ, ok := byName[name]
		if !ok {
			return errs.Newf(errs.KindNotFound, "codec for unknown column %q", name)
		}
		switch codec {
		case format.CodecRaw:
		case format.CodecGorilla:
			if typ != format.TypeFloat64 {
				return errs.Newf(errs.KindUnsupported, "gorilla codec requires f64, column %q is %s", name, typ)
			}
		case format.CodecDelta:
			if typ != format.TypeInt64 {
				return errs.Newf(errs.KindUnsupported, "delta codec requires i64, column %q is %s", name, typ)
			}
		case format.CodecRLE:
			if typ != format.TypeInt16 && typ != format.TypeInt32 && typ != format.TypeInt64 {
				return errs.Newf(errs.KindUnsupported, "rle codec requires an integer column, column %q is %s", name, typ)
			}
		case format.CodecZstd:
			if typ != format.TypeString {
				return errs.Newf(errs.KindUnsupported, "zstd codec requires a string column, column %q is %s", name, typ)
			}
		default:
			return errs.Newf(errs.KindUnsupported, "unknown codec for column %q", name)
		}
	}

	return nil
}

func (w *Writer) reopen(size int64) error {
	head := make([]byte, 4)
	if _, err := w.file.ReadAt(head, 0); err != nil {
		return errs.Wrap(errs.KindIo, err, "read segment header length")
	}
	headerLen := int(binary.LittleEndian.Uint32(head))
	regionBytes := make([]byte, 4+headerLen)
	if _, err := w.file.ReadAt(regionBytes, 0); err != nil {
		return errs.Wrap(errs.KindIo, err, "read segment header")
	}

	header, payloadStart, err := parseHeader(regionBytes)
	if err != nil {
		return err
	}

	if len(header.Columns) != len(w.schema) {
		return errs.Wrap(errs.KindTypeMismatch, errs.ErrColumnCountMismatch, "segment reopen")
	}
	for i, def := range w.schema {
		if header.Columns[i].Name != def.Name || header.Columns[i].Type != def.Type.String() {
			return errs.Newf(errs.KindTypeMismatch, "segment schema mismatch at column %q", def.Name)
		}
	}

	w.header = header
	w.region = payloadStart
	w.offset = size
	w.tombstone = header.Tombstone
	if header.Compression != "" {
		for _, ct := range []format.CompressionType{format.CompressionZstd, format.CompressionS2, format.CompressionLZ4} {
			if ct.String() == header.Compression {
				w.compression = ct
			}
		}
	}
	// Codec selection is authoritative from the stored header.
	w.codecs = make(map[string]format.CodecType, len(header.Codecs))
	for name := range header.Codecs {
		codec, err := header.Codec(name)
		if err != nil {
			return err
		}
		w.codecs[name] = codec
	}

	return nil
}

// Append validates the batch against the schema and writes one block per
// column in declaration order. Multiple batches accumulate; readers
// reassemble per-column blocks in append order.
func (w *Writer) Append(rows []map[string]any) error {
	if w.closed {
		return errs.New(errs.KindIo, "segment writer is closed")
	}
	if len(rows) == 0 {
		return nil
	}

	byName := make(map[string]struct{}, len(w.schema))
	for _, def := range w.schema {
		byName[def.Name] = struct{}{}
	}
	for i, row := range rows {
		for name := range row {
			if _, ok := byName[name]; !ok {
				return errs.Wrapf(errs.KindTypeMismatch, errs.ErrColumnCountMismatch, "row %d has unknown column %q", i, name)
			}
		}
	}

	for _, def := range w.schema {
		if err := w.appendColumnBlock(def, rows); err != nil {
			return err
		}
	}
	w.header.RowCount += len(rows)

	return nil
}

func (w *Writer) appendColumnBlock(def table.ColumnDef, rows []map[string]any) error {
	codec := w.codecs[def.Name]
	if codec == 0 {
		codec = format.CodecRaw
	}
	n := len(rows)

	cell := func(i int) table.Value {
		v, ok := rows[i][def.Name]
		if !ok {
			return table.Null()
		}

		return table.FromAny(v)
	}

	switch codec {
	case format.CodecRaw:
		if def.Type == format.TypeString {
			payload := encodeVarstring(rows, def.Name, cell, n)

			return w.writeFramedBlock(def.Name, codec, n, payload, false)
		}

		return w.writeRawBlock(def, cell, n)
	case format.CodecGorilla:
		enc := encoding.NewGorillaEncoder(10*n + 16)
		for i := 0; i < n; i++ {
			if err := enc.Write(cell(i).Float64()); err != nil {
				return err
			}
		}
		payload, err := enc.Bytes()
		if err != nil {
			return err
		}

		return w.writeFramedBlock(def.Name, codec, n, payload, true)
	case format.CodecDelta:
		enc := encoding.NewDeltaEncoder(10*n + 16)
		for i := 0; i < n; i++ {
			if err := enc.Write(cell(i).Int64()); err != nil {
				return err
			}
		}
		payload, err := enc.Bytes()
		if err != nil {
			return err
		}

		return w.writeFramedBlock(def.Name, codec, n, payload, true)
	case format.CodecRLE:
		enc := encoding.NewRLEEncoder(22*n + 16)
		for i := 0; i < n; i++ {
			if err := enc.Write(cell(i).Int64()); err != nil {
				return err
			}
		}
		payload, err := enc.Bytes()
		if err != nil {
			return err
		}

		return w.writeFramedBlock(def.Name, codec, n, payload, true)
	case format.CodecZstd:
		payload := encodeVarstring(rows, def.Name, cell, n)
		compressed, err := compress.NewZstdCompressor().Compress(payload)
		if err != nil {
			return errs.Wrap(errs.KindIo, err, "compress string column")
		}

		return w.writeFramedBlock(def.Name, codec, n, compressed, false)
	default:
		return errs.Newf(errs.KindUnsupported, "codec %s for column %q", codec, def.Name)
	}
}

func encodeVarstring(rows []map[string]any, name string, cell func(int) table.Value, n int) []byte {
	size := 0
	vals := make([]string, n)
	for i := 0; i < n; i++ {
		v := cell(i)
		if !v.IsNull() {
			vals[i] = v.Text()
		}
		size += 4 + len(vals[i])
	}

	payload := make([]byte, 0, size)
	for _, s := range vals {
		payload = binary.LittleEndian.AppendUint32(payload, uint32(len(s)))
		payload = append(payload, s...)
	}

	return payload
}

// writeRawBlock writes a densely packed numeric payload at the next
// 8-byte aligned offset so mapped readers can reinterpret it in place.
func (w *Writer) writeRawBlock(def table.ColumnDef, cell func(int) table.Value, n int) error {
	if err := w.padTo(align8int64(w.offset)); err != nil {
		return err
	}

	width := def.Type.Width()
	bb := pool.GetSegmentBuffer()
	defer pool.PutSegmentBuffer(bb)
	start := bb.ExtendOrGrow(width * n)
	payload := bb.B[start:]
	for i := 0; i < n; i++ {
		v := cell(i)
		switch def.Type {
		case format.TypeInt16:
			binary.LittleEndian.PutUint16(payload[i*2:], uint16(int16(v.Int64())))
		case format.TypeInt32:
			binary.LittleEndian.PutUint32(payload[i*4:], uint32(int32(v.Int64())))
		case format.TypeInt64:
			binary.LittleEndian.PutUint64(payload[i*8:], uint64(v.Int64()))
		case format.TypeFloat64:
			binary.LittleEndian.PutUint64(payload[i*8:], math.Float64bits(v.Float64()))
		}
	}

	offset := w.offset
	if _, err := w.file.WriteAt(payload, offset); err != nil {
		return errs.Wrap(errs.KindIo, err, "write raw block")
	}
	w.offset = offset + int64(len(payload))
	w.header.Blocks = append(w.header.Blocks, HeaderBlock{
		Column: def.Name,
		Codec:  format.CodecRaw.String(),
		Offset: offset,
		Length: int64(len(payload)),
		Rows:   n,
	})

	return nil
}

// writeFramedBlock writes {u32 count, u32 length, u32 crc32, payload} at
// the current offset. compressible selects whether the writer-level block
// compression applies.
func (w *Writer) writeFramedBlock(column string, codec format.CodecType, rows int, payload []byte, compressible bool) error {
	if compressible && w.compression != format.CompressionNone {
		blockCodec, err := compress.GetCodec(w.compression)
		if err != nil {
			return err
		}
		payload, err = blockCodec.Compress(payload)
		if err != nil {
			return errs.Wrap(errs.KindIo, err, "block compression")
		}
	}

	frame := make([]byte, 12)
	binary.LittleEndian.PutUint32(frame[0:4], uint32(rows))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(payload)))
	binary.LittleEndian.PutUint32(frame[8:12], crc32.ChecksumIEEE(payload))

	offset := w.offset
	if _, err := w.file.WriteAt(frame, offset); err != nil {
		return errs.Wrap(errs.KindIo, err, "write block frame")
	}
	if _, err := w.file.WriteAt(payload, offset+12); err != nil {
		return errs.Wrap(errs.KindIo, err, "write block payload")
	}
	w.offset = offset + 12 + int64(len(payload))
	w.header.Blocks = append(w.header.Blocks, HeaderBlock{
		Column: column,
		Codec:  codec.String(),
		Offset: offset,
		Length: 12 + int64(len(payload)),
		Rows:   rows,
	})

	return nil
}

func (w *Writer) padTo(target int64) error {
	if target <= w.offset {
		return nil
	}

	pad := make([]byte, target-w.offset)
	if _, err := w.file.WriteAt(pad, w.offset); err != nil {
		return errs.Wrap(errs.KindIo, err, "pad segment")
	}
	w.offset = target

	return nil
}

// RowCount returns the total rows appended across all batches.
func (w *Writer) RowCount() int { return w.header.RowCount }

// Path returns the segment file path.
func (w *Writer) Path() string { return w.path }

// Close flushes pending bytes and rewrites the header with the final row
// count and block table. The writer is unusable afterwards.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	region, err := encodeHeaderRegion(w.header, w.region)
	if err != nil {
		w.file.Close()
		return err
	}
	if _, err := w.file.WriteAt(region, 0); err != nil {
		w.file.Close()
		return errs.Wrap(errs.KindIo, err, "rewrite segment header")
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return errs.Wrap(errs.KindIo, err, "sync segment")
	}

	return w.file.Close()
}

func align8int64(n int64) int64 {
	return (n + 7) &^ 7
}

// Tombstone reports whether the segment was opened with a tombstone
// sidecar.
func (w *Writer) Tombstone() bool { return w.tombstone }
