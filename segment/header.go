// Package segment implements the on-disk columnar segment: an append-only
// file holding a self-describing JSON header followed by per-column
// payloads, either raw (densely packed, 8-byte aligned for zero-copy
// reads) or framed compressed blocks with a CRC.
package segment

import (
	"bytes"
	"encoding/binary"

	"github.com/goccy/go-json"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/format"
)

const (
	// FormatVersion is the segment file version; it starts at 1.
	FormatVersion = 1

	// headerMagic identifies a segment header.
	headerMagic = "NDTS"

	// headerSlack is extra space reserved in the header region at creation
	// so the row count and block table can be rewritten in place on close
	// and on reopen-append without moving payload bytes. JSON decoders
	// skip the trailing whitespace padding.
	headerSlack = 4096
)

// HeaderColumn describes one column of the segment schema.
type HeaderColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// HeaderBlock locates one column block within the file. Raw numeric blocks
// start at an 8-byte aligned offset and hold Rows densely packed elements;
// framed blocks start with the {count, length, crc} frame.
type HeaderBlock struct {
	Column string `json:"col"`
	Codec  string `json:"codec"`
	Offset int64  `json:"off"`
	Length int64  `json:"len"`
	Rows   int    `json:"rows"`
}

// Header is the segment's self-describing metadata block.
type Header struct {
	Magic       string            `json:"magic"`
	Version     int               `json:"version"`
	RowCount    int               `json:"rowCount"`
	Columns     []HeaderColumn    `json:"columns"`
	Codecs      map[string]string `json:"codecs,omitempty"`
	Compression string            `json:"compression,omitempty"`
	Tombstone   bool              `json:"tombstone,omitempty"`
	Blocks      []HeaderBlock     `json:"blocks"`
}

// ColumnType returns the declared type of the named column.
func (h *Header) ColumnType(name string) (format.ColumnType, bool) {
	for _, c := range h.Columns {
		if c.Name == name {
			return format.ParseColumnType(c.Type)
		}
	}

	return 0, false
}

// Codec returns the codec of the named column, defaulting to raw.
func (h *Header) Codec(name string) (format.CodecType, error) {
	id, ok := h.Codecs[name]
	if !ok || id == "" {
		return format.CodecRaw, nil
	}

	codec, known := format.ParseCodecType(id)
	if !known {
		return 0, errs.Newf(errs.KindUnsupported, "unknown codec identifier %q", id)
	}

	return codec, nil
}

// encodeHeaderRegion marshals the header and lays out the fixed header
// region: u32 length, JSON bytes space-padded to the region, which itself
// ends on an 8-byte boundary.
func encodeHeaderRegion(h *Header, region int) ([]byte, error) {
	headerBytes, err := json.Marshal(h)
	if err != nil {
		return nil, errs.Wrap(errs.KindIo, err, "marshal segment header")
	}

	if region == 0 {
		region = align8(4 + len(headerBytes) + headerSlack)
	}
	if 4+len(headerBytes) > region {
		return nil, errs.Newf(errs.KindIo, "segment header region exhausted (%d bytes into %d)", len(headerBytes), region)
	}

	buf := make([]byte, region)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(region-4))
	copy(buf[4:], headerBytes)
	for i := 4 + len(headerBytes); i < region; i++ {
		buf[i] = ' '
	}

	return buf, nil
}

// parseHeader decodes the header region at the start of data and returns
// the header plus the payload start offset.
func parseHeader(data []byte) (*Header, int, error) {
	if len(data) < 4 {
		return nil, 0, errs.Wrap(errs.KindCorrupt, errs.ErrInvalidHeaderSize, "segment")
	}

	headerLen := int(binary.LittleEndian.Uint32(data[0:4]))
	if headerLen <= 0 || 4+headerLen > len(data) {
		return nil, 0, errs.Wrap(errs.KindCorrupt, errs.ErrInvalidHeaderSize, "segment")
	}

	var h Header
	raw := bytes.TrimRight(data[4:4+headerLen], " \x00")
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, 0, errs.Wrap(errs.KindCorrupt, err, "parse segment header")
	}

	if h.Magic != headerMagic {
		return nil, 0, errs.Wrap(errs.KindCorrupt, errs.ErrInvalidMagicNumber, "segment")
	}
	if h.Version != FormatVersion {
		return nil, 0, errs.Wrap(errs.KindCorrupt, errs.ErrInvalidVersion, "segment")
	}

	return &h, align8(4 + headerLen), nil
}

func align8(n int) int {
	return (n + 7) &^ 7
}
