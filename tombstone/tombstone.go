// Package tombstone implements the per-segment logical-delete sidecar: a
// roaring bitmap of deleted row ids, persisted next to the segment file
// with the `.tomb` suffix.
//
// The sidecar is a hint, not an authoritative record: a dirty bitmap that
// is never saved loses its deletions, which readers tolerate.
package tombstone

import (
	"encoding/binary"
	"os"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/arloliu/ndts/errs"
)

const (
	// Suffix is appended to the segment path to name its sidecar.
	Suffix = ".tomb"

	magic         = "TOMB"
	formatVersion = 1
)

// Tombstone is the set of logically deleted row ids of one segment.
// Row ids are dense indices into the segment.
type Tombstone struct {
	path   string
	bitmap *roaring.Bitmap
	dirty  bool
}

// New creates an empty tombstone bound to the sidecar path.
func New(path string) *Tombstone {
	return &Tombstone{path: path, bitmap: roaring.New()}
}

// ForSegment creates an empty tombstone for the given segment file path.
func ForSegment(segmentPath string) *Tombstone {
	return New(segmentPath + Suffix)
}

// Load reads a sidecar from disk. A missing file yields an empty, clean
// tombstone; a malformed file fails with Corrupt.
func Load(path string) (*Tombstone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(path), nil
		}

		return nil, errs.Wrap(errs.KindIo, err, "read tombstone")
	}

	if len(data) < 12 {
		return nil, errs.Wrap(errs.KindCorrupt, errs.ErrInvalidHeaderSize, "tombstone")
	}
	if string(data[0:4]) != magic {
		return nil, errs.Wrap(errs.KindCorrupt, errs.ErrInvalidMagicNumber, "tombstone")
	}
	if binary.LittleEndian.Uint32(data[4:8]) != formatVersion {
		return nil, errs.Wrap(errs.KindCorrupt, errs.ErrInvalidVersion, "tombstone")
	}

	payloadLen := int(binary.LittleEndian.Uint32(data[8:12]))
	if 12+payloadLen > len(data) {
		return nil, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "tombstone")
	}

	payload := data[12 : 12+payloadLen]
	if len(payload) < 4 {
		return nil, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "tombstone payload")
	}
	count := int(binary.LittleEndian.Uint32(payload[0:4]))
	if 4+count*4 != len(payload) {
		return nil, errs.Wrap(errs.KindCorrupt, errs.ErrInvalidBlockSize, "tombstone payload")
	}

	t := New(path)
	for i := 0; i < count; i++ {
		t.bitmap.Add(binary.LittleEndian.Uint32(payload[4+i*4:]))
	}

	return t, nil
}

// LoadForSegment loads the sidecar of the given segment file path.
func LoadForSegment(segmentPath string) (*Tombstone, error) {
	return Load(segmentPath + Suffix)
}

// Path returns the sidecar file path.
func (t *Tombstone) Path() string { return t.path }

// Mark records the row id as deleted. Repeated marks are idempotent.
func (t *Tombstone) Mark(rowID uint32) {
	if t.bitmap.CheckedAdd(rowID) {
		t.dirty = true
	}
}

// MarkBatch records many row ids as deleted.
func (t *Tombstone) MarkBatch(rowIDs []uint32) {
	for _, id := range rowIDs {
		t.Mark(id)
	}
}

// Contains reports whether the row id is deleted. It is consistent with
// ToVec at any observable point.
func (t *Tombstone) Contains(rowID uint32) bool {
	return t.bitmap.Contains(rowID)
}

// Cardinality returns the number of deleted row ids.
func (t *Tombstone) Cardinality() uint64 {
	return t.bitmap.GetCardinality()
}

// ToVec returns the sorted list of deleted row ids.
func (t *Tombstone) ToVec() []uint32 {
	return t.bitmap.ToArray()
}

// Dirty reports whether there are unsaved marks.
func (t *Tombstone) Dirty() bool { return t.dirty }

// Save persists the sidecar. It is a no-op when there are no unsaved
// changes.
func (t *Tombstone) Save() error {
	if !t.dirty {
		return nil
	}

	ids := t.bitmap.ToArray()
	payload := make([]byte, 4+len(ids)*4)
	binary.LittleEndian.PutUint32(payload[0:4], uint32(len(ids)))
	for i, id := range ids {
		binary.LittleEndian.PutUint32(payload[4+i*4:], id)
	}

	buf := make([]byte, 0, 12+len(payload))
	buf = append(buf, magic...)
	buf = binary.LittleEndian.AppendUint32(buf, formatVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)

	if err := os.WriteFile(t.path, buf, 0o644); err != nil {
		return errs.Wrap(errs.KindIo, err, "write tombstone")
	}
	t.dirty = false

	return nil
}

// Clear drops every mark, leaving cardinality 0.
func (t *Tombstone) Clear() {
	if t.bitmap.IsEmpty() {
		return
	}
	t.bitmap.Clear()
	t.dirty = true
}

// Delete removes the sidecar file and clears the in-memory set.
func (t *Tombstone) Delete() error {
	t.bitmap.Clear()
	t.dirty = false

	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.KindIo, err, "remove tombstone")
	}

	return nil
}
