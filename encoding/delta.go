package encoding

import (
	"encoding/binary"
	"iter"

	"github.com/arloliu/ndts/errs"
)

// DeltaEncoder compresses int64 timestamp sequences with delta-of-delta
// encoding.
//
// Layout:
//  1. The first timestamp is stored raw as 8 little-endian bytes.
//  2. The second is stored as its delta from the first, zig-zag varint.
//  3. Each later timestamp stores the difference between consecutive
//     deltas, zig-zag varint.
//
// Regular inter-arrival times collapse to one byte per timestamp. The
// output buffer is allocated once at construction; exceeding it fails
// with a BufferFull error.
type DeltaEncoder struct {
	buf       []byte
	prevTS    int64
	prevDelta int64
	count     int
	failed    bool
}

// NewDeltaEncoder creates an encoder with the given output capacity in
// bytes. Worst case is 8 bytes for the first value and up to 10 bytes per
// subsequent value for arbitrary sequences.
func NewDeltaEncoder(capacity int) *DeltaEncoder {
	return &DeltaEncoder{buf: make([]byte, 0, capacity)}
}

// Write encodes a single timestamp.
func (e *DeltaEncoder) Write(ts int64) error {
	if e.failed {
		return errs.Wrap(errs.KindBufferFull, errs.ErrBufferFull, "delta encoder capacity exceeded")
	}

	e.count++

	if e.count == 1 {
		if cap(e.buf)-len(e.buf) < 8 {
			return e.fail()
		}
		e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(ts))
		e.prevTS = ts

		return nil
	}

	delta := ts - e.prevTS
	valToEncode := delta
	if e.count > 2 {
		valToEncode = delta - e.prevDelta
	}

	var ok bool
	e.buf, ok = AppendUvarint(e.buf, ZigZag(valToEncode))
	if !ok {
		return e.fail()
	}

	e.prevTS = ts
	e.prevDelta = delta

	return nil
}

// WriteSlice encodes a slice of timestamps sequentially.
func (e *DeltaEncoder) WriteSlice(timestamps []int64) error {
	for _, ts := range timestamps {
		if err := e.Write(ts); err != nil {
			return err
		}
	}

	return nil
}

// Len returns the number of timestamps encoded.
func (e *DeltaEncoder) Len() int { return e.count }

// Bytes returns the encoded payload.
func (e *DeltaEncoder) Bytes() ([]byte, error) {
	if e.failed {
		return nil, errs.Wrap(errs.KindBufferFull, errs.ErrBufferFull, "delta encoder capacity exceeded")
	}

	return e.buf, nil
}

// Reset clears all encoder state, retaining the buffer.
func (e *DeltaEncoder) Reset() {
	e.buf = e.buf[:0]
	e.prevTS = 0
	e.prevDelta = 0
	e.count = 0
	e.failed = false
}

func (e *DeltaEncoder) fail() error {
	e.failed = true
	e.count--

	return errs.Wrap(errs.KindBufferFull, errs.ErrBufferFull, "delta encoder capacity exceeded")
}

// DeltaDecoder decodes timestamp sequences produced by DeltaEncoder.
// The decoder is stateless and reusable across streams.
type DeltaDecoder struct{}

// NewDeltaDecoder creates a stateless delta-of-delta decoder.
func NewDeltaDecoder() DeltaDecoder { return DeltaDecoder{} }

// Decode reconstructs count timestamps from data. A truncated or overlong
// varint fails with a Corrupt error.
func (d DeltaDecoder) Decode(data []byte, count int) ([]int64, error) {
	if count == 0 {
		return nil, nil
	}

	out := make([]int64, 0, count)
	for ts, err := range d.all(data, count) {
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}

	return out, nil
}

// All yields count timestamps decoded from data, stopping early on
// malformed input. Use Decode when the error must be surfaced.
func (d DeltaDecoder) All(data []byte, count int) iter.Seq[int64] {
	return func(yield func(int64) bool) {
		for ts, err := range d.all(data, count) {
			if err != nil || !yield(ts) {
				return
			}
		}
	}
}

func (DeltaDecoder) all(data []byte, count int) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		if count <= 0 {
			return
		}
		if len(data) < 8 {
			yield(0, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "delta: first timestamp"))
			return
		}

		curTS := int64(binary.LittleEndian.Uint64(data[:8]))
		if !yield(curTS, nil) || count == 1 {
			return
		}

		offset := 8
		zigzag, offset, ok := Uvarint(data, offset)
		if !ok {
			yield(0, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "delta: first delta"))
			return
		}

		delta := UnZigZag(zigzag)
		curTS += delta
		if !yield(curTS, nil) {
			return
		}

		prevDelta := delta
		for produced := 2; produced < count; produced++ {
			ddZigzag, next, ok := Uvarint(data, offset)
			if !ok {
				yield(0, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "delta: delta-of-delta"))
				return
			}
			offset = next

			prevDelta += UnZigZag(ddZigzag)
			curTS += prevDelta
			if !yield(curTS, nil) {
				return
			}
		}
	}
}
