package encoding

import "github.com/arloliu/ndts/errs"

// RLEEncoder run-length encodes int64 sequences as (value, run) pairs.
//
// The value is zig-zag varint encoded, the run length plain varint. The
// scheme is lossless for any sequence but only compact when runs are long,
// which makes it the codec of choice for low-cardinality integer columns
// such as enum-like flags. The output buffer is allocated once at
// construction; exceeding it fails with a BufferFull error.
type RLEEncoder struct {
	buf     []byte
	current int64
	run     uint64
	count   int
	failed  bool
}

// NewRLEEncoder creates an encoder with the given output capacity in bytes.
func NewRLEEncoder(capacity int) *RLEEncoder {
	return &RLEEncoder{buf: make([]byte, 0, capacity)}
}

// Write encodes a single value, extending the open run when it repeats.
func (e *RLEEncoder) Write(v int64) error {
	if e.failed {
		return errs.Wrap(errs.KindBufferFull, errs.ErrBufferFull, "rle encoder capacity exceeded")
	}

	if e.run > 0 && v == e.current {
		e.run++
		e.count++

		return nil
	}

	if err := e.flushRun(); err != nil {
		return err
	}

	e.current = v
	e.run = 1
	e.count++

	return nil
}

// WriteSlice encodes a slice of values sequentially.
func (e *RLEEncoder) WriteSlice(values []int64) error {
	for _, v := range values {
		if err := e.Write(v); err != nil {
			return err
		}
	}

	return nil
}

// Len returns the number of values encoded.
func (e *RLEEncoder) Len() int { return e.count }

// Bytes closes the open run and returns the encoded payload.
func (e *RLEEncoder) Bytes() ([]byte, error) {
	if e.failed {
		return nil, errs.Wrap(errs.KindBufferFull, errs.ErrBufferFull, "rle encoder capacity exceeded")
	}
	if err := e.flushRun(); err != nil {
		return nil, err
	}

	return e.buf, nil
}

// Reset clears all encoder state, retaining the buffer.
func (e *RLEEncoder) Reset() {
	e.buf = e.buf[:0]
	e.current = 0
	e.run = 0
	e.count = 0
	e.failed = false
}

func (e *RLEEncoder) flushRun() error {
	if e.run == 0 {
		return nil
	}

	var ok bool
	e.buf, ok = AppendUvarint(e.buf, ZigZag(e.current))
	if !ok {
		return e.fail()
	}
	e.buf, ok = AppendUvarint(e.buf, e.run)
	if !ok {
		return e.fail()
	}
	e.run = 0

	return nil
}

func (e *RLEEncoder) fail() error {
	e.failed = true

	return errs.Wrap(errs.KindBufferFull, errs.ErrBufferFull, "rle encoder capacity exceeded")
}

// RLEDecoder decodes run-length encoded int64 sequences.
// The decoder is stateless and reusable across streams.
type RLEDecoder struct{}

// NewRLEDecoder creates a stateless run-length decoder.
func NewRLEDecoder() RLEDecoder { return RLEDecoder{} }

// Decode reconstructs count values from data. It fails with a Corrupt
// error when the pairs are truncated or a run overflows count; bytes
// after the pair that completes count values are not read.
func (RLEDecoder) Decode(data []byte, count int) ([]int64, error) {
	out := make([]int64, 0, count)
	offset := 0

	for len(out) < count {
		zigzag, next, ok := Uvarint(data, offset)
		if !ok {
			return nil, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "rle: value")
		}
		offset = next

		run, next, ok := Uvarint(data, offset)
		if !ok {
			return nil, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "rle: run length")
		}
		offset = next

		if run == 0 || run > uint64(count-len(out)) {
			return nil, errs.Wrap(errs.KindCorrupt, errs.ErrInvalidBlockSize, "rle: run overflows declared count")
		}

		value := UnZigZag(zigzag)
		for i := uint64(0); i < run; i++ {
			out = append(out, value)
		}
	}

	return out, nil
}
