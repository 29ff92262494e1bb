package encoding

import (
	"math"
	"math/bits"

	"github.com/arloliu/ndts/errs"
)

// GorillaEncoder compresses float64 sequences with XOR-based compression in
// the manner of Facebook's Gorilla paper.
//
// The encoding per value:
//  1. The first value is stored as its raw 64 bits.
//  2. Each subsequent value is XORed with the previous one. A zero XOR
//     (value unchanged) stores a single 0 bit.
//  3. A non-zero XOR stores a 1 bit, then either a 0 bit plus the meaningful
//     middle bits when the previous block's leading/trailing zero window
//     still covers the XOR, or a 1 bit, a 6-bit leading-zero count, a 6-bit
//     meaningful-bit count, and the meaningful bits.
//
// Round-trip is bit-exact for any float64 sequence including NaN payloads
// and infinities. The encoder allocates its output buffer once at
// construction; exceeding it fails with a BufferFull error.
type GorillaEncoder struct {
	bw           *BitWriter
	prevValue    uint64
	count        int
	prevLeading  int
	prevTrailing int
	prevWindow   bool
	firstValue   bool
}

// NewGorillaEncoder creates an encoder with the given output capacity in
// bytes. The worst case is 9.75 bytes per value (2 control bits,
// 12 descriptor bits, 64 meaningful bits); capacity should be sized
// accordingly when the data may be incompressible.
func NewGorillaEncoder(capacity int) *GorillaEncoder {
	return &GorillaEncoder{
		bw:         NewBitWriter(capacity),
		firstValue: true,
	}
}

// Write encodes a single value.
func (e *GorillaEncoder) Write(val float64) error {
	valBits := math.Float64bits(val)
	e.count++

	if e.firstValue {
		e.firstValue = false
		e.prevValue = valBits

		return e.bw.WriteBits(valBits, 64)
	}

	return e.writeValue(valBits)
}

// WriteSlice encodes a slice of values sequentially.
func (e *GorillaEncoder) WriteSlice(values []float64) error {
	for _, v := range values {
		if err := e.Write(v); err != nil {
			return err
		}
	}

	return nil
}

// Len returns the number of values encoded.
func (e *GorillaEncoder) Len() int { return e.count }

// Bytes finalizes the stream, padding the last byte with zero bits, and
// returns the encoded payload.
func (e *GorillaEncoder) Bytes() ([]byte, error) {
	return e.bw.Bytes()
}

// Reset clears all encoder state, including the output buffer.
func (e *GorillaEncoder) Reset() {
	e.bw.Reset()
	e.prevValue = 0
	e.count = 0
	e.prevLeading = 0
	e.prevTrailing = 0
	e.prevWindow = false
	e.firstValue = true
}

func (e *GorillaEncoder) writeValue(valBits uint64) error {
	xor := valBits ^ e.prevValue
	e.prevValue = valBits

	if xor == 0 {
		return e.bw.WriteBit(0)
	}

	if err := e.bw.WriteBit(1); err != nil {
		return err
	}

	leading := bits.LeadingZeros64(xor)
	trailing := bits.TrailingZeros64(xor)

	if e.prevWindow && leading >= e.prevLeading && trailing >= e.prevTrailing {
		// Previous window still covers the XOR: reuse it.
		if err := e.bw.WriteBit(0); err != nil {
			return err
		}

		return e.bw.WriteBits(xor>>e.prevTrailing, 64-e.prevLeading-e.prevTrailing)
	}

	blockSize := 64 - leading - trailing
	if err := e.bw.WriteBit(1); err != nil {
		return err
	}
	// 6-bit leading-zero count, 6-bit meaningful-bit count (1-64, stored
	// biased by one), then the meaningful bits.
	if err := e.bw.WriteBits(uint64(leading), 6); err != nil {
		return err
	}
	if err := e.bw.WriteBits(uint64(blockSize-1), 6); err != nil {
		return err
	}
	if err := e.bw.WriteBits(xor>>trailing, blockSize); err != nil {
		return err
	}

	e.prevLeading = leading
	e.prevTrailing = trailing
	e.prevWindow = true

	return nil
}

// GorillaDecoder decodes float64 values compressed by GorillaEncoder.
//
// The decoder is stateless; a single instance can decode any number of
// independent streams.
type GorillaDecoder struct{}

// NewGorillaDecoder creates a stateless Gorilla decoder.
func NewGorillaDecoder() GorillaDecoder { return GorillaDecoder{} }

// Decode reconstructs count values from data. It fails with a Corrupt error
// on a truncated stream or an inconsistent block descriptor; it stops once
// count values have been produced, ignoring the final byte's zero padding.
func (GorillaDecoder) Decode(data []byte, count int) ([]float64, error) {
	if count == 0 {
		return nil, nil
	}
	if len(data) == 0 {
		return nil, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "gorilla: empty payload")
	}

	out := make([]float64, 0, count)
	br := NewBitReader(data)

	firstBits, ok := br.ReadBits(64)
	if !ok {
		return nil, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "gorilla: first value")
	}

	prevValue := firstBits
	out = append(out, math.Float64frombits(prevValue))

	trailing, blockSize := 0, 0
	window := false

	for len(out) < count {
		controlBit, ok := br.ReadBit()
		if !ok {
			return nil, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "gorilla: control bit")
		}

		if controlBit == 0 {
			out = append(out, math.Float64frombits(prevValue))
			continue
		}

		windowBit, ok := br.ReadBit()
		if !ok {
			return nil, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "gorilla: window bit")
		}

		if windowBit == 1 {
			leading, ok := br.Read6Bits()
			if !ok {
				return nil, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "gorilla: leading count")
			}
			sizeBits, ok := br.Read6Bits()
			if !ok {
				return nil, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "gorilla: block size")
			}
			blockSize = sizeBits + 1
			trailing = 64 - leading - blockSize
			if trailing < 0 {
				return nil, errs.Wrap(errs.KindCorrupt, errs.ErrInvalidBlockSize, "gorilla")
			}
			window = true
		} else if !window {
			return nil, errs.Wrap(errs.KindCorrupt, errs.ErrInvalidBlockSize, "gorilla: window reuse before definition")
		}

		meaningful, ok := br.ReadBits(blockSize)
		if !ok {
			return nil, errs.Wrap(errs.KindCorrupt, errs.ErrTruncatedPayload, "gorilla: meaningful bits")
		}

		prevValue ^= meaningful << uint(trailing)
		out = append(out, math.Float64frombits(prevValue))
	}

	return out, nil
}
