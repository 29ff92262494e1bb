// Package compress provides whole-block compression for segment payloads.
//
// Block compression sits on top of the per-column codecs: a column payload
// is first encoded (gorilla, delta, rle, raw) and the resulting block may
// then be compressed as a unit. The zstd implementation has a cgo-backed
// accelerated path selected by the cgo_zstd build tag; absent the tag the
// portable pure-Go path is used, so behavior stays deterministic across
// build configurations.
package compress

import (
	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/format"
)

// Compressor compresses one block of encoded column data.
//
// Memory contract: the input slice is not modified. Compressing codecs
// return a newly allocated slice owned by the caller; NoOpCompressor
// returns the input slice itself. Implementations may reuse internal
// buffers across calls.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor reverses a Compressor. Implementations must be safe for
// concurrent use across distinct data blocks.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions.
type Codec interface {
	Compressor
	Decompressor
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionNone: NewNoOpCompressor(),
	format.CompressionZstd: NewZstdCompressor(),
	format.CompressionS2:   NewS2Compressor(),
	format.CompressionLZ4:  NewLZ4Compressor(),
}

// GetCodec returns the built-in Codec for the compression type.
func GetCodec(compressionType format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, errs.Newf(errs.KindUnsupported, "unsupported compression type: %s", compressionType)
}
