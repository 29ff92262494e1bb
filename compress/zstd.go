package compress

// ZstdCompressor provides Zstandard block compression.
//
// Zstd favors compression ratio over speed, which suits string column
// payloads and cold segments. Two implementations exist behind build tags:
// a cgo-accelerated path (gozstd, tag cgo_zstd) and a portable pure-Go
// path (klauspost/compress). Both produce interchangeable frames.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a Zstd codec with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
