// Package format defines the shared type, codec and compression identifiers
// used across the NDTS storage engine.
package format

type (
	// ColumnType identifies the scalar type of a column. It is fixed at
	// column creation and never changes for the lifetime of the table.
	ColumnType uint8

	// CodecType identifies the per-column codec used inside a segment file.
	CodecType uint8

	// CompressionType identifies an optional whole-block compression applied
	// on top of a codec's output.
	CompressionType uint8

	// PartitionStrategy identifies how a partitioned table routes rows to
	// segments.
	PartitionStrategy uint8

	// TimeGranularity is the bucket width of a time partition strategy.
	TimeGranularity uint8
)

const (
	TypeInt16   ColumnType = 0x1 // TypeInt16 is a signed 16-bit integer column.
	TypeInt32   ColumnType = 0x2 // TypeInt32 is a signed 32-bit integer column.
	TypeInt64   ColumnType = 0x3 // TypeInt64 is a signed 64-bit integer column.
	TypeFloat64 ColumnType = 0x4 // TypeFloat64 is an IEEE-754 binary64 column.
	TypeString  ColumnType = 0x5 // TypeString is an opaque string column.
)

const (
	CodecRaw     CodecType = 0x1 // CodecRaw stores values densely packed, uncompressed.
	CodecGorilla CodecType = 0x2 // CodecGorilla is XOR compression for float64 values.
	CodecDelta   CodecType = 0x3 // CodecDelta is delta-of-delta encoding for int64 timestamps.
	CodecRLE     CodecType = 0x4 // CodecRLE is run-length encoding for low-cardinality integers.
	CodecZstd    CodecType = 0x5 // CodecZstd is zstd block compression, used for string payloads.
)

const (
	CompressionNone CompressionType = 0x1 // CompressionNone applies no block compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd applies Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 applies S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 applies LZ4 compression.
)

const (
	PartitionTime  PartitionStrategy = 0x1 // PartitionTime buckets rows by a timestamp column.
	PartitionRange PartitionStrategy = 0x2 // PartitionRange routes rows by explicit numeric ranges.
	PartitionHash  PartitionStrategy = 0x3 // PartitionHash routes rows by a stable string hash.
)

const (
	GranularityDay   TimeGranularity = 0x1 // GranularityDay labels partitions YYYY-MM-DD.
	GranularityMonth TimeGranularity = 0x2 // GranularityMonth labels partitions YYYY-MM.
	GranularityYear  TimeGranularity = 0x3 // GranularityYear labels partitions YYYY.
)

// Width returns the element width in bytes for fixed-width column types,
// or 0 for variable-width (string) columns.
func (t ColumnType) Width() int {
	switch t {
	case TypeInt16:
		return 2
	case TypeInt32:
		return 4
	case TypeInt64, TypeFloat64:
		return 8
	default:
		return 0
	}
}

// Numeric reports whether the column type is a fixed-width numeric type.
func (t ColumnType) Numeric() bool {
	return t == TypeInt16 || t == TypeInt32 || t == TypeInt64 || t == TypeFloat64
}

func (t ColumnType) String() string {
	switch t {
	case TypeInt16:
		return "i16"
	case TypeInt32:
		return "i32"
	case TypeInt64:
		return "i64"
	case TypeFloat64:
		return "f64"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// ParseColumnType maps the on-disk type name to its ColumnType.
// It returns false when the name is not a known type.
func ParseColumnType(s string) (ColumnType, bool) {
	switch s {
	case "i16":
		return TypeInt16, true
	case "i32":
		return TypeInt32, true
	case "i64":
		return TypeInt64, true
	case "f64":
		return TypeFloat64, true
	case "string":
		return TypeString, true
	default:
		return 0, false
	}
}

func (c CodecType) String() string {
	switch c {
	case CodecRaw:
		return "raw"
	case CodecGorilla:
		return "gorilla"
	case CodecDelta:
		return "delta"
	case CodecRLE:
		return "rle"
	case CodecZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCodecType maps the on-disk codec identifier to its CodecType.
// It returns false for unknown identifiers; callers surface Unsupported.
func ParseCodecType(s string) (CodecType, bool) {
	switch s {
	case "raw":
		return CodecRaw, true
	case "gorilla":
		return CodecGorilla, true
	case "delta":
		return CodecDelta, true
	case "rle":
		return CodecRLE, true
	case "zstd":
		return CodecZstd, true
	default:
		return 0, false
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

func (s PartitionStrategy) String() string {
	switch s {
	case PartitionTime:
		return "time"
	case PartitionRange:
		return "range"
	case PartitionHash:
		return "hash"
	default:
		return "unknown"
	}
}
