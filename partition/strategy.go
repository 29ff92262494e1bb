// Package partition implements the partitioned table: rows are routed to
// per-partition segment files by a time, range, or hash strategy, queries
// prune partitions by time overlap, and tombstone sidecars filter
// logically deleted rows at read time.
package partition

import (
	"strconv"
	"time"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/format"
	"github.com/arloliu/ndts/table"
)

// Strategy routes a row to a partition label.
type Strategy interface {
	// Label derives the partition label for one row.
	Label(row map[string]any) (string, error)
	// Kind identifies the strategy for pruning decisions.
	Kind() format.PartitionStrategy
}

// TimeStrategy buckets rows by a millisecond timestamp column into
// day, month, or year partitions labeled with the bucket's ISO prefix.
type TimeStrategy struct {
	Column      string
	Granularity format.TimeGranularity
}

// NewTimeStrategy creates a time bucketing strategy over the named
// timestamp column.
func NewTimeStrategy(column string, granularity format.TimeGranularity) *TimeStrategy {
	return &TimeStrategy{Column: column, Granularity: granularity}
}

func (s *TimeStrategy) Kind() format.PartitionStrategy { return format.PartitionTime }

func (s *TimeStrategy) layout() string {
	switch s.Granularity {
	case format.GranularityMonth:
		return "2006-01"
	case format.GranularityYear:
		return "2006"
	default:
		return "2006-01-02"
	}
}

// Label formats the row's bucket as YYYY-MM-DD, YYYY-MM, or YYYY.
func (s *TimeStrategy) Label(row map[string]any) (string, error) {
	v, ok := row[s.Column]
	if !ok {
		return "", errs.Newf(errs.KindNotFound, "time partition column %q missing from row", s.Column)
	}
	ts := table.FromAny(v).Int64()

	return time.UnixMilli(ts).UTC().Format(s.layout()), nil
}

// LabelRange returns the half-open millisecond interval [min, max) covered
// by a partition label, used for pruning.
func (s *TimeStrategy) LabelRange(label string) (int64, int64, error) {
	start, err := time.ParseInLocation(s.layout(), label, time.UTC)
	if err != nil {
		return 0, 0, errs.Wrapf(errs.KindCorrupt, err, "partition label %q", label)
	}

	var end time.Time
	switch s.Granularity {
	case format.GranularityMonth:
		end = start.AddDate(0, 1, 0)
	case format.GranularityYear:
		end = start.AddDate(1, 0, 0)
	default:
		end = start.AddDate(0, 0, 1)
	}

	return start.UnixMilli(), end.UnixMilli(), nil
}

// RangeSpec is one explicit partition of a range strategy.
type RangeSpec struct {
	Min   float64
	Max   float64
	Label string
}

// RangeStrategy routes rows by a numeric column into explicit
// [Min, Max) ranges.
type RangeStrategy struct {
	Column string
	Ranges []RangeSpec
}

// NewRangeStrategy creates a range routing strategy over the named
// numeric column.
func NewRangeStrategy(column string, ranges []RangeSpec) *RangeStrategy {
	return &RangeStrategy{Column: column, Ranges: ranges}
}

func (s *RangeStrategy) Kind() format.PartitionStrategy { return format.PartitionRange }

// Label selects the first range containing the row's value.
func (s *RangeStrategy) Label(row map[string]any) (string, error) {
	v, ok := row[s.Column]
	if !ok {
		return "", errs.Newf(errs.KindNotFound, "range partition column %q missing from row", s.Column)
	}

	x := table.FromAny(v).Float64()
	for _, r := range s.Ranges {
		if x >= r.Min && x < r.Max {
			return r.Label, nil
		}
	}

	return "", errs.Newf(errs.KindNotFound, "value %v outside every partition range", v)
}

// HashStrategy routes rows by a stable 32-bit hash of the column's UTF-8
// string form into a fixed number of buckets.
type HashStrategy struct {
	Column  string
	Buckets int
}

// NewHashStrategy creates a hash routing strategy with the given bucket
// count.
func NewHashStrategy(column string, buckets int) *HashStrategy {
	return &HashStrategy{Column: column, Buckets: buckets}
}

func (s *HashStrategy) Kind() format.PartitionStrategy { return format.PartitionHash }

// StableHash computes h = h*31 + b over the UTF-8 bytes, masked to 32
// bits, then takes the absolute value of the signed interpretation. The
// function is pinned: segment placement depends on it.
func StableHash(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*32 - h + uint32(s[i])
	}

	signed := int32(h)
	if signed < 0 {
		return uint32(-int64(signed))
	}

	return uint32(signed)
}

// Bucket returns the bucket index for a key.
func (s *HashStrategy) Bucket(key string) int {
	return int(StableHash(key) % uint32(s.Buckets))
}

// Label returns the bucket index, in decimal, for the row.
func (s *HashStrategy) Label(row map[string]any) (string, error) {
	v, ok := row[s.Column]
	if !ok {
		return "", errs.Newf(errs.KindNotFound, "hash partition column %q missing from row", s.Column)
	}

	return strconv.Itoa(s.Bucket(table.FromAny(v).Text())), nil
}
