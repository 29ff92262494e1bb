// Package ndts is an embedded columnar time-series store for financial
// market data: ticks, K-lines, and quotes.
//
// The engine decomposes into focused packages:
//
//   - encoding: Gorilla XOR, delta-of-delta, and run-length codecs over a
//     bounded bit reader/writer.
//   - compress: optional whole-block compression (zstd, s2, lz4) layered
//     on the codecs.
//   - table: in-memory columnar tables with typed column arrays, explicit
//     capacity growth, aggregation, downsampling, and secondary indexes.
//   - segment: the append-only on-disk segment format with per-column
//     compressed blocks, CRC validation, and memory-mapped zero-copy
//     reads.
//   - tombstone: per-segment logical-delete sidecars.
//   - partition: time/range/hash routed partitioned tables with pruning.
//   - replay: the mmap reader pool and the k-way merge engine for tick
//     replay, grouped snapshots, and as-of lookups.
//   - sql: the analytics SQL subset, including window functions with ROWS
//     frames, CTEs, UPSERT, and tail fast paths.
//
// This file provides thin constructors for the common assembly: open a
// partitioned store, query it through SQL, and replay merged ticks.
package ndts

import (
	"go.uber.org/zap"

	"github.com/arloliu/ndts/format"
	"github.com/arloliu/ndts/partition"
	"github.com/arloliu/ndts/replay"
	"github.com/arloliu/ndts/sql"
	"github.com/arloliu/ndts/table"
)

// Re-exported scalar types of the storage engine.
const (
	TypeInt16   = format.TypeInt16
	TypeInt32   = format.TypeInt32
	TypeInt64   = format.TypeInt64
	TypeFloat64 = format.TypeFloat64
	TypeString  = format.TypeString
)

// NewTable creates an in-memory columnar table.
func NewTable(name string, schema []table.ColumnDef, initialCapacity int) (*table.Table, error) {
	return table.Create(name, schema, initialCapacity)
}

// NewEngine creates a SQL engine over the given tables.
func NewEngine(tables ...*table.Table) *sql.Engine {
	engine := sql.NewEngine()
	for _, tbl := range tables {
		engine.Register(tbl)
	}

	return engine
}

// OpenDayPartitioned opens a partitioned table routed by day over the
// named millisecond timestamp column.
func OpenDayPartitioned(baseDir string, schema []table.ColumnDef, tsColumn string, logger *zap.Logger) (*partition.Table, error) {
	opts := []partition.Option{}
	if logger != nil {
		opts = append(opts, partition.WithLogger(logger))
	}

	return partition.Open(baseDir, schema, partition.NewTimeStrategy(tsColumn, format.GranularityDay), opts...)
}

// OpenReplay maps the given symbols' segments under baseDir and returns a
// merge engine ordered by tsColumn.
func OpenReplay(symbols []string, baseDir, tsColumn string, logger *zap.Logger) (*replay.Pool, *replay.Merge, error) {
	opts := []replay.PoolOption{}
	if logger != nil {
		opts = append(opts, replay.WithPoolLogger(logger))
	}

	pool, err := replay.Init(symbols, baseDir, opts...)
	if err != nil {
		return nil, nil, err
	}

	return pool, replay.NewMerge(pool, tsColumn), nil
}
