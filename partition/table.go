package partition

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/format"
	"github.com/arloliu/ndts/segment"
	"github.com/arloliu/ndts/table"
	"github.com/arloliu/ndts/tombstone"
)

const (
	// SegmentSuffix names partition data files.
	SegmentSuffix = ".ndts"

	// maxCacheSize bounds the per-hash-key per-column max cache.
	maxCacheSize = 1024
)

// Option configures a partitioned Table.
type Option func(*Table)

// WithLogger supplies a logger; the default is a nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Table) {
		t.logger = logger
	}
}

// WithSegmentOptions forwards options to every lazily opened segment
// writer (codec selection, block compression).
func WithSegmentOptions(opts ...segment.Option) Option {
	return func(t *Table) {
		t.segmentOpts = opts
	}
}

// Meta describes one partition.
type Meta struct {
	Label    string
	Path     string
	RowCount int
	// MinKey and MaxKey bound the partition key when derivable from the
	// label (time strategy only); both are zero otherwise.
	MinKey int64
	MaxKey int64
}

// TimeRange is a half-open millisecond interval [Start, End).
type TimeRange struct {
	Start int64
	End   int64
}

// Hint fixes the hash column's value for GetMax so the probe can address
// a single partition and its memoized max.
type Hint struct {
	Column string
	Value  any
}

// Table routes rows into per-partition segments and serves pruned,
// tombstone-aware queries over them.
type Table struct {
	baseDir     string
	schema      []table.ColumnDef
	strategy    Strategy
	segmentOpts []segment.Option
	logger      *zap.Logger

	mu       sync.Mutex
	tombs    map[string]*tombstone.Tombstone
	maxCache *lru.Cache[string, float64]
	listed   bool
	known    map[string]*Meta
}

// Open creates a partitioned table rooted at baseDir. Partitions are
// created lazily on first matching write.
func Open(baseDir string, schema []table.ColumnDef, strategy Strategy, opts ...Option) (*Table, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindIo, err, "create partition directory")
	}

	cache, _ := lru.New[string, float64](maxCacheSize)
	t := &Table{
		baseDir:  baseDir,
		schema:   schema,
		strategy: strategy,
		logger:   zap.NewNop(),
		tombs:    make(map[string]*tombstone.Tombstone),
		maxCache: cache,
		known:    make(map[string]*Meta),
	}
	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// Strategy returns the routing strategy.
func (t *Table) Strategy() Strategy { return t.strategy }

func (t *Table) segmentPath(label string) string {
	return filepath.Join(t.baseDir, label+SegmentSuffix)
}

// Append groups rows by partition label and appends each group to its
// segment through a lazily opened writer. A failed write to one partition
// does not impair writes to sibling partitions; all failures are joined
// into the returned error.
func (t *Table) Append(rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	groups := make(map[string][]map[string]any)
	order := make([]string, 0, 4)
	for i, row := range rows {
		label, err := t.strategy.Label(row)
		if err != nil {
			return errs.Wrapf(errs.KindOf(err), err, "routing row %d", i)
		}
		if _, seen := groups[label]; !seen {
			order = append(order, label)
		}
		groups[label] = append(groups[label], row)
	}

	var failures []error
	for _, label := range order {
		if err := t.appendToPartition(label, groups[label]); err != nil {
			t.logger.Warn("partition append failed",
				zap.String("label", label),
				zap.Error(err))
			failures = append(failures, errs.Wrapf(errs.KindOf(err), err, "partition %q", label))
		}
	}

	return errors.Join(failures...)
}

func (t *Table) appendToPartition(label string, rows []map[string]any) error {
	w, err := segment.Open(t.segmentPath(label), t.schema, t.segmentOpts...)
	if err != nil {
		return err
	}

	if err := w.Append(rows); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	t.mu.Lock()
	meta, ok := t.known[label]
	if !ok {
		meta = &Meta{Label: label, Path: w.Path()}
		t.fillLabelBounds(meta)
		t.known[label] = meta
	}
	meta.RowCount += len(rows)
	t.mu.Unlock()

	return nil
}

func (t *Table) fillLabelBounds(meta *Meta) {
	if ts, ok := t.strategy.(*TimeStrategy); ok {
		if min, max, err := ts.LabelRange(meta.Label); err == nil {
			meta.MinKey, meta.MaxKey = min, max
		}
	}
}

// ListPartitions returns partition metadata sorted by label. On first use
// it scans the base directory, reading each segment header in parallel to
// recover row counts; corrupt segments are logged and skipped.
func (t *Table) ListPartitions() ([]Meta, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.listed {
		if err := t.scanBaseDirLocked(); err != nil {
			return nil, err
		}
		t.listed = true
	}

	metas := make([]Meta, 0, len(t.known))
	for _, meta := range t.known {
		metas = append(metas, *meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Label < metas[j].Label })

	return metas, nil
}

func (t *Table) scanBaseDirLocked() error {
	entries, err := os.ReadDir(t.baseDir)
	if err != nil {
		return errs.Wrap(errs.KindIo, err, "scan partition directory")
	}

	type scanned struct {
		meta *Meta
	}

	var g errgroup.Group
	results := make([]scanned, len(entries))
	for i, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, SegmentSuffix) || strings.HasSuffix(name, tombstone.Suffix) {
			continue
		}
		label := strings.TrimSuffix(name, SegmentSuffix)
		if _, ok := t.known[label]; ok {
			continue
		}

		path := filepath.Join(t.baseDir, name)
		g.Go(func() error {
			header, err := segment.ReadHeader(path)
			if err != nil {
				// Corrupt segments do not abort enumeration.
				t.logger.Warn("skipping unreadable segment",
					zap.String("path", path),
					zap.Error(err))
				return nil
			}
			meta := &Meta{Label: label, Path: path, RowCount: header.RowCount}
			t.fillLabelBounds(meta)
			results[i] = scanned{meta: meta}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, res := range results {
		if res.meta != nil {
			t.known[res.meta.Label] = res.meta
		}
	}

	return nil
}

// Tombstone returns the sidecar of a partition, loading it on first use.
func (t *Table) Tombstone(label string) (*tombstone.Tombstone, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.tombstoneLocked(label)
}

func (t *Table) tombstoneLocked(label string) (*tombstone.Tombstone, error) {
	if tomb, ok := t.tombs[label]; ok {
		return tomb, nil
	}

	tomb, err := tombstone.LoadForSegment(t.segmentPath(label))
	if err != nil {
		return nil, err
	}
	t.tombs[label] = tomb

	return tomb, nil
}

// MarkDeleted records row ids of a partition as logically deleted and
// saves the sidecar.
func (t *Table) MarkDeleted(label string, rowIDs []uint32) error {
	tomb, err := t.Tombstone(label)
	if err != nil {
		return err
	}

	tomb.MarkBatch(rowIDs)

	return tomb.Save()
}

// Query scans candidate partitions in label order. With a time range and
// a time strategy, partitions whose label interval does not overlap the
// range are pruned without touching their files. Tombstoned rows are
// skipped, then the optional predicate applies. Rows come back in
// partition then insertion order.
func (t *Table) Query(predicate func(table.Row) bool, timeRange *TimeRange) ([]table.Row, error) {
	metas, err := t.ListPartitions()
	if err != nil {
		return nil, err
	}

	var out []table.Row
	for _, meta := range metas {
		if t.pruned(meta, timeRange) {
			continue
		}

		rows, err := t.scanPartition(meta, predicate, timeRange)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}

	return out, nil
}

func (t *Table) pruned(meta Meta, timeRange *TimeRange) bool {
	if timeRange == nil || t.strategy.Kind() != format.PartitionTime {
		return false
	}
	if meta.MinKey == 0 && meta.MaxKey == 0 {
		return false
	}

	// Keep the partition when [MinKey, MaxKey) overlaps [Start, End).
	return meta.MaxKey <= timeRange.Start || meta.MinKey >= timeRange.End
}

func (t *Table) scanPartition(meta Meta, predicate func(table.Row) bool, timeRange *TimeRange) ([]table.Row, error) {
	reader, err := segment.OpenReader(meta.Path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	tbl, err := reader.Table(meta.Label)
	if err != nil {
		return nil, err
	}

	tomb, err := t.Tombstone(meta.Label)
	if err != nil {
		return nil, err
	}

	var timeColumn string
	if ts, ok := t.strategy.(*TimeStrategy); ok {
		timeColumn = ts.Column
	}

	rows := make([]table.Row, 0, tbl.RowCount())
	for i := 0; i < tbl.RowCount(); i++ {
		if tomb.Contains(uint32(i)) {
			continue
		}

		row, err := tbl.Row(i)
		if err != nil {
			return nil, err
		}
		if timeRange != nil && timeColumn != "" {
			ts := row[timeColumn].Int64()
			if ts < timeRange.Start || ts >= timeRange.End {
				continue
			}
		}
		if predicate != nil && !predicate(row) {
			continue
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// GetMax returns the maximum of a column across matching partitions.
//
// With a time strategy only the most recent partition by label is
// scanned. With a hash strategy and a hint fixing the hash column's
// value, a memoized per-key per-column max is probed first; misses fall
// back to scanning the key's partition and populate the cache. The cache
// is only invalidated by ClearMaxCache, so out-of-band deletes may leave
// it stale.
func (t *Table) GetMax(column string, predicate func(table.Row) bool, hint *Hint) (float64, error) {
	if hs, ok := t.strategy.(*HashStrategy); ok && hint != nil && hint.Column == hs.Column && predicate == nil {
		key := table.FromAny(hint.Value).Text()
		cacheKey := key + "\x00" + column
		if max, ok := t.maxCache.Get(cacheKey); ok {
			return max, nil
		}

		max, err := t.scanMax([]string{t.labelForKey(hs, key)}, column, predicate)
		if err != nil {
			return 0, err
		}
		t.maxCache.Add(cacheKey, max)

		return max, nil
	}

	metas, err := t.ListPartitions()
	if err != nil {
		return 0, err
	}
	if len(metas) == 0 {
		return 0, errs.Newf(errs.KindNotFound, "no partitions under %s", t.baseDir)
	}

	labels := make([]string, 0, len(metas))
	if t.strategy.Kind() == format.PartitionTime {
		// Only the most recent partition can hold the maximum timestamped
		// rows; labels sort chronologically.
		labels = append(labels, metas[len(metas)-1].Label)
	} else {
		for _, meta := range metas {
			labels = append(labels, meta.Label)
		}
	}

	return t.scanMax(labels, column, predicate)
}

func (t *Table) labelForKey(hs *HashStrategy, key string) string {
	row := map[string]any{hs.Column: key}
	label, _ := hs.Label(row)

	return label
}

func (t *Table) scanMax(labels []string, column string, predicate func(table.Row) bool) (float64, error) {
	best := 0.0
	seen := false
	for _, label := range labels {
		meta := Meta{Label: label, Path: t.segmentPath(label)}
		if _, err := os.Stat(meta.Path); os.IsNotExist(err) {
			continue
		}

		rows, err := t.scanPartition(meta, predicate, nil)
		if err != nil {
			return 0, err
		}
		for _, row := range rows {
			v, ok := row[column]
			if !ok {
				return 0, errs.Newf(errs.KindNotFound, "column %q", column)
			}
			if !seen || v.Float64() > best {
				best = v.Float64()
				seen = true
			}
		}
	}

	if !seen {
		return 0, errs.Newf(errs.KindNotFound, "no rows match in column %q", column)
	}

	return best, nil
}

// ClearMaxCache drops every memoized per-key max.
func (t *Table) ClearMaxCache() {
	t.maxCache.Purge()
}

// Compact rewrites a partition's segment without its tombstoned rows and
// deletes the sidecar. It is the only operation that destroys a
// partition's previous materialization.
func (t *Table) Compact(label string) error {
	path := t.segmentPath(label)
	reader, err := segment.OpenReader(path)
	if err != nil {
		return err
	}

	tbl, err := reader.Table(label)
	if err != nil {
		reader.Close()
		return err
	}

	tomb, err := t.Tombstone(label)
	if err != nil {
		reader.Close()
		return err
	}

	survivors := make([]map[string]any, 0, tbl.RowCount())
	for i := 0; i < tbl.RowCount(); i++ {
		if tomb.Contains(uint32(i)) {
			continue
		}
		row, err := tbl.Row(i)
		if err != nil {
			reader.Close()
			return err
		}
		generic := make(map[string]any, len(row))
		for k, v := range row {
			generic[k] = v.Raw()
		}
		survivors = append(survivors, generic)
	}
	if err := reader.Close(); err != nil {
		return err
	}

	tmpPath := path + ".compact"
	w, err := segment.Open(tmpPath, t.schema, t.segmentOpts...)
	if err != nil {
		return err
	}
	if err := w.Append(survivors); err != nil {
		w.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := w.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return errs.Wrap(errs.KindIo, err, "replace compacted segment")
	}
	if err := tomb.Delete(); err != nil {
		return err
	}

	t.mu.Lock()
	delete(t.tombs, label)
	if meta, ok := t.known[label]; ok {
		meta.RowCount = len(survivors)
	}
	t.mu.Unlock()
	t.logger.Debug("compacted partition",
		zap.String("label", label),
		zap.Int("rows", len(survivors)))

	return nil
}

// Close saves any dirty tombstones.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var failures []error
	for _, tomb := range t.tombs {
		if err := tomb.Save(); err != nil {
			failures = append(failures, err)
		}
	}

	return errors.Join(failures...)
}
