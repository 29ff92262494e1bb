package replay

import (
	"container/heap"
	"iter"
	"sort"

	"github.com/arloliu/ndts/table"
)

// MergeOption configures a Merge engine.
type MergeOption func(*Merge)

// WithTimeRange restricts replay to ticks with timestamps in the
// half-open interval [start, end).
func WithTimeRange(start, end int64) MergeOption {
	return func(m *Merge) {
		m.start = start
		m.end = end
		m.hasRange = true
	}
}

// WithPriceColumn selects the column snapshots read prices from.
// The default is "price".
func WithPriceColumn(name string) MergeOption {
	return func(m *Merge) {
		m.priceColumn = name
	}
}

// Merge reconstructs a globally time-ordered stream from the pool's
// per-symbol segments using a min-heap keyed by (timestamp, symbol
// insertion order). Each symbol contributes exactly its next unread row;
// ties across symbols at one timestamp resolve in stable insertion order.
type Merge struct {
	pool        *Pool
	tsColumn    string
	priceColumn string
	start       int64
	end         int64
	hasRange    bool
}

// NewMerge creates a merge engine over the pool's symbols, ordered by the
// named millisecond timestamp column.
func NewMerge(pool *Pool, tsColumn string, opts ...MergeOption) *Merge {
	m := &Merge{
		pool:        pool,
		tsColumn:    tsColumn,
		priceColumn: "price",
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Tick is one timestamped observation of one symbol, materialized on
// demand; its values own their contents.
type Tick struct {
	Timestamp int64
	Symbol    string
	Values    table.Row
}

// Snapshot maps every symbol ticking at one timestamp to its price.
type Snapshot struct {
	Timestamp int64
	Prices    map[string]float64
}

// cursor walks one symbol's rows. It references the pool's column
// borrows, not copies of the values.
type cursor struct {
	symbol  string
	order   int
	ts      []int64
	columns []*table.Column
	pos     int
	end     int
}

type tickHeap []*cursor

func (h tickHeap) Len() int { return len(h) }

func (h tickHeap) Less(i, j int) bool {
	ti, tj := h[i].ts[h[i].pos], h[j].ts[h[j].pos]
	if ti != tj {
		return ti < tj
	}

	return h[i].order < h[j].order
}

func (h tickHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *tickHeap) Push(x any) { *h = append(*h, x.(*cursor)) }

func (h *tickHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]

	return c
}

func (m *Merge) newCursor(symbol string, order int) (*cursor, error) {
	tsCol, err := m.pool.Column(symbol, m.tsColumn)
	if err != nil {
		return nil, err
	}
	ts, err := tsCol.Int64s()
	if err != nil {
		return nil, err
	}

	reader, err := m.pool.Reader(symbol)
	if err != nil {
		return nil, err
	}
	columns := make([]*table.Column, 0, len(reader.Header().Columns))
	for _, hc := range reader.Header().Columns {
		col, err := reader.Column(hc.Name)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}

	c := &cursor{
		symbol:  symbol,
		order:   order,
		ts:      ts,
		columns: columns,
		end:     len(ts),
	}
	if m.hasRange {
		c.pos = sort.Search(len(ts), func(i int) bool { return ts[i] >= m.start })
		c.end = sort.Search(len(ts), func(i int) bool { return ts[i] >= m.end })
	}

	return c, nil
}

// TickIterator is a lazy, finite, non-restartable tick stream. It owns
// the min-heap and the per-symbol cursors; Close releases them. The
// stream holds the pool open, so a slow consumer costs no extra memory.
type TickIterator struct {
	heap   tickHeap
	closed bool
}

// ReplayTicks builds the merged tick stream over the engine's time range.
func (m *Merge) ReplayTicks() (*TickIterator, error) {
	it := &TickIterator{heap: make(tickHeap, 0, len(m.pool.Symbols()))}
	for order, symbol := range m.pool.Symbols() {
		c, err := m.newCursor(symbol, order)
		if err != nil {
			return nil, err
		}
		if c.pos < c.end {
			it.heap = append(it.heap, c)
		}
	}
	heap.Init(&it.heap)

	return it, nil
}

// Next yields the next tick in globally non-decreasing timestamp order.
// It returns false once every cursor is drained or the iterator closed.
func (it *TickIterator) Next() (Tick, bool) {
	if it.closed || len(it.heap) == 0 {
		return Tick{}, false
	}

	c := it.heap[0]
	tick := Tick{
		Timestamp: c.ts[c.pos],
		Symbol:    c.symbol,
		Values:    make(table.Row, len(c.columns)),
	}
	for _, col := range c.columns {
		tick.Values[col.Name()] = col.Value(c.pos)
	}

	c.pos++
	if c.pos < c.end {
		heap.Fix(&it.heap, 0)
	} else {
		heap.Pop(&it.heap)
	}

	return tick, true
}

// Seek advances every cursor to its first row with timestamp >= ts.
func (it *TickIterator) Seek(ts int64) {
	if it.closed {
		return
	}

	kept := it.heap[:0]
	for _, c := range it.heap {
		rel := c.ts[c.pos:c.end]
		c.pos += sort.Search(len(rel), func(i int) bool { return rel[i] >= ts })
		if c.pos < c.end {
			kept = append(kept, c)
		}
	}
	it.heap = kept
	heap.Init(&it.heap)
}

// Close releases the cursors; subsequent Next calls return false.
func (it *TickIterator) Close() {
	it.closed = true
	it.heap = nil
}

// All yields the remaining ticks; stopping early leaves the iterator
// usable from where iteration stopped.
func (it *TickIterator) All() iter.Seq[Tick] {
	return func(yield func(Tick) bool) {
		for {
			tick, ok := it.Next()
			if !ok || !yield(tick) {
				return
			}
		}
	}
}

// SnapshotIterator groups consecutive equal-timestamp ticks into
// snapshots, one per distinct timestamp.
type SnapshotIterator struct {
	ticks       *TickIterator
	priceColumn string
	pending     Tick
	hasPending  bool
}

// ReplaySnapshots builds the snapshot stream over the engine's time
// range.
func (m *Merge) ReplaySnapshots() (*SnapshotIterator, error) {
	ticks, err := m.ReplayTicks()
	if err != nil {
		return nil, err
	}

	return &SnapshotIterator{ticks: ticks, priceColumn: m.priceColumn}, nil
}

// Next yields the next snapshot, or false when the stream is drained.
func (s *SnapshotIterator) Next() (Snapshot, bool) {
	var first Tick
	if s.hasPending {
		first = s.pending
		s.hasPending = false
	} else {
		var ok bool
		first, ok = s.ticks.Next()
		if !ok {
			return Snapshot{}, false
		}
	}

	snap := Snapshot{
		Timestamp: first.Timestamp,
		Prices:    map[string]float64{first.Symbol: first.Values[s.priceColumn].Float64()},
	}
	for {
		tick, ok := s.ticks.Next()
		if !ok {
			return snap, true
		}
		if tick.Timestamp != snap.Timestamp {
			s.pending = tick
			s.hasPending = true

			return snap, true
		}
		snap.Prices[tick.Symbol] = tick.Values[s.priceColumn].Float64()
	}
}

// Close releases the underlying tick iterator.
func (s *SnapshotIterator) Close() {
	s.ticks.Close()
}

// AsOf returns, per symbol, the last row with timestamp <= ts, found by
// binary search on each per-symbol timestamp column. Symbols with no such
// row are absent from the result.
func (m *Merge) AsOf(ts int64) (map[string]table.Row, error) {
	out := make(map[string]table.Row, len(m.pool.Symbols()))
	for order, symbol := range m.pool.Symbols() {
		c, err := m.newCursor(symbol, order)
		if err != nil {
			return nil, err
		}

		// First index with timestamp > ts; the row before it is the as-of.
		idx := sort.Search(len(c.ts), func(i int) bool { return c.ts[i] > ts })
		if idx == 0 {
			continue
		}

		row := make(table.Row, len(c.columns))
		for _, col := range c.columns {
			row[col.Name()] = col.Value(idx - 1)
		}
		out[symbol] = row
	}

	return out, nil
}
