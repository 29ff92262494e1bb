package table

import (
	"github.com/google/btree"

	"github.com/arloliu/ndts/errs"
)

// Index is an ordered secondary index over one or more columns, backed by
// a B-tree keyed on the composite value tuple. It answers exact-match
// probes, single-column range scans, and composite prefix matches with a
// range on the last column.
//
// Appends are indexed incrementally; in-place updates mark the index dirty
// and the next probe rebuilds it from the base columns.
type Index struct {
	name    string
	table   *Table
	columns []*Column
	tree    *btree.BTreeG[*indexEntry]
	dirty   bool
}

type indexEntry struct {
	key  []Value
	rows []int
}

func lessEntries(a, b *indexEntry) bool {
	n := len(a.key)
	if len(b.key) < n {
		n = len(b.key)
	}
	for i := 0; i < n; i++ {
		if c := a.key[i].Compare(b.key[i]); c != 0 {
			return c < 0
		}
	}

	return len(a.key) < len(b.key)
}

// CreateIndex registers an index over the named columns and builds it from
// the current rows.
func (t *Table) CreateIndex(name string, columns []string) (*Index, error) {
	if len(columns) == 0 {
		return nil, errs.New(errs.KindInvariant, "index needs at least one column")
	}

	cols := make([]*Column, 0, len(columns))
	for _, cn := range columns {
		col, err := t.Column(cn)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}

	idx := &Index{
		name:    name,
		table:   t,
		columns: cols,
		tree:    btree.NewG(16, lessEntries),
	}
	idx.rebuild()
	t.indexes[name] = idx

	return idx, nil
}

// Index returns the named index, or nil.
func (t *Table) Index(name string) *Index {
	return t.indexes[name]
}

// Indexes returns all registered indexes.
func (t *Table) Indexes() []*Index {
	out := make([]*Index, 0, len(t.indexes))
	for _, idx := range t.indexes {
		out = append(out, idx)
	}

	return out
}

// FindIndex returns a registered index whose column list starts with the
// given columns, preferring an exact-length match.
func (t *Table) FindIndex(columns []string) *Index {
	var prefixMatch *Index
	for _, idx := range t.indexes {
		if len(idx.columns) < len(columns) {
			continue
		}
		match := true
		for i, cn := range columns {
			if idx.columns[i].Name() != cn {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		if len(idx.columns) == len(columns) {
			return idx
		}
		if prefixMatch == nil {
			prefixMatch = idx
		}
	}

	return prefixMatch
}

// ColumnNames returns the indexed column names in key order.
func (idx *Index) ColumnNames() []string {
	names := make([]string, len(idx.columns))
	for i, col := range idx.columns {
		names[i] = col.Name()
	}

	return names
}

// reindexRow feeds an appended row into every index; UpdateRow marks
// every index dirty instead.
func (t *Table) reindexRow(row int) {
	for _, idx := range t.indexes {
		idx.insertRow(row)
	}
}

func (idx *Index) insertRow(row int) {
	if idx.dirty {
		return
	}
	if row < idx.table.rowCount-1 {
		// In-place mutation; defer to a rebuild.
		idx.dirty = true
		return
	}

	key := idx.keyAt(row)
	probe := &indexEntry{key: key}
	if entry, ok := idx.tree.Get(probe); ok {
		entry.rows = append(entry.rows, row)
		return
	}
	probe.rows = []int{row}
	idx.tree.ReplaceOrInsert(probe)
}

func (idx *Index) keyAt(row int) []Value {
	key := make([]Value, len(idx.columns))
	for i, col := range idx.columns {
		key[i] = col.Value(row)
	}

	return key
}

func (idx *Index) rebuild() {
	idx.tree.Clear(false)
	for row := 0; row < idx.table.rowCount; row++ {
		key := idx.keyAt(row)
		probe := &indexEntry{key: key}
		if entry, ok := idx.tree.Get(probe); ok {
			entry.rows = append(entry.rows, row)
			continue
		}
		probe.rows = []int{row}
		idx.tree.ReplaceOrInsert(probe)
	}
	idx.dirty = false
}

func (idx *Index) ensureFresh() {
	if idx.dirty {
		idx.rebuild()
	}
}

// LookupEqual returns the row ids whose full key equals values, in
// insertion order.
func (idx *Index) LookupEqual(values []Value) []int {
	idx.ensureFresh()

	entry, ok := idx.tree.Get(&indexEntry{key: values})
	if !ok {
		return nil
	}

	return entry.rows
}

// RangeBound is one side of a range probe.
type RangeBound struct {
	Value     Value
	Inclusive bool
}

// LookupRange returns row ids matching the prefix values exactly with the
// next key column constrained by the optional min/max bounds. A nil bound
// is unbounded on that side. Row ids are returned in key order.
func (idx *Index) LookupRange(prefix []Value, min, max *RangeBound) []int {
	idx.ensureFresh()

	if len(prefix) >= len(idx.columns) {
		return idx.LookupEqual(prefix)
	}

	var rows []int
	idx.tree.AscendGreaterOrEqual(&indexEntry{key: prefix}, func(entry *indexEntry) bool {
		// Stop once the prefix no longer matches.
		for i, pv := range prefix {
			if entry.key[i].Compare(pv) != 0 {
				return false
			}
		}

		last := entry.key[len(prefix)]
		if min != nil {
			c := last.Compare(min.Value)
			if c < 0 || (c == 0 && !min.Inclusive) {
				return true
			}
		}
		if max != nil {
			c := last.Compare(max.Value)
			if c > 0 || (c == 0 && !max.Inclusive) {
				// Keys are ordered; past the max means done for this prefix.
				if c > 0 {
					return false
				}
				return true
			}
		}

		rows = append(rows, entry.rows...)
		return true
	})

	return rows
}
