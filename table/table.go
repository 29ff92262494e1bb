// Package table implements the in-memory columnar table: typed column
// arrays sharing one row count, with explicit capacity growth, row and
// batch append, updates, slicing, filtering, aggregation, time-bucket
// downsampling, and numeric binary persistence.
package table

import (
	"math"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/format"
)

// ColumnDef declares one column of a schema.
type ColumnDef struct {
	Name string
	Type format.ColumnType
}

// Row is a materialized record: column name to owned Value.
type Row map[string]Value

// Table is an ordered list of columns sharing the same row count.
type Table struct {
	name     string
	columns  []*Column
	byName   map[string]*Column
	indexes  map[string]*Index
	rowCount int
}

// Create allocates a table with one column per definition, each with
// backing storage of the requested capacity. Column names must be unique.
func Create(name string, schema []ColumnDef, initialCapacity int) (*Table, error) {
	if len(schema) == 0 {
		return nil, errs.New(errs.KindInvariant, "schema must declare at least one column")
	}

	t := &Table{
		name:    name,
		columns: make([]*Column, 0, len(schema)),
		byName:  make(map[string]*Column, len(schema)),
		indexes: make(map[string]*Index),
	}
	for _, def := range schema {
		if _, dup := t.byName[def.Name]; dup {
			return nil, errs.Newf(errs.KindInvariant, "duplicate column name %q", def.Name)
		}

		col := NewColumn(def.Name, def.Type, initialCapacity)
		t.columns = append(t.columns, col)
		t.byName[def.Name] = col
	}

	return t, nil
}

// FromColumns assembles a table over existing columns, typically borrowed
// views over a memory-mapped segment. All columns must share one length.
func FromColumns(name string, columns []*Column) (*Table, error) {
	if len(columns) == 0 {
		return nil, errs.New(errs.KindInvariant, "table needs at least one column")
	}

	t := &Table{
		name:    name,
		columns: columns,
		byName:  make(map[string]*Column, len(columns)),
		indexes: make(map[string]*Index),
	}
	t.rowCount = columns[0].Len()
	for _, col := range columns {
		if col.Len() != t.rowCount {
			return nil, errs.Newf(errs.KindInvariant, "column %q length %d != row count %d", col.Name(), col.Len(), t.rowCount)
		}
		if _, dup := t.byName[col.Name()]; dup {
			return nil, errs.Newf(errs.KindInvariant, "duplicate column name %q", col.Name())
		}
		t.byName[col.Name()] = col
	}

	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// RowCount returns the current number of rows.
func (t *Table) RowCount() int { return t.rowCount }

// Columns returns the columns in declaration order.
func (t *Table) Columns() []*Column { return t.columns }

// Column returns the named column, or a NotFound error.
func (t *Table) Column(name string) (*Column, error) {
	col, ok := t.byName[name]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "column %q not found in table %q", name, t.name)
	}

	return col, nil
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Schema returns the column definitions in declaration order.
func (t *Table) Schema() []ColumnDef {
	defs := make([]ColumnDef, len(t.columns))
	for i, col := range t.columns {
		defs[i] = ColumnDef{Name: col.Name(), Type: col.Type()}
	}

	return defs
}

// AppendRow writes one value per column at the next row index. Missing
// values default to the per-type zero; nulls are written as zeros (numeric)
// or the empty string.
func (t *Table) AppendRow(values map[string]any) error {
	for _, col := range t.columns {
		v, ok := values[col.Name()]
		val := Null()
		if ok {
			val = FromAny(v)
		}
		if err := col.append(val); err != nil {
			return err
		}
	}
	t.rowCount++
	t.reindexRow(t.rowCount - 1)

	return nil
}

// AppendBatch appends many rows, growing each column once up front. The
// result is equivalent to sequential AppendRow calls.
func (t *Table) AppendBatch(rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	needed := t.rowCount + len(rows)
	for _, col := range t.columns {
		if err := col.Reserve(needed); err != nil {
			return err
		}
	}

	for _, row := range rows {
		if err := t.AppendRow(row); err != nil {
			return err
		}
	}

	return nil
}

// UpdateRow assigns a subset of columns at the given row index. Unknown
// column names are ignored; nil values leave the cell unchanged.
func (t *Table) UpdateRow(index int, values map[string]any) error {
	if index < 0 || index >= t.rowCount {
		return errs.Wrapf(errs.KindOutOfBounds, errs.ErrOutOfBounds, "row %d of %d", index, t.rowCount)
	}

	for name, v := range values {
		col, ok := t.byName[name]
		if !ok || v == nil {
			continue
		}
		col.set(index, FromAny(v))
	}
	for _, idx := range t.indexes {
		idx.dirty = true
	}

	return nil
}

// Row materializes the record at index. It fails with OutOfBounds past the
// current row count.
func (t *Table) Row(index int) (Row, error) {
	if index < 0 || index >= t.rowCount {
		return nil, errs.Wrapf(errs.KindOutOfBounds, errs.ErrOutOfBounds, "row %d of %d", index, t.rowCount)
	}

	row := make(Row, len(t.columns))
	for _, col := range t.columns {
		row[col.Name()] = col.Value(index)
	}

	return row, nil
}

// Slice materializes rows in [start, min(end, rowCount)).
func (t *Table) Slice(start, end int) []Row {
	if start < 0 {
		start = 0
	}
	if end > t.rowCount {
		end = t.rowCount
	}
	if start >= end {
		return nil
	}

	rows := make([]Row, 0, end-start)
	for i := start; i < end; i++ {
		row, _ := t.Row(i)
		rows = append(rows, row)
	}

	return rows
}

// Filter materializes the rows for which predicate(row, index) is true,
// preserving order.
func (t *Table) Filter(predicate func(Row, int) bool) []Row {
	var rows []Row
	for i := 0; i < t.rowCount; i++ {
		row, _ := t.Row(i)
		if predicate(row, i) {
			rows = append(rows, row)
		}
	}

	return rows
}

// AggregateOp selects an Aggregate reduction.
type AggregateOp uint8

const (
	AggSum AggregateOp = iota + 1
	AggMin
	AggMax
	AggAvg
	AggCount
)

// Aggregate reduces a column to a float64. Count equals the row count
// regardless of column; avg is sum/rowCount (NaN when empty); min and max
// over an empty column return +Inf and -Inf respectively.
func (t *Table) Aggregate(column string, op AggregateOp) (float64, error) {
	if op == AggCount {
		return float64(t.rowCount), nil
	}

	col, err := t.Column(column)
	if err != nil {
		return 0, err
	}
	if !col.Type().Numeric() {
		return 0, errs.Newf(errs.KindTypeMismatch, "aggregate over non-numeric column %q", column)
	}

	switch op {
	case AggSum:
		return col.sum(), nil
	case AggMin:
		return col.min(), nil
	case AggMax:
		return col.max(), nil
	case AggAvg:
		if t.rowCount == 0 {
			return math.NaN(), nil
		}

		return col.sum() / float64(t.rowCount), nil
	default:
		return 0, errs.Newf(errs.KindUnsupported, "unknown aggregate op %d", op)
	}
}
