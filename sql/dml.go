package sql

import (
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/table"
)

func (e *Engine) execCreate(stmt *CreateTableStmt) (*Result, error) {
	if _, exists := e.tables[stmt.Name]; exists {
		return nil, errs.Newf(errs.KindInvariant, "table %q already exists", stmt.Name)
	}

	tbl, err := table.Create(stmt.Name, stmt.Schema, 64)
	if err != nil {
		return nil, err
	}
	e.Register(tbl)

	return &Result{}, nil
}

func (e *Engine) execInsert(stmt *InsertStmt) (*Result, error) {
	tbl, err := e.Table(stmt.Table)
	if err != nil {
		return nil, err
	}

	columns := stmt.Columns
	if len(columns) == 0 {
		for _, def := range tbl.Schema() {
			columns = append(columns, def.Name)
		}
	}
	for _, col := range columns {
		if !tbl.HasColumn(col) {
			return nil, errs.Newf(errs.KindNotFound, "column %q not in table %q", col, stmt.Table)
		}
	}

	rows := make([]map[string]any, 0, len(stmt.Rows))
	for i, exprs := range stmt.Rows {
		if len(exprs) != len(columns) {
			return nil, errs.Newf(errs.KindTypeMismatch, "row %d has %d values for %d columns", i, len(exprs), len(columns))
		}
		row := make(map[string]any, len(columns))
		for j, expr := range exprs {
			v, err := evalExpr(expr, &env{row: table.Row{}, engine: e})
			if err != nil {
				return nil, err
			}
			row[columns[j]] = v
		}
		rows = append(rows, row)
	}

	if stmt.OnConflict == nil {
		if err := tbl.AppendBatch(rows); err != nil {
			return nil, err
		}

		return &Result{Affected: len(rows)}, nil
	}

	return e.execUpsert(tbl, stmt, rows)
}

// upsertKeys maps composite key strings to row indices through xxhash
// buckets; the full key string is kept per entry so hash collisions
// verify against the original key instead of mis-resolving.
type upsertKeys struct {
	buckets map[uint64][]upsertEntry
}

type upsertEntry struct {
	key string
	row int
}

func newUpsertKeys() *upsertKeys {
	return &upsertKeys{buckets: make(map[uint64][]upsertEntry)}
}

func (u *upsertKeys) get(key string) (int, bool) {
	for _, entry := range u.buckets[xxhash.Sum64String(key)] {
		if entry.key == key {
			return entry.row, true
		}
	}

	return 0, false
}

func (u *upsertKeys) put(key string, row int) {
	h := xxhash.Sum64String(key)
	u.buckets[h] = append(u.buckets[h], upsertEntry{key: key, row: row})
}

// execUpsert applies insert-or-update semantics: the conflict columns
// form a composite key over the target table; keyed matches assign the
// update columns in place, misses append. The result counts inserts plus
// updates, and replaying the same batch leaves the table unchanged.
func (e *Engine) execUpsert(tbl *table.Table, stmt *InsertStmt, rows []map[string]any) (*Result, error) {
	conflict := stmt.OnConflict
	for _, col := range conflict.KeyColumns {
		if !tbl.HasColumn(col) {
			return nil, errs.Newf(errs.KindNotFound, "conflict column %q not in table %q", col, stmt.Table)
		}
	}

	keys := newUpsertKeys()
	for i := 0; i < tbl.RowCount(); i++ {
		row, err := tbl.Row(i)
		if err != nil {
			return nil, err
		}
		keys.put(compositeKey(row, conflict.KeyColumns), i)
	}

	affected := 0
	for _, incoming := range rows {
		keyRow := make(table.Row, len(incoming))
		for k, v := range incoming {
			keyRow[k] = table.FromAny(v)
		}
		key := compositeKey(keyRow, conflict.KeyColumns)

		if idx, ok := keys.get(key); ok {
			update := make(map[string]any, len(conflict.Updates))
			for _, assign := range conflict.Updates {
				v, err := e.upsertValue(assign, keyRow)
				if err != nil {
					return nil, err
				}
				update[assign.Column] = v
			}
			if err := tbl.UpdateRow(idx, update); err != nil {
				return nil, err
			}
			affected++
			continue
		}

		if err := tbl.AppendRow(incoming); err != nil {
			return nil, err
		}
		keys.put(key, tbl.RowCount()-1)
		affected++
	}

	return &Result{Affected: affected}, nil
}

// upsertValue resolves one SET assignment: a nil value means "take the
// incoming row's same-named column", EXCLUDED.x references the incoming
// row's x, anything else is a scalar expression.
func (e *Engine) upsertValue(assign UpdateAssign, incoming table.Row) (table.Value, error) {
	if assign.Value == nil {
		return incoming[assign.Column], nil
	}
	if id, ok := assign.Value.(*Ident); ok && strings.EqualFold(id.Qualifier, "EXCLUDED") {
		v, ok := incoming[id.Name]
		if !ok {
			return table.Null(), errs.Newf(errs.KindNotFound, "EXCLUDED.%s not in the insert row", id.Name)
		}

		return v, nil
	}

	return evalExpr(assign.Value, &env{row: incoming, engine: e})
}

func compositeKey(row table.Row, columns []string) string {
	var sb strings.Builder
	for i, col := range columns {
		if i > 0 {
			sb.WriteByte(0)
		}
		sb.WriteString(row[col].Text())
	}

	return sb.String()
}
