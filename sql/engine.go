package sql

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/table"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger supplies a logger; the default is a nop logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine executes the SQL subset over registered columnar tables. The
// engine never suspends: every statement runs to completion or returns an
// error.
type Engine struct {
	tables map[string]*table.Table
	logger *zap.Logger
}

// NewEngine creates an empty engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		tables: make(map[string]*table.Table),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Register makes a table visible to queries under its name.
func (e *Engine) Register(tbl *table.Table) {
	e.tables[tbl.Name()] = tbl
}

// Table returns a registered table.
func (e *Engine) Table(name string) (*table.Table, error) {
	tbl, ok := e.tables[name]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "table %q not registered", name)
	}

	return tbl, nil
}

// Result is a finished statement: projected column order, materialized
// rows that own their values, and the affected-row count for writes.
type Result struct {
	Columns  []string
	Rows     []table.Row
	Affected int
}

// Execute parses and runs one statement, annotating failures with the
// statement kind.
func (e *Engine) Execute(query string) (*Result, error) {
	stmt, err := Parse(query)
	if err != nil {
		return nil, err
	}

	switch s := stmt.(type) {
	case *SelectStmt:
		res, err := e.execSelect(s)

		return res, errs.Wrap(errs.KindOf(err), err, "SELECT")
	case *InsertStmt:
		res, err := e.execInsert(s)
		kind := "INSERT"
		if s.OnConflict != nil {
			kind = "UPSERT"
		}

		return res, errs.Wrap(errs.KindOf(err), err, kind)
	case *CreateTableStmt:
		res, err := e.execCreate(s)

		return res, errs.Wrap(errs.KindOf(err), err, "CREATE TABLE")
	default:
		return nil, errs.New(errs.KindUnsupported, "unknown statement")
	}
}

// relation is an executable row source: a registered columnar table or a
// materialized CTE result.
type relation struct {
	tbl     *table.Table
	rows    []table.Row
	columns []string
}

func (e *Engine) execSelect(stmt *SelectStmt) (*Result, error) {
	return e.execSelectWith(stmt, nil)
}

func (e *Engine) execSelectWith(stmt *SelectStmt, outer map[string]*Result) (*Result, error) {
	if stmt.Having != nil && len(stmt.GroupBy) == 0 {
		return nil, errs.Wrap(errs.KindSyntax, errs.ErrSyntax, "HAVING requires GROUP BY")
	}

	// The partition-tail fast path consumes the CTE before it would be
	// materialized, computing only per-partition tail window values.
	if res, ok, err := e.tryPartitionTail(stmt); err != nil {
		return nil, err
	} else if ok {
		return res, nil
	}

	ctes := make(map[string]*Result, len(stmt.With))
	for name, res := range outer {
		ctes[name] = res
	}
	for _, cte := range stmt.With {
		res, err := e.execSelectWith(cte.Select, ctes)
		if err != nil {
			return nil, errs.Wrapf(errs.KindOf(err), err, "CTE %q", cte.Name)
		}
		ctes[cte.Name] = res
	}

	// The tail-window fast path computes each window from the last-row
	// frame only.
	if res, ok, err := e.tryTailWindow(stmt, ctes); err != nil {
		return nil, err
	} else if ok {
		return res, nil
	}

	srcRows, srcColumns, err := e.buildSource(stmt, ctes)
	if err != nil {
		return nil, err
	}

	// Residual filter stage.
	if stmt.Where != nil {
		kept := srcRows[:0]
		for _, row := range srcRows {
			v, err := evalExpr(stmt.Where, &env{row: row, engine: e})
			if err != nil {
				return nil, err
			}
			if truthy(v) {
				kept = append(kept, row)
			}
		}
		srcRows = kept
	}

	// Window stage: extract window expressions from the select list,
	// compute each over the filtered rows, and splice the results back in
	// as placeholder columns.
	items := make([]SelectItem, len(stmt.Items))
	copy(items, stmt.Items)
	var windows []*WindowExpr
	for i := range items {
		if items[i].Star || !containsWindow(items[i].Expr) {
			continue
		}
		items[i].Expr = rewriteWindows(items[i].Expr, &windows)
	}
	for wi, w := range windows {
		vals, err := computeWindowValues(srcRows, w, e)
		if err != nil {
			return nil, err
		}
		name := windowPlaceholder(wi)
		for i := range srcRows {
			srcRows[i][name] = vals[i]
		}
	}

	grouped := len(stmt.GroupBy) > 0
	if !grouped {
		for _, item := range items {
			if !item.Star && containsAggregate(item.Expr) {
				grouped = true
				break
			}
		}
		if grouped {
			// Implicit single group over every row.
			return e.projectGroups(stmt, items, [][]table.Row{srcRows}, srcColumns)
		}
	}

	if grouped && len(stmt.GroupBy) > 0 {
		groups, err := e.hashGroups(srcRows, stmt.GroupBy)
		if err != nil {
			return nil, err
		}

		return e.projectGroups(stmt, items, groups, srcColumns)
	}

	// Plain projection.
	outCols := e.outputColumns(items, srcColumns)
	decorated := make([]decoratedRow, 0, len(srcRows))
	for i, src := range srcRows {
		out := make(table.Row, len(outCols))
		if err := e.projectRow(items, srcColumns, src, nil, out); err != nil {
			return nil, err
		}
		decorated = append(decorated, decoratedRow{out: out, src: src, idx: i})
	}

	return e.finish(stmt, outCols, decorated)
}

type decoratedRow struct {
	out table.Row
	src table.Row
	idx int
}

// buildSource resolves FROM and JOIN into materialized rows. Rows carry
// both bare and alias-qualified column keys.
func (e *Engine) buildSource(stmt *SelectStmt, ctes map[string]*Result) ([]table.Row, []string, error) {
	if stmt.From == nil {
		// Expression-only select: one empty source row.
		return []table.Row{{}}, nil, nil
	}

	left, err := e.resolveRelation(stmt.From.Name, ctes)
	if err != nil {
		return nil, nil, err
	}

	rows, err := e.materialize(left, *stmt.From, stmt)
	if err != nil {
		return nil, nil, err
	}
	columns := append([]string(nil), left.columns...)

	for _, join := range stmt.Joins {
		right, err := e.resolveRelation(join.Table.Name, ctes)
		if err != nil {
			return nil, nil, err
		}
		rightRows, err := e.materialize(right, join.Table, nil)
		if err != nil {
			return nil, nil, err
		}

		rows, err = e.hashJoin(rows, rightRows, columns, right.columns, join)
		if err != nil {
			return nil, nil, err
		}
		for _, col := range right.columns {
			if !contains(columns, col) {
				columns = append(columns, col)
			}
		}
	}

	return rows, columns, nil
}

func (e *Engine) resolveRelation(name string, ctes map[string]*Result) (*relation, error) {
	if res, ok := ctes[name]; ok {
		return &relation{rows: res.Rows, columns: res.Columns}, nil
	}
	if tbl, ok := e.tables[name]; ok {
		cols := make([]string, 0, len(tbl.Columns()))
		for _, c := range tbl.Columns() {
			cols = append(cols, c.Name())
		}

		return &relation{tbl: tbl, columns: cols}, nil
	}

	return nil, errs.Newf(errs.KindNotFound, "table %q not registered", name)
}

// materialize produces the relation's rows, qualified under the ref's
// alias and name. For table-backed relations of the outermost FROM, the
// index probe stage reduces the candidate row set first; every predicate
// is still applied afterwards as a residual filter.
func (e *Engine) materialize(rel *relation, ref TableRef, stmt *SelectStmt) ([]table.Row, error) {
	qualifiers := make([]string, 0, 2)
	if ref.Alias != "" {
		qualifiers = append(qualifiers, ref.Alias)
	}
	if ref.Name != "" && ref.Name != ref.Alias {
		qualifiers = append(qualifiers, ref.Name)
	}

	qualify := func(row table.Row) table.Row {
		if len(qualifiers) == 0 {
			return row
		}
		out := make(table.Row, len(row)*(1+len(qualifiers)))
		for k, v := range row {
			out[k] = v
			for _, q := range qualifiers {
				out[q+"."+k] = v
			}
		}

		return out
	}

	if rel.tbl == nil {
		out := make([]table.Row, len(rel.rows))
		for i, row := range rel.rows {
			copied := make(table.Row, len(row))
			for k, v := range row {
				copied[k] = v
			}
			out[i] = qualify(copied)
		}

		return out, nil
	}

	var candidates []int
	if stmt != nil && stmt.Where != nil {
		candidates = probeIndexes(rel.tbl, stmt.Where)
	}

	if candidates == nil {
		out := make([]table.Row, 0, rel.tbl.RowCount())
		for i := 0; i < rel.tbl.RowCount(); i++ {
			row, err := rel.tbl.Row(i)
			if err != nil {
				return nil, err
			}
			out = append(out, qualify(row))
		}

		return out, nil
	}

	sort.Ints(candidates)
	out := make([]table.Row, 0, len(candidates))
	for _, i := range candidates {
		row, err := rel.tbl.Row(i)
		if err != nil {
			return nil, err
		}
		out = append(out, qualify(row))
	}

	return out, nil
}

// hashJoin performs an equi join: the right side is hashed on its ON key,
// left rows probe it. LEFT joins emit unmatched left rows with the right
// columns null.
func (e *Engine) hashJoin(left, right []table.Row, leftCols, rightCols []string, join JoinClause) ([]table.Row, error) {
	if len(join.On) == 0 {
		return nil, errs.Wrap(errs.KindSyntax, errs.ErrSyntax, "JOIN requires ON")
	}

	// Decide per condition which side belongs to the right relation by
	// probing an example right row.
	var probe table.Row
	if len(right) > 0 {
		probe = right[0]
	} else {
		probe = table.Row{}
	}

	pairs := make([]joinPair, 0, len(join.On))
	for _, cond := range join.On {
		if _, err := evalExpr(cond.R, &env{row: probe, engine: e}); err == nil && len(right) > 0 {
			pairs = append(pairs, joinPair{leftExpr: cond.L, rightExpr: cond.R})
		} else {
			pairs = append(pairs, joinPair{leftExpr: cond.R, rightExpr: cond.L})
		}
	}

	buckets := make(map[string][]table.Row, len(right))
	for _, row := range right {
		key, err := joinKey(row, pairs, false, e)
		if err != nil {
			return nil, err
		}
		buckets[key] = append(buckets[key], row)
	}

	var out []table.Row
	for _, lrow := range left {
		key, err := joinKey(lrow, pairs, true, e)
		if err != nil {
			return nil, err
		}

		matches := buckets[key]
		if len(matches) == 0 {
			if !join.Left {
				continue
			}
			merged := cloneRow(lrow)
			for _, col := range rightCols {
				nullKey(merged, col, join.Table)
			}
			out = append(out, merged)
			continue
		}

		for _, rrow := range matches {
			merged := cloneRow(lrow)
			for k, v := range rrow {
				if _, exists := merged[k]; !exists {
					merged[k] = v
				}
			}
			out = append(out, merged)
		}
	}

	return out, nil
}

type joinPair struct {
	leftExpr  Expr
	rightExpr Expr
}

func joinKey(row table.Row, pairs []joinPair, left bool, e *Engine) (string, error) {
	var sb strings.Builder
	for i, p := range pairs {
		expr := p.rightExpr
		if left {
			expr = p.leftExpr
		}
		v, err := evalExpr(expr, &env{row: row, engine: e})
		if err != nil {
			return "", err
		}
		if i > 0 {
			sb.WriteByte(0)
		}
		sb.WriteString(v.Text())
	}

	return sb.String(), nil
}

func cloneRow(row table.Row) table.Row {
	out := make(table.Row, len(row))
	for k, v := range row {
		out[k] = v
	}

	return out
}

func nullKey(row table.Row, col string, ref TableRef) {
	if _, exists := row[col]; !exists {
		row[col] = table.Null()
	}
	if ref.Alias != "" {
		row[ref.Alias+"."+col] = table.Null()
	}
	if ref.Name != "" {
		row[ref.Name+"."+col] = table.Null()
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}

	return false
}

// hashGroups buckets rows by the concatenated string form of the GROUP BY
// expressions, preserving first-encounter group order.
func (e *Engine) hashGroups(rows []table.Row, by []Expr) ([][]table.Row, error) {
	keyed := make(map[string]int)
	var groups [][]table.Row
	var sb strings.Builder
	for _, row := range rows {
		sb.Reset()
		for j, expr := range by {
			v, err := evalExpr(expr, &env{row: row, engine: e})
			if err != nil {
				return nil, err
			}
			if j > 0 {
				sb.WriteByte(0)
			}
			sb.WriteString(v.Text())
		}
		key := sb.String()

		slot, ok := keyed[key]
		if !ok {
			slot = len(groups)
			keyed[key] = slot
			groups = append(groups, nil)
		}
		groups[slot] = append(groups[slot], row)
	}

	return groups, nil
}

func (e *Engine) projectGroups(stmt *SelectStmt, items []SelectItem, groups [][]table.Row, srcColumns []string) (*Result, error) {
	outCols := e.outputColumns(items, srcColumns)

	decorated := make([]decoratedRow, 0, len(groups))
	for gi, group := range groups {
		if len(group) == 0 && len(stmt.GroupBy) > 0 {
			continue
		}
		var first table.Row
		if len(group) > 0 {
			first = group[0]
		} else {
			first = table.Row{}
		}

		if stmt.Having != nil {
			v, err := evalExpr(stmt.Having, &env{row: first, engine: e, group: group})
			if err != nil {
				return nil, err
			}
			if !truthy(v) {
				continue
			}
		}

		out := make(table.Row, len(outCols))
		if err := e.projectRow(items, srcColumns, first, group, out); err != nil {
			return nil, err
		}
		decorated = append(decorated, decoratedRow{out: out, src: first, idx: gi})
	}

	return e.finish(stmt, outCols, decorated)
}

// projectRow evaluates the select items into out. group is non-nil in
// aggregate context.
func (e *Engine) projectRow(items []SelectItem, srcColumns []string, src table.Row, group []table.Row, out table.Row) error {
	for _, item := range items {
		if item.Star {
			for _, col := range srcColumns {
				out[col] = src[col]
			}
			continue
		}

		ev := &env{row: src, engine: e}
		if group != nil && containsAggregate(item.Expr) {
			ev.group = group
		}
		v, err := evalExpr(item.Expr, ev)
		if err != nil {
			return err
		}
		out[e.itemName(item)] = v
	}

	return nil
}

func (e *Engine) outputColumns(items []SelectItem, srcColumns []string) []string {
	var cols []string
	for _, item := range items {
		if item.Star {
			cols = append(cols, srcColumns...)
			continue
		}
		cols = append(cols, e.itemName(item))
	}

	return cols
}

func (e *Engine) itemName(item SelectItem) string {
	if item.Alias != "" {
		return item.Alias
	}

	return exprName(item.Expr)
}

// exprName renders a canonical output name for an unaliased projection.
func exprName(e Expr) string {
	switch x := e.(type) {
	case *Ident:
		return x.Name
	case *Literal:
		return x.Val.Text()
	case *FuncCall:
		args := make([]string, len(x.Args))
		for i, arg := range x.Args {
			args[i] = exprName(arg)
		}
		if x.Star {
			return x.Name + "(*)"
		}

		return x.Name + "(" + strings.Join(args, ", ") + ")"
	case *WindowExpr:
		return exprName(&x.Func) + " OVER (...)"
	case *Binary:
		return exprName(x.L) + " " + x.Op + " " + exprName(x.R)
	case *Unary:
		return x.Op + exprName(x.X)
	default:
		return "expr"
	}
}

// finish applies ORDER BY, OFFSET, and LIMIT, and strips decorations.
func (e *Engine) finish(stmt *SelectStmt, outCols []string, decorated []decoratedRow) (*Result, error) {
	if len(stmt.OrderBy) > 0 {
		type keyedRow struct {
			d    decoratedRow
			keys []table.Value
		}
		keyed := make([]keyedRow, len(decorated))
		for i, d := range decorated {
			keys := make([]table.Value, len(stmt.OrderBy))
			for j, item := range stmt.OrderBy {
				v, err := e.orderKey(item, d, outCols)
				if err != nil {
					return nil, err
				}
				keys[j] = v
			}
			keyed[i] = keyedRow{d: d, keys: keys}
		}

		// Stable: the original index decorates each row as the final
		// tiebreaker.
		sort.SliceStable(keyed, func(a, b int) bool {
			for j, item := range stmt.OrderBy {
				c := keyed[a].keys[j].Compare(keyed[b].keys[j])
				if c == 0 {
					continue
				}
				if item.Desc {
					return c > 0
				}

				return c < 0
			}

			return keyed[a].d.idx < keyed[b].d.idx
		})

		for i := range keyed {
			decorated[i] = keyed[i].d
		}
	}

	offset := 0
	if stmt.Offset != nil {
		offset = int(*stmt.Offset)
	}
	if offset > len(decorated) {
		offset = len(decorated)
	}
	decorated = decorated[offset:]

	if stmt.Limit != nil && int(*stmt.Limit) < len(decorated) {
		decorated = decorated[:int(*stmt.Limit)]
	}

	rows := make([]table.Row, len(decorated))
	for i, d := range decorated {
		rows[i] = d.out
	}

	return &Result{Columns: outCols, Rows: rows}, nil
}

func (e *Engine) orderKey(item OrderItem, d decoratedRow, outCols []string) (table.Value, error) {
	if item.Position > 0 {
		if item.Position > len(outCols) {
			return table.Null(), errs.Newf(errs.KindSyntax, "ORDER BY position %d out of range", item.Position)
		}

		return d.out[outCols[item.Position-1]], nil
	}

	if id, ok := item.Expr.(*Ident); ok && id.Qualifier == "" {
		if v, exists := d.out[id.Name]; exists {
			return v, nil
		}
	}

	return evalExpr(item.Expr, &env{row: d.src, engine: e})
}
