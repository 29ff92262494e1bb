package sql

import (
	"math"
	"sort"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/table"
)

// tryTailWindow recognizes the tail-window shape:
//
//	SELECT <idents and window exprs> FROM t ORDER BY c DESC LIMIT 1
//
// where every window's ORDER BY is the same column c ascending with a
// ROWS frame and no PARTITION BY. Instead of computing every row's
// window value and keeping one, each window is evaluated once over the
// frame ending at the last row.
func (e *Engine) tryTailWindow(stmt *SelectStmt, ctes map[string]*Result) (*Result, bool, error) {
	if stmt.From == nil || len(stmt.Joins) > 0 || stmt.Where != nil ||
		len(stmt.GroupBy) > 0 || stmt.Having != nil ||
		len(stmt.OrderBy) != 1 || !stmt.OrderBy[0].Desc ||
		stmt.Limit == nil || *stmt.Limit != 1 ||
		(stmt.Offset != nil && *stmt.Offset != 0) {
		return nil, false, nil
	}

	orderIdent, ok := stmt.OrderBy[0].Expr.(*Ident)
	if !ok || stmt.OrderBy[0].Position > 0 {
		return nil, false, nil
	}
	col := orderIdent.Name

	hasWindow := false
	for _, item := range stmt.Items {
		if item.Star {
			return nil, false, nil
		}
		switch x := item.Expr.(type) {
		case *Ident:
		case *WindowExpr:
			w := x
			if len(w.PartitionBy) > 0 || w.Frame == nil || w.OrderBy == nil || w.OrderBy.Desc {
				return nil, false, nil
			}
			id, ok := w.OrderBy.Expr.(*Ident)
			if !ok || id.Name != col {
				return nil, false, nil
			}
			hasWindow = true
		default:
			return nil, false, nil
		}
	}
	if !hasWindow {
		return nil, false, nil
	}

	rel, err := e.resolveRelation(stmt.From.Name, ctes)
	if err != nil {
		return nil, false, err
	}
	rows, err := e.materialize(rel, *stmt.From, nil)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return &Result{Columns: e.outputColumns(stmt.Items, rel.columns)}, true, nil
	}

	order, err := sortedByColumn(rows, col, e)
	if err != nil {
		return nil, false, err
	}

	tail := rows[order[len(order)-1]]
	out := make(table.Row, len(stmt.Items))
	for _, item := range stmt.Items {
		name := e.itemName(item)
		switch x := item.Expr.(type) {
		case *Ident:
			v, err := evalExpr(x, &env{row: tail, engine: e})
			if err != nil {
				return nil, false, err
			}
			out[name] = v
		case *WindowExpr:
			frameRows := tailFrame(rows, order, x.Frame)
			v, err := e.windowOverFrame(x, frameRows, len(order))
			if err != nil {
				return nil, false, err
			}
			out[name] = v
		}
	}

	return &Result{
		Columns: e.outputColumns(stmt.Items, rel.columns),
		Rows:    []table.Row{out},
	}, true, nil
}

// tryPartitionTail recognizes the partition-tail shape:
//
//	WITH p AS (SELECT ..., ROW_NUMBER() OVER (PARTITION BY k...
//	           ORDER BY c DESC) AS rn, <windows over the same partition>
//	           FROM t)
//	SELECT ... FROM p WHERE rn = 1
//
// Partition boundaries come from one scan of the CTE's base table; each
// partition contributes exactly its tail row, with window values
// computed over the tail frame only.
func (e *Engine) tryPartitionTail(stmt *SelectStmt) (*Result, bool, error) {
	if len(stmt.With) != 1 || stmt.From == nil || stmt.From.Name != stmt.With[0].Name ||
		len(stmt.Joins) > 0 || len(stmt.GroupBy) > 0 || stmt.Having != nil {
		return nil, false, nil
	}

	inner := stmt.With[0].Select
	if inner.From == nil || len(inner.Joins) > 0 || inner.Where != nil ||
		len(inner.GroupBy) > 0 || inner.Having != nil ||
		len(inner.OrderBy) > 0 || inner.Limit != nil || len(inner.With) > 0 {
		return nil, false, nil
	}
	baseTbl, ok := e.tables[inner.From.Name]
	if !ok {
		return nil, false, nil
	}

	// The outer WHERE must be exactly rn = 1 over the ROW_NUMBER alias.
	rnAlias, ok := rnEqualsOne(stmt.Where)
	if !ok {
		return nil, false, nil
	}

	// Classify the CTE's select items.
	var rnWindow *WindowExpr
	type tailWindowItem struct {
		alias string
		w     *WindowExpr
	}
	var windows []tailWindowItem
	var passthrough []SelectItem
	starItem := false

	for _, item := range inner.Items {
		if item.Star {
			starItem = true
			continue
		}
		w, isWindow := item.Expr.(*WindowExpr)
		if !isWindow {
			passthrough = append(passthrough, item)
			continue
		}
		if w.Func.Name == "ROW_NUMBER" && item.Alias == rnAlias {
			if w.OrderBy == nil || !w.OrderBy.Desc || len(w.PartitionBy) == 0 {
				return nil, false, nil
			}
			rnWindow = w
			continue
		}
		if item.Alias == "" || w.OrderBy == nil || w.OrderBy.Desc || w.Frame == nil {
			return nil, false, nil
		}
		windows = append(windows, tailWindowItem{alias: item.Alias, w: w})
	}
	if rnWindow == nil {
		return nil, false, nil
	}

	// Every other window must share the ROW_NUMBER's partitioning and
	// order column.
	rnOrder, ok := rnWindow.OrderBy.Expr.(*Ident)
	if !ok {
		return nil, false, nil
	}
	for _, tw := range windows {
		id, ok := tw.w.OrderBy.Expr.(*Ident)
		if !ok || id.Name != rnOrder.Name {
			return nil, false, nil
		}
		if !samePartitionExprs(rnWindow.PartitionBy, tw.w.PartitionBy) {
			return nil, false, nil
		}
	}

	// Single scan of the base table: materialize and partition.
	rows := make([]table.Row, 0, baseTbl.RowCount())
	for i := 0; i < baseTbl.RowCount(); i++ {
		row, err := baseTbl.Row(i)
		if err != nil {
			return nil, false, err
		}
		rows = append(rows, row)
	}

	partitions, err := partitionRows(rows, rnWindow.PartitionBy, e)
	if err != nil {
		return nil, false, err
	}

	tails := make([]table.Row, 0, len(partitions))
	for _, part := range partitions {
		order, err := sortedPartByColumn(rows, part, rnOrder.Name, e)
		if err != nil {
			return nil, false, err
		}

		tailIdx := order[len(order)-1]
		tailRow := cloneRow(rows[tailIdx])

		for _, item := range passthrough {
			v, err := evalExpr(item.Expr, &env{row: rows[tailIdx], engine: e})
			if err != nil {
				return nil, false, err
			}
			tailRow[e.itemName(item)] = v
		}
		tailRow[rnAlias] = table.Int(1)

		for _, tw := range windows {
			frameRows := tailFramePart(rows, order, tw.w.Frame)
			v, err := e.windowOverFrame(tw.w, frameRows, len(order))
			if err != nil {
				return nil, false, err
			}
			tailRow[tw.alias] = v
		}

		tails = append(tails, tailRow)
	}

	// Project the outer select over the per-partition tails; the outer
	// WHERE (rn = 1) is consumed by construction.
	var cteColumns []string
	if starItem {
		for _, def := range baseTbl.Schema() {
			cteColumns = append(cteColumns, def.Name)
		}
	}
	for _, item := range passthrough {
		cteColumns = append(cteColumns, e.itemName(item))
	}
	cteColumns = append(cteColumns, rnAlias)
	for _, tw := range windows {
		cteColumns = append(cteColumns, tw.alias)
	}

	outCols := e.outputColumns(stmt.Items, cteColumns)
	decorated := make([]decoratedRow, 0, len(tails))
	for i, src := range tails {
		out := make(table.Row, len(outCols))
		if err := e.projectRow(stmt.Items, cteColumns, src, nil, out); err != nil {
			return nil, false, err
		}
		decorated = append(decorated, decoratedRow{out: out, src: src, idx: i})
	}

	res, err := e.finish(stmt, outCols, decorated)
	if err != nil {
		return nil, false, err
	}

	return res, true, nil
}

// rnEqualsOne matches `ident = 1` (either operand order) and returns the
// identifier name.
func rnEqualsOne(where Expr) (string, bool) {
	b, ok := where.(*Binary)
	if !ok || b.Op != "=" {
		return "", false
	}
	if id, ok := b.L.(*Ident); ok && id.Qualifier == "" {
		if lit, ok := b.R.(*Literal); ok && lit.Val.Int64() == 1 {
			return id.Name, true
		}
	}
	if id, ok := b.R.(*Ident); ok && id.Qualifier == "" {
		if lit, ok := b.L.(*Literal); ok && lit.Val.Int64() == 1 {
			return id.Name, true
		}
	}

	return "", false
}

func samePartitionExprs(a, b []Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ai, aok := a[i].(*Ident)
		bi, bok := b[i].(*Ident)
		if !aok || !bok || ai.Name != bi.Name {
			return false
		}
	}

	return true
}

// sortedByColumn returns row indices ordered ascending by the named
// column, stable on the original index.
func sortedByColumn(rows []table.Row, col string, e *Engine) ([]int, error) {
	order := make([]int, len(rows))
	for i := range rows {
		order[i] = i
	}

	return order, sortIndicesByColumn(rows, order, col, e)
}

func sortedPartByColumn(rows []table.Row, part []int, col string, e *Engine) ([]int, error) {
	order := append([]int(nil), part...)

	return order, sortIndicesByColumn(rows, order, col, e)
}

func sortIndicesByColumn(rows []table.Row, order []int, col string, e *Engine) error {
	keys := make(map[int]table.Value, len(order))
	for _, idx := range order {
		v, err := evalExpr(&Ident{Name: col}, &env{row: rows[idx], engine: e})
		if err != nil {
			return err
		}
		keys[idx] = v
	}

	sort.SliceStable(order, func(a, b int) bool {
		c := keys[order[a]].Compare(keys[order[b]])
		if c == 0 {
			return order[a] < order[b]
		}

		return c < 0
	})

	return nil
}

// tailFrame slices the frame rows ending at the last ordered row.
func tailFrame(rows []table.Row, order []int, frame *Frame) []table.Row {
	return tailFramePart(rows, order, frame)
}

func tailFramePart(rows []table.Row, order []int, frame *Frame) []table.Row {
	start := 0
	if frame != nil && !frame.Unbounded {
		start = len(order) - 1 - int(frame.Preceding)
		if start < 0 {
			start = 0
		}
	}

	out := make([]table.Row, 0, len(order)-start)
	for _, idx := range order[start:] {
		out = append(out, rows[idx])
	}

	return out
}

// windowOverFrame evaluates one window function over a materialized
// frame. partLen is the full partition length, which ROW_NUMBER and an
// unbounded COUNT report.
func (e *Engine) windowOverFrame(w *WindowExpr, frameRows []table.Row, partLen int) (table.Value, error) {
	name := w.Func.Name
	if name == "ROW_NUMBER" {
		return table.Int(int64(partLen)), nil
	}

	if !windowFuncs[name] {
		return table.Null(), errs.Newf(errs.KindUnsupported, "window function %s", name)
	}
	if w.Func.Star {
		if name == "COUNT" {
			return table.Int(int64(len(frameRows))), nil
		}

		return table.Null(), errs.Newf(errs.KindSyntax, "window %s(*) is not valid", name)
	}
	if len(w.Func.Args) != 1 {
		return table.Null(), errs.Newf(errs.KindSyntax, "window %s takes one argument", name)
	}

	values := make([]float64, 0, len(frameRows))
	nonNull := 0
	for _, row := range frameRows {
		v, err := evalExpr(w.Func.Args[0], &env{row: row, engine: e})
		if err != nil {
			return table.Null(), err
		}
		if !v.IsNull() {
			nonNull++
		}
		values = append(values, v.Float64())
	}

	switch name {
	case "COUNT":
		return table.Int(int64(nonNull)), nil
	case "MIN":
		best := math.Inf(1)
		for _, x := range values {
			if x < best {
				best = x
			}
		}

		return table.Float(best), nil
	case "MAX":
		best := math.Inf(-1)
		for _, x := range values {
			if x > best {
				best = x
			}
		}

		return table.Float(best), nil
	}

	sum, sumSq := 0.0, 0.0
	for _, x := range values {
		sum += x
		sumSq += x * x
	}

	switch name {
	case "SUM":
		return table.Float(sum), nil
	case "AVG":
		return table.Float(sum / float64(len(values))), nil
	case "VARIANCE", "VAR":
		return table.Float(sampleVariance(sum, sumSq, len(values))), nil
	default: // STDDEV, STD
		return table.Float(math.Sqrt(sampleVariance(sum, sumSq, len(values)))), nil
	}
}
