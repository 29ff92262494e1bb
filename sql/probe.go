package sql

import (
	"github.com/arloliu/ndts/table"
)

// probeIndexes is the first WHERE stage: it analyzes the predicate's
// top-level conjuncts against the table's registered indexes and returns
// a reduced candidate row set, or nil when no index applies and the scan
// must cover every row. All predicates are re-applied afterwards as the
// residual filter, so the probe only ever narrows, never decides.
//
// Supported probes: single-column equality, single-column range, and
// composite-index prefix equality with a range on the next column.
func probeIndexes(tbl *table.Table, where Expr) []int {
	conjuncts := splitConjuncts(where)
	if len(conjuncts) == 0 {
		return nil
	}

	eq := make(map[string]table.Value)
	type bounds struct {
		min *table.RangeBound
		max *table.RangeBound
	}
	rng := make(map[string]*bounds)

	boundFor := func(col string) *bounds {
		b, ok := rng[col]
		if !ok {
			b = &bounds{}
			rng[col] = b
		}

		return b
	}

	for _, c := range conjuncts {
		col, op, val, ok := simpleComparison(c)
		if !ok || !tbl.HasColumn(col) {
			continue
		}

		switch op {
		case "=":
			eq[col] = val
		case "<":
			boundFor(col).max = &table.RangeBound{Value: val}
		case "<=":
			boundFor(col).max = &table.RangeBound{Value: val, Inclusive: true}
		case ">":
			boundFor(col).min = &table.RangeBound{Value: val}
		case ">=":
			boundFor(col).min = &table.RangeBound{Value: val, Inclusive: true}
		}
	}

	if len(eq) == 0 && len(rng) == 0 {
		return nil
	}

	var best *table.Index
	bestScore := 0
	bestRange := false
	for _, idx := range tbl.Indexes() {
		cols := idx.ColumnNames()
		score := 0
		for _, col := range cols {
			if _, ok := eq[col]; !ok {
				break
			}
			score++
		}
		hasRange := false
		if score < len(cols) {
			if b, ok := rng[cols[score]]; ok && (b.min != nil || b.max != nil) {
				hasRange = true
			}
		}
		if score == 0 && !hasRange {
			continue
		}
		if score > bestScore || (score == bestScore && hasRange && !bestRange) {
			best = idx
			bestScore = score
			bestRange = hasRange
		}
	}

	if best == nil {
		return nil
	}

	cols := best.ColumnNames()
	prefix := make([]table.Value, 0, bestScore)
	for _, col := range cols[:bestScore] {
		prefix = append(prefix, eq[col])
	}

	if bestScore == len(cols) {
		return append([]int(nil), best.LookupEqual(prefix)...)
	}

	var min, max *table.RangeBound
	if b, ok := rng[cols[bestScore]]; ok {
		min, max = b.min, b.max
	}

	return append([]int(nil), best.LookupRange(prefix, min, max)...)
}

// splitConjuncts flattens the top-level AND tree. A top-level OR or NOT
// yields no probe-able conjuncts.
func splitConjuncts(e Expr) []Expr {
	b, ok := e.(*Binary)
	if !ok {
		return []Expr{e}
	}
	if b.Op == "AND" {
		return append(splitConjuncts(b.L), splitConjuncts(b.R)...)
	}
	if b.Op == "OR" {
		return nil
	}

	return []Expr{e}
}

// simpleComparison recognizes `col op literal` and `literal op col`,
// normalizing the latter to the former.
func simpleComparison(e Expr) (string, string, table.Value, bool) {
	b, ok := e.(*Binary)
	if !ok {
		return "", "", table.Null(), false
	}

	flip := map[string]string{"<": ">", ">": "<", "<=": ">=", ">=": "<=", "=": "="}
	if _, known := flip[b.Op]; !known {
		return "", "", table.Null(), false
	}

	if id, ok := b.L.(*Ident); ok {
		if lit, ok := b.R.(*Literal); ok {
			return id.Name, b.Op, lit.Val, true
		}
	}
	if id, ok := b.R.(*Ident); ok {
		if lit, ok := b.L.(*Literal); ok {
			return id.Name, flip[b.Op], lit.Val, true
		}
	}

	return "", "", table.Null(), false
}
