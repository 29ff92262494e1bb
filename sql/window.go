package sql

import (
	"math"
	"sort"
	"strings"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/table"
)

// windowFuncs are the functions accepted with an OVER clause.
var windowFuncs = map[string]bool{
	"ROW_NUMBER": true, "COUNT": true, "SUM": true, "AVG": true,
	"MIN": true, "MAX": true, "VARIANCE": true, "VAR": true,
	"STDDEV": true, "STD": true,
}

// computeWindowValues evaluates one window expression over the source
// rows and returns the per-row results aligned with the input order.
//
// Rows are partitioned by the concatenated string form of the PARTITION
// BY expressions, sorted within each partition by the ORDER BY column
// (stable, original index as tiebreaker), then the ROWS frame is applied
// ending at each row. Sum-family functions use prefix sums; min/max use a
// monotonic deque for O(1) amortized work per row.
func computeWindowValues(rows []table.Row, w *WindowExpr, engine *Engine) ([]table.Value, error) {
	if !windowFuncs[w.Func.Name] {
		return nil, errs.Newf(errs.KindUnsupported, "window function %s", w.Func.Name)
	}

	out := make([]table.Value, len(rows))
	partitions, err := partitionRows(rows, w.PartitionBy, engine)
	if err != nil {
		return nil, err
	}

	for _, part := range partitions {
		if err := sortPartition(rows, part, w.OrderBy, engine); err != nil {
			return nil, err
		}
		if err := applyFrame(rows, part, w, engine, out); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// partitionRows groups row indices by partition key, preserving first
// encounter order of partitions and row order within each.
func partitionRows(rows []table.Row, by []Expr, engine *Engine) ([][]int, error) {
	if len(by) == 0 {
		all := make([]int, len(rows))
		for i := range rows {
			all[i] = i
		}

		return [][]int{all}, nil
	}

	keyed := make(map[string]int)
	var partitions [][]int
	var sb strings.Builder
	for i, row := range rows {
		sb.Reset()
		for j, e := range by {
			v, err := evalExpr(e, &env{row: row, engine: engine})
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
			slot = len(partitions)
			keyed[key] = slot
			partitions = append(partitions, nil)
		}
		partitions[slot] = append(partitions[slot], i)
	}

	return partitions, nil
}

func sortPartition(rows []table.Row, part []int, by *OrderItem, engine *Engine) error {
	if by == nil {
		return nil
	}

	keys := make(map[int]table.Value, len(part))
	for _, idx := range part {
		v, err := evalExpr(by.Expr, &env{row: rows[idx], engine: engine})
		if err != nil {
			return err
		}
		keys[idx] = v
	}

	sort.SliceStable(part, func(a, b int) bool {
		c := keys[part[a]].Compare(keys[part[b]])
		if c == 0 {
			return part[a] < part[b]
		}
		if by.Desc {
			return c > 0
		}

		return c < 0
	})

	return nil
}

func frameStart(i int, frame *Frame) int {
	if frame == nil || frame.Unbounded {
		return 0
	}

	start := i - int(frame.Preceding)
	if start < 0 {
		return 0
	}

	return start
}

func applyFrame(rows []table.Row, part []int, w *WindowExpr, engine *Engine, out []table.Value) error {
	name := w.Func.Name

	if name == "ROW_NUMBER" {
		for pos, idx := range part {
			out[idx] = table.Int(int64(pos + 1))
		}

		return nil
	}

	// Materialize the argument once per row.
	values := make([]float64, len(part))
	nulls := make([]bool, len(part))
	if !w.Func.Star {
		if len(w.Func.Args) != 1 {
			return errs.Newf(errs.KindSyntax, "window %s takes one argument", name)
		}
		for pos, idx := range part {
			v, err := evalExpr(w.Func.Args[0], &env{row: rows[idx], engine: engine})
			if err != nil {
				return err
			}
			values[pos] = v.Float64()
			nulls[pos] = v.IsNull()
		}
	}

	switch name {
	case "COUNT":
		counts := make([]int64, len(part)+1)
		for pos := range part {
			add := int64(1)
			if !w.Func.Star && nulls[pos] {
				add = 0
			}
			counts[pos+1] = counts[pos] + add
		}
		for pos, idx := range part {
			s := frameStart(pos, w.Frame)
			out[idx] = table.Int(counts[pos+1] - counts[s])
		}
	case "MIN", "MAX":
		applyDeque(part, values, w.Frame, name == "MIN", out)
	default:
		// Incremental prefix sums back SUM, AVG, VARIANCE, and STDDEV.
		prefix := make([]float64, len(part)+1)
		prefixSq := make([]float64, len(part)+1)
		for pos := range part {
			prefix[pos+1] = prefix[pos] + values[pos]
			prefixSq[pos+1] = prefixSq[pos] + values[pos]*values[pos]
		}
		for pos, idx := range part {
			s := frameStart(pos, w.Frame)
			n := pos + 1 - s
			sum := prefix[pos+1] - prefix[s]
			sumSq := prefixSq[pos+1] - prefixSq[s]

			switch name {
			case "SUM":
				out[idx] = table.Float(sum)
			case "AVG":
				out[idx] = table.Float(sum / float64(n))
			case "VARIANCE", "VAR":
				out[idx] = table.Float(sampleVariance(sum, sumSq, n))
			default: // STDDEV, STD
				out[idx] = table.Float(math.Sqrt(sampleVariance(sum, sumSq, n)))
			}
		}
	}

	return nil
}

// applyDeque computes sliding-window min or max with a monotonic deque of
// candidate positions.
func applyDeque(part []int, values []float64, frame *Frame, min bool, out []table.Value) {
	better := func(a, b float64) bool {
		if min {
			return a <= b
		}

		return a >= b
	}

	deque := make([]int, 0, len(part))
	for pos, idx := range part {
		s := frameStart(pos, frame)

		// Expire positions that slid out of the frame.
		for len(deque) > 0 && deque[0] < s {
			deque = deque[1:]
		}
		// Drop candidates dominated by the incoming value.
		for len(deque) > 0 && better(values[pos], values[deque[len(deque)-1]]) {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, pos)

		out[idx] = table.Float(values[deque[0]])
	}
}

// rewriteWindows replaces every WindowExpr node in the expression with a
// placeholder identifier and records the extraction so the engine can
// compute each window separately and splice the results back in as
// columns.
func rewriteWindows(e Expr, found *[]*WindowExpr) Expr {
	switch x := e.(type) {
	case *WindowExpr:
		name := windowPlaceholder(len(*found))
		*found = append(*found, x)

		return &Ident{Name: name}
	case *Unary:
		return &Unary{Op: x.Op, X: rewriteWindows(x.X, found)}
	case *Binary:
		return &Binary{Op: x.Op, L: rewriteWindows(x.L, found), R: rewriteWindows(x.R, found)}
	case *Not:
		return &Not{X: rewriteWindows(x.X, found)}
	case *FuncCall:
		args := make([]Expr, len(x.Args))
		for i, arg := range x.Args {
			args[i] = rewriteWindows(arg, found)
		}

		return &FuncCall{Name: x.Name, Args: args, Star: x.Star}
	default:
		return e
	}
}

func windowPlaceholder(i int) string {
	return "__win" + string(rune('0'+i/10)) + string(rune('0'+i%10))
}

// containsWindow reports whether the expression tree holds a WindowExpr.
func containsWindow(e Expr) bool {
	switch x := e.(type) {
	case *WindowExpr:
		return true
	case *Unary:
		return containsWindow(x.X)
	case *Binary:
		return containsWindow(x.L) || containsWindow(x.R)
	case *Not:
		return containsWindow(x.X)
	case *FuncCall:
		for _, arg := range x.Args {
			if containsWindow(arg) {
				return true
			}
		}
	}

	return false
}

// containsAggregate reports whether the expression applies an aggregate
// function outside a window.
func containsAggregate(e Expr) bool {
	switch x := e.(type) {
	case *FuncCall:
		if aggregateFuncs[x.Name] && (x.Star || len(x.Args) <= 1) {
			return true
		}
		for _, arg := range x.Args {
			if containsAggregate(arg) {
				return true
			}
		}
	case *Unary:
		return containsAggregate(x.X)
	case *Binary:
		return containsAggregate(x.L) || containsAggregate(x.R)
	case *Not:
		return containsAggregate(x.X)
	}

	return false
}
