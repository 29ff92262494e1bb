package sql

import (
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/table"
)

// aggregateFuncs are the functions with aggregate semantics when applied
// to a grouped row set or a window frame.
var aggregateFuncs = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
	"FIRST": true, "LAST": true,
	"VARIANCE": true, "VAR": true, "STDDEV": true, "STD": true,
}

// env is the evaluation context of one expression: the current row, the
// engine for sub-selects, and the group rows when evaluating inside
// GROUP BY or an implicit whole-table aggregate.
type env struct {
	row    table.Row
	engine *Engine
	group  []table.Row
}

func truthy(v table.Value) bool {
	switch v.Kind() {
	case table.KindNull:
		return false
	case table.KindString:
		return v.Text() != ""
	default:
		return v.Float64() != 0
	}
}

func boolValue(b bool) table.Value {
	if b {
		return table.Int(1)
	}

	return table.Int(0)
}

func evalExpr(e Expr, ev *env) (table.Value, error) {
	switch x := e.(type) {
	case *Literal:
		return x.Val, nil
	case *Ident:
		return evalIdent(x, ev)
	case *Unary:
		return evalUnary(x, ev)
	case *Binary:
		return evalBinary(x, ev)
	case *Not:
		v, err := evalExpr(x.X, ev)
		if err != nil {
			return table.Null(), err
		}

		return boolValue(!truthy(v)), nil
	case *FuncCall:
		return evalFunc(x, ev)
	case *InExpr:
		return evalIn(x, ev)
	case *WindowExpr:
		return table.Null(), errs.New(errs.KindInvariant, "window expression reached scalar evaluation")
	case *Star:
		return table.Null(), errs.Wrap(errs.KindSyntax, errs.ErrSyntax, "* outside select list")
	case *tupleGroup:
		return table.Null(), errs.Wrap(errs.KindSyntax, errs.ErrSyntax, "expression list outside IN")
	default:
		return table.Null(), errs.New(errs.KindInvariant, "unknown expression node")
	}
}

func evalIdent(id *Ident, ev *env) (table.Value, error) {
	if id.Qualifier != "" {
		if v, ok := ev.row[id.Qualifier+"."+id.Name]; ok {
			return v, nil
		}
	}
	if v, ok := ev.row[id.Name]; ok {
		return v, nil
	}

	return table.Null(), errs.Newf(errs.KindNotFound, "column %q not found", identName(id))
}

func identName(id *Ident) string {
	if id.Qualifier != "" {
		return id.Qualifier + "." + id.Name
	}

	return id.Name
}

func evalUnary(u *Unary, ev *env) (table.Value, error) {
	v, err := evalExpr(u.X, ev)
	if err != nil {
		return table.Null(), err
	}
	if u.Op != "-" {
		return v, nil
	}

	if v.Kind() == table.KindInt {
		return table.Int(-v.Int64()), nil
	}

	return table.Float(-v.Float64()), nil
}

func evalBinary(b *Binary, ev *env) (table.Value, error) {
	// Logical operators short-circuit.
	switch b.Op {
	case "AND":
		l, err := evalExpr(b.L, ev)
		if err != nil {
			return table.Null(), err
		}
		if !truthy(l) {
			return boolValue(false), nil
		}
		r, err := evalExpr(b.R, ev)
		if err != nil {
			return table.Null(), err
		}

		return boolValue(truthy(r)), nil
	case "OR":
		l, err := evalExpr(b.L, ev)
		if err != nil {
			return table.Null(), err
		}
		if truthy(l) {
			return boolValue(true), nil
		}
		r, err := evalExpr(b.R, ev)
		if err != nil {
			return table.Null(), err
		}

		return boolValue(truthy(r)), nil
	}

	l, err := evalExpr(b.L, ev)
	if err != nil {
		return table.Null(), err
	}
	r, err := evalExpr(b.R, ev)
	if err != nil {
		return table.Null(), err
	}

	switch b.Op {
	case "=", "!=", "<>", "<", ">", "<=", ">=":
		return evalComparison(b.Op, l, r), nil
	case "LIKE":
		matched, err := likeMatch(l.Text(), r.Text())
		if err != nil {
			return table.Null(), err
		}

		return boolValue(matched && !l.IsNull()), nil
	case "||":
		return table.Str(l.Text() + r.Text()), nil
	case "+", "-", "*", "/", "%":
		return evalArithmetic(b.Op, l, r)
	default:
		return table.Null(), errs.Newf(errs.KindInvariant, "unknown operator %q", b.Op)
	}
}

// evalComparison returns false for any comparison involving NULL.
func evalComparison(op string, l, r table.Value) table.Value {
	if l.IsNull() || r.IsNull() {
		return boolValue(false)
	}

	c := l.Compare(r)
	switch op {
	case "=":
		return boolValue(c == 0)
	case "!=", "<>":
		return boolValue(c != 0)
	case "<":
		return boolValue(c < 0)
	case ">":
		return boolValue(c > 0)
	case "<=":
		return boolValue(c <= 0)
	default:
		return boolValue(c >= 0)
	}
}

// evalArithmetic keeps integer results for + - * % over two integers and
// otherwise computes in float64 under IEEE-754.
func evalArithmetic(op string, l, r table.Value) (table.Value, error) {
	bothInt := l.Kind() == table.KindInt && r.Kind() == table.KindInt

	switch op {
	case "+":
		if bothInt {
			return table.Int(l.Int64() + r.Int64()), nil
		}

		return table.Float(l.Float64() + r.Float64()), nil
	case "-":
		if bothInt {
			return table.Int(l.Int64() - r.Int64()), nil
		}

		return table.Float(l.Float64() - r.Float64()), nil
	case "*":
		if bothInt {
			return table.Int(l.Int64() * r.Int64()), nil
		}

		return table.Float(l.Float64() * r.Float64()), nil
	case "/":
		return table.Float(l.Float64() / r.Float64()), nil
	default: // %
		if bothInt && r.Int64() != 0 {
			return table.Int(l.Int64() % r.Int64()), nil
		}

		return table.Float(math.Mod(l.Float64(), r.Float64())), nil
	}
}

var (
	likeCacheMu sync.Mutex
	likeCache   = make(map[string]*regexp.Regexp)
)

// likeMatch evaluates a LIKE pattern: % matches any run, _ one character.
func likeMatch(s, pattern string) (bool, error) {
	likeCacheMu.Lock()
	re, ok := likeCache[pattern]
	likeCacheMu.Unlock()

	if !ok {
		var sb strings.Builder
		sb.WriteString("^(?s)")
		for _, r := range pattern {
			switch r {
			case '%':
				sb.WriteString(".*")
			case '_':
				sb.WriteString(".")
			default:
				sb.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		sb.WriteString("$")

		var err error
		re, err = regexp.Compile(sb.String())
		if err != nil {
			return false, errs.Wrapf(errs.KindSyntax, err, "LIKE pattern %q", pattern)
		}

		likeCacheMu.Lock()
		likeCache[pattern] = re
		likeCacheMu.Unlock()
	}

	return re.MatchString(s), nil
}

func evalFunc(f *FuncCall, ev *env) (table.Value, error) {
	if aggregateFuncs[f.Name] && (f.Star || len(f.Args) <= 1) {
		if ev.group == nil {
			return table.Null(), errs.Newf(errs.KindSyntax, "aggregate %s outside GROUP BY context", f.Name)
		}

		return evalAggregate(f, ev)
	}

	args := make([]table.Value, len(f.Args))
	for i, arg := range f.Args {
		v, err := evalExpr(arg, ev)
		if err != nil {
			return table.Null(), err
		}
		args[i] = v
	}

	return evalScalarFunc(f.Name, args)
}

func evalScalarFunc(name string, args []table.Value) (table.Value, error) {
	one := func() (float64, error) {
		if len(args) != 1 {
			return 0, errs.Newf(errs.KindSyntax, "%s takes one argument", name)
		}

		return args[0].Float64(), nil
	}

	switch name {
	case "SQRT":
		x, err := one()
		if err != nil {
			return table.Null(), err
		}

		return table.Float(math.Sqrt(x)), nil
	case "ABS":
		x, err := one()
		if err != nil {
			return table.Null(), err
		}

		return table.Float(math.Abs(x)), nil
	case "LN", "LOG":
		x, err := one()
		if err != nil {
			return table.Null(), err
		}

		return table.Float(math.Log(x)), nil
	case "EXP":
		x, err := one()
		if err != nil {
			return table.Null(), err
		}

		return table.Float(math.Exp(x)), nil
	case "POW", "POWER":
		if len(args) != 2 {
			return table.Null(), errs.Newf(errs.KindSyntax, "%s takes two arguments", name)
		}

		return table.Float(math.Pow(args[0].Float64(), args[1].Float64())), nil
	case "ROUND":
		if len(args) == 0 || len(args) > 2 {
			return table.Null(), errs.New(errs.KindSyntax, "ROUND takes one or two arguments")
		}
		x := args[0].Float64()
		if len(args) == 1 {
			return table.Float(math.Round(x)), nil
		}
		scale := math.Pow(10, float64(args[1].Int64()))

		return table.Float(math.Round(x*scale) / scale), nil
	case "MIN", "MAX":
		if len(args) < 2 {
			return table.Null(), errs.Newf(errs.KindSyntax, "scalar %s needs at least two arguments", name)
		}
		best := args[0]
		for _, v := range args[1:] {
			c := v.Compare(best)
			if (name == "MIN" && c < 0) || (name == "MAX" && c > 0) {
				best = v
			}
		}

		return best, nil
	default:
		return table.Null(), errs.Newf(errs.KindNotFound, "unknown function %s", name)
	}
}

// evalAggregate reduces the group rows of the environment.
func evalAggregate(f *FuncCall, ev *env) (table.Value, error) {
	rows := ev.group

	if f.Name == "COUNT" {
		if f.Star || len(f.Args) == 0 {
			return table.Int(int64(len(rows))), nil
		}
		count := int64(0)
		for _, row := range rows {
			v, err := evalExpr(f.Args[0], &env{row: row, engine: ev.engine})
			if err != nil {
				return table.Null(), err
			}
			if !v.IsNull() {
				count++
			}
		}

		return table.Int(count), nil
	}

	if len(f.Args) != 1 {
		return table.Null(), errs.Newf(errs.KindSyntax, "aggregate %s takes one argument", f.Name)
	}

	values := make([]table.Value, 0, len(rows))
	for _, row := range rows {
		v, err := evalExpr(f.Args[0], &env{row: row, engine: ev.engine})
		if err != nil {
			return table.Null(), err
		}
		values = append(values, v)
	}

	switch f.Name {
	case "FIRST":
		if len(values) == 0 {
			return table.Null(), nil
		}

		return values[0], nil
	case "LAST":
		if len(values) == 0 {
			return table.Null(), nil
		}

		return values[len(values)-1], nil
	case "MIN", "MAX":
		if len(values) == 0 {
			if f.Name == "MIN" {
				return table.Float(math.Inf(1)), nil
			}

			return table.Float(math.Inf(-1)), nil
		}
		best := values[0]
		for _, v := range values[1:] {
			c := v.Compare(best)
			if (f.Name == "MIN" && c < 0) || (f.Name == "MAX" && c > 0) {
				best = v
			}
		}

		return best, nil
	}

	sum := 0.0
	sumSq := 0.0
	for _, v := range values {
		x := v.Float64()
		sum += x
		sumSq += x * x
	}
	n := float64(len(values))

	switch f.Name {
	case "SUM":
		return table.Float(sum), nil
	case "AVG":
		return table.Float(sum / n), nil
	case "VARIANCE", "VAR":
		return table.Float(sampleVariance(sum, sumSq, len(values))), nil
	case "STDDEV", "STD":
		return table.Float(math.Sqrt(sampleVariance(sum, sumSq, len(values)))), nil
	default:
		return table.Null(), errs.Newf(errs.KindNotFound, "unknown aggregate %s", f.Name)
	}
}

// sampleVariance computes max(0, (sumSq - n*mean^2)/(n-1)), clamping the
// finite-precision negatives that arise on near-constant data.
func sampleVariance(sum, sumSq float64, n int) float64 {
	if n < 2 {
		return 0
	}

	mean := sum / float64(n)
	v := (sumSq - float64(n)*mean*mean) / float64(n-1)
	if v < 0 {
		return 0
	}

	return v
}

func evalIn(in *InExpr, ev *env) (table.Value, error) {
	left := make([]table.Value, len(in.Exprs))
	for i, e := range in.Exprs {
		v, err := evalExpr(e, ev)
		if err != nil {
			return table.Null(), err
		}
		left[i] = v
	}

	match := false
	switch {
	case in.Sub != nil:
		if len(in.Exprs) > 1 {
			return table.Null(), errs.New(errs.KindUnsupported, "sub-query in multi-column IN is not supported")
		}
		if ev.engine == nil {
			return table.Null(), errs.New(errs.KindInvariant, "sub-query without engine context")
		}
		res, err := ev.engine.execSelect(in.Sub)
		if err != nil {
			return table.Null(), err
		}
		if len(res.Columns) != 1 {
			return table.Null(), errs.New(errs.KindUnsupported, "IN sub-query must return a single column")
		}
		for _, row := range res.Rows {
			v := row[res.Columns[0]]
			if !left[0].IsNull() && !v.IsNull() && left[0].Equal(v) {
				match = true
				break
			}
		}
	default:
		for _, tuple := range in.List {
			all := true
			for i, e := range tuple {
				v, err := evalExpr(e, ev)
				if err != nil {
					return table.Null(), err
				}
				if left[i].IsNull() || v.IsNull() || !left[i].Equal(v) {
					all = false
					break
				}
			}
			if all {
				match = true
				break
			}
		}
	}

	if in.Negate {
		match = !match
	}

	return boolValue(match), nil
}
