package table

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind discriminates the Value union.
type ValueKind uint8

const (
	KindNull   ValueKind = iota // KindNull is the absence of a value.
	KindInt                     // KindInt holds an int64.
	KindFloat                   // KindFloat holds a float64.
	KindString                  // KindString holds a string.
)

// Value is the tagged scalar union materialized at row boundaries: every
// cell decoded out of a column becomes one of {i64, f64, string, null}.
// Values own their contents; they never borrow from a column's backing
// storage.
type Value struct {
	s    string
	i    int64
	f    float64
	kind ValueKind
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Int wraps an int64.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float wraps a float64.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Str wraps a string.
func Str(v string) Value { return Value{kind: KindString, s: v} }

// Kind returns the union discriminant.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the value as an int64, truncating floats toward zero and
// parsing decimal-integer strings. Null is 0.
func (v Value) Int64() int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return int64(v.f)
	case KindString:
		if n, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64); err == nil {
			return int64(f)
		}

		return 0
	default:
		return 0
	}
}

// Float64 returns the value as a float64, parsing numeric strings.
// Null is 0.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f
	case KindString:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64); err == nil {
			return f
		}

		return 0
	default:
		return 0
	}
}

// Text returns the collation string form of the value. Null collates as the
// empty string (stable within a query, see DESIGN.md).
func (v Value) Text() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	default:
		return ""
	}
}

// Raw returns the underlying Go value (int64, float64, string, or nil).
func (v Value) Raw() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	default:
		return nil
	}
}

// Numeric reports whether the value is an int or float.
func (v Value) Numeric() bool { return v.kind == KindInt || v.kind == KindFloat }

// Compare orders two values: numerically when both are numeric, otherwise
// by collation string form. The result is -1, 0, or 1.
func (v Value) Compare(other Value) int {
	if v.Numeric() && other.Numeric() {
		a, b := v.Float64(), other.Float64()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(v.Text(), other.Text())
}

// Equal reports value equality under Compare semantics.
func (v Value) Equal(other Value) bool { return v.Compare(other) == 0 }

// FromAny converts a plain Go value into a Value. Unhandled types map to
// their string form.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case int:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint64:
		return Int(int64(x))
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case bool:
		if x {
			return Int(1)
		}
		return Int(0)
	case string:
		return Str(x)
	default:
		return Str(fmt.Sprint(x))
	}
}
