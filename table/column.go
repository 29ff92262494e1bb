package table

import (
	"math"

	"golang.org/x/exp/constraints"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/format"
)

// growthFactor governs capacity growth on reallocation.
const growthFactor = 1.5

// Column is a densely packed sequence of one scalar type. Exactly one
// backing slice is active, selected by the column type; element positions
// are stable and the live length always equals the owning table's row
// count.
//
// A column either owns its backing storage or borrows it (views over a
// memory-mapped segment). Borrowed columns must not outlive their mapping
// and reject growth.
type Column struct {
	name     string
	typ      format.ColumnType
	i16      []int16
	i32      []int32
	i64      []int64
	f64      []float64
	str      []string
	borrowed bool
}

// NewColumn allocates an owned column with the given initial capacity.
func NewColumn(name string, typ format.ColumnType, capacity int) *Column {
	c := &Column{name: name, typ: typ}
	switch typ {
	case format.TypeInt16:
		c.i16 = make([]int16, 0, capacity)
	case format.TypeInt32:
		c.i32 = make([]int32, 0, capacity)
	case format.TypeInt64:
		c.i64 = make([]int64, 0, capacity)
	case format.TypeFloat64:
		c.f64 = make([]float64, 0, capacity)
	case format.TypeString:
		c.str = make([]string, 0, capacity)
	}

	return c
}

// NewInt64View wraps an existing int64 slice as a borrowed column.
func NewInt64View(name string, data []int64) *Column {
	return &Column{name: name, typ: format.TypeInt64, i64: data, borrowed: true}
}

// NewFloat64View wraps an existing float64 slice as a borrowed column.
func NewFloat64View(name string, data []float64) *Column {
	return &Column{name: name, typ: format.TypeFloat64, f64: data, borrowed: true}
}

// NewInt32View wraps an existing int32 slice as a borrowed column.
func NewInt32View(name string, data []int32) *Column {
	return &Column{name: name, typ: format.TypeInt32, i32: data, borrowed: true}
}

// NewInt16View wraps an existing int16 slice as a borrowed column.
func NewInt16View(name string, data []int16) *Column {
	return &Column{name: name, typ: format.TypeInt16, i16: data, borrowed: true}
}

// NewStringView wraps an existing string slice as a borrowed column.
func NewStringView(name string, data []string) *Column {
	return &Column{name: name, typ: format.TypeString, str: data, borrowed: true}
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Type returns the column's scalar type.
func (c *Column) Type() format.ColumnType { return c.typ }

// Len returns the number of live elements.
func (c *Column) Len() int {
	switch c.typ {
	case format.TypeInt16:
		return len(c.i16)
	case format.TypeInt32:
		return len(c.i32)
	case format.TypeInt64:
		return len(c.i64)
	case format.TypeFloat64:
		return len(c.f64)
	case format.TypeString:
		return len(c.str)
	default:
		return 0
	}
}

// Cap returns the backing storage capacity.
func (c *Column) Cap() int {
	switch c.typ {
	case format.TypeInt16:
		return cap(c.i16)
	case format.TypeInt32:
		return cap(c.i32)
	case format.TypeInt64:
		return cap(c.i64)
	case format.TypeFloat64:
		return cap(c.f64)
	case format.TypeString:
		return cap(c.str)
	default:
		return 0
	}
}

// grownCap picks the capacity for needed total elements. Capacity grows to
// ceil(cap*growthFactor), or when the requirement exceeds that, to at
// least double the current capacity. growSlice copies only the live prefix.
func grownCap(cur, needed int) int {
	next := int(math.Ceil(float64(cur) * growthFactor))
	if needed > next {
		next = 2 * cur
		if needed > next {
			next = needed
		}
	}
	if next < needed {
		next = needed
	}

	return next
}

func growSlice[T any](s []T, needed int) []T {
	if cap(s) >= needed {
		return s
	}

	next := make([]T, len(s), grownCap(cap(s), needed))
	copy(next, s)

	return next
}

// Reserve grows the backing storage to hold at least n total elements.
// Borrowed columns fail with an Unsupported error.
func (c *Column) Reserve(n int) error {
	if c.borrowed {
		return errs.Newf(errs.KindUnsupported, "column %q is a borrowed view and cannot grow", c.name)
	}

	switch c.typ {
	case format.TypeInt16:
		c.i16 = growSlice(c.i16, n)
	case format.TypeInt32:
		c.i32 = growSlice(c.i32, n)
	case format.TypeInt64:
		c.i64 = growSlice(c.i64, n)
	case format.TypeFloat64:
		c.f64 = growSlice(c.f64, n)
	case format.TypeString:
		c.str = growSlice(c.str, n)
	}

	return nil
}

// append adds one coerced value, growing through the capacity policy.
// Null appends the per-type zero.
func (c *Column) append(v Value) error {
	if c.borrowed {
		return errs.Newf(errs.KindUnsupported, "column %q is a borrowed view and cannot grow", c.name)
	}
	if c.Len() == c.Cap() {
		if err := c.Reserve(c.Len() + 1); err != nil {
			return err
		}
	}

	switch c.typ {
	case format.TypeInt16:
		c.i16 = append(c.i16, int16(v.Int64()))
	case format.TypeInt32:
		c.i32 = append(c.i32, int32(v.Int64()))
	case format.TypeInt64:
		c.i64 = append(c.i64, v.Int64())
	case format.TypeFloat64:
		c.f64 = append(c.f64, v.Float64())
	case format.TypeString:
		if v.IsNull() {
			c.str = append(c.str, "")
		} else {
			c.str = append(c.str, v.Text())
		}
	}

	return nil
}

// set overwrites the element at index with a coerced value.
func (c *Column) set(index int, v Value) {
	switch c.typ {
	case format.TypeInt16:
		c.i16[index] = int16(v.Int64())
	case format.TypeInt32:
		c.i32[index] = int32(v.Int64())
	case format.TypeInt64:
		c.i64[index] = v.Int64()
	case format.TypeFloat64:
		c.f64[index] = v.Float64()
	case format.TypeString:
		if v.IsNull() {
			c.str[index] = ""
		} else {
			c.str[index] = v.Text()
		}
	}
}

// Value returns the element at index as a tagged Value.
func (c *Column) Value(index int) Value {
	switch c.typ {
	case format.TypeInt16:
		return Int(int64(c.i16[index]))
	case format.TypeInt32:
		return Int(int64(c.i32[index]))
	case format.TypeInt64:
		return Int(c.i64[index])
	case format.TypeFloat64:
		return Float(c.f64[index])
	case format.TypeString:
		return Str(c.str[index])
	default:
		return Null()
	}
}

// Float64At returns the element at index coerced to float64 without
// materializing a Value.
func (c *Column) Float64At(index int) float64 {
	switch c.typ {
	case format.TypeInt16:
		return float64(c.i16[index])
	case format.TypeInt32:
		return float64(c.i32[index])
	case format.TypeInt64:
		return float64(c.i64[index])
	case format.TypeFloat64:
		return c.f64[index]
	default:
		return 0
	}
}

// Int64s returns the typed borrow of an i64 column, length row count.
func (c *Column) Int64s() ([]int64, error) {
	if c.typ != format.TypeInt64 {
		return nil, errs.Newf(errs.KindTypeMismatch, "column %q is %s, not i64", c.name, c.typ)
	}

	return c.i64, nil
}

// Float64s returns the typed borrow of an f64 column, length row count.
func (c *Column) Float64s() ([]float64, error) {
	if c.typ != format.TypeFloat64 {
		return nil, errs.Newf(errs.KindTypeMismatch, "column %q is %s, not f64", c.name, c.typ)
	}

	return c.f64, nil
}

// Int32s returns the typed borrow of an i32 column.
func (c *Column) Int32s() ([]int32, error) {
	if c.typ != format.TypeInt32 {
		return nil, errs.Newf(errs.KindTypeMismatch, "column %q is %s, not i32", c.name, c.typ)
	}

	return c.i32, nil
}

// Int16s returns the typed borrow of an i16 column.
func (c *Column) Int16s() ([]int16, error) {
	if c.typ != format.TypeInt16 {
		return nil, errs.Newf(errs.KindTypeMismatch, "column %q is %s, not i16", c.name, c.typ)
	}

	return c.i16, nil
}

// Strings returns the typed borrow of a string column.
func (c *Column) Strings() ([]string, error) {
	if c.typ != format.TypeString {
		return nil, errs.Newf(errs.KindTypeMismatch, "column %q is %s, not string", c.name, c.typ)
	}

	return c.str, nil
}

// truncate shortens the live length to n.
func (c *Column) truncate(n int) {
	switch c.typ {
	case format.TypeInt16:
		c.i16 = c.i16[:n]
	case format.TypeInt32:
		c.i32 = c.i32[:n]
	case format.TypeInt64:
		c.i64 = c.i64[:n]
	case format.TypeFloat64:
		c.f64 = c.f64[:n]
	case format.TypeString:
		c.str = c.str[:n]
	}
}

// Monomorphized numeric reduction kernels.

func sumKernel[T constraints.Integer | constraints.Float](xs []T) float64 {
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}

	return sum
}

func minKernel[T constraints.Integer | constraints.Float](xs []T) float64 {
	m := math.Inf(1)
	for _, x := range xs {
		if float64(x) < m {
			m = float64(x)
		}
	}

	return m
}

func maxKernel[T constraints.Integer | constraints.Float](xs []T) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		if float64(x) > m {
			m = float64(x)
		}
	}

	return m
}

func (c *Column) sum() float64 {
	switch c.typ {
	case format.TypeInt16:
		return sumKernel(c.i16)
	case format.TypeInt32:
		return sumKernel(c.i32)
	case format.TypeInt64:
		return sumKernel(c.i64)
	case format.TypeFloat64:
		return sumKernel(c.f64)
	default:
		return 0
	}
}

func (c *Column) min() float64 {
	switch c.typ {
	case format.TypeInt16:
		return minKernel(c.i16)
	case format.TypeInt32:
		return minKernel(c.i32)
	case format.TypeInt64:
		return minKernel(c.i64)
	case format.TypeFloat64:
		return minKernel(c.f64)
	default:
		return math.Inf(1)
	}
}

func (c *Column) max() float64 {
	switch c.typ {
	case format.TypeInt16:
		return maxKernel(c.i16)
	case format.TypeInt32:
		return maxKernel(c.i32)
	case format.TypeInt64:
		return maxKernel(c.i64)
	case format.TypeFloat64:
		return maxKernel(c.f64)
	default:
		return math.Inf(-1)
	}
}
