package table

import (
	"sort"

	"github.com/arloliu/ndts/errs"
)

// SampleOp selects a per-column reduction for SampleBy.
type SampleOp string

const (
	SampleFirst SampleOp = "first"
	SampleLast  SampleOp = "last"
	SampleMin   SampleOp = "min"
	SampleMax   SampleOp = "max"
	SampleSum   SampleOp = "sum"
	SampleAvg   SampleOp = "avg"
)

// SampleAggregation pairs a source column with a reduction.
type SampleAggregation struct {
	Column string
	Op     SampleOp
}

type sampleBucket struct {
	ts    int64
	first map[string]float64
	last  map[string]float64
	min   map[string]float64
	max   map[string]float64
	sum   map[string]float64
	count int
}

// SampleBy buckets rows by floor(ts/interval)*interval over the named time
// column and applies the requested per-column reductions. Result rows are
// sorted ascending by bucket time; the output key is `${column}_${op}`
// when a column has more than one reduction, else just `${column}`. Empty
// buckets are never emitted.
func (t *Table) SampleBy(timeColumn string, interval int64, aggs []SampleAggregation) ([]Row, error) {
	if interval <= 0 {
		return nil, errs.New(errs.KindInvariant, "sample interval must be positive")
	}

	tsCol, err := t.Column(timeColumn)
	if err != nil {
		return nil, err
	}
	ts, err := tsCol.Int64s()
	if err != nil {
		return nil, err
	}

	cols := make(map[string]*Column, len(aggs))
	perColumn := make(map[string]int, len(aggs))
	for _, agg := range aggs {
		col, err := t.Column(agg.Column)
		if err != nil {
			return nil, err
		}
		if !col.Type().Numeric() {
			return nil, errs.Newf(errs.KindTypeMismatch, "sample_by over non-numeric column %q", agg.Column)
		}
		cols[agg.Column] = col
		perColumn[agg.Column]++
	}

	buckets := make(map[int64]*sampleBucket)
	for i := 0; i < t.rowCount; i++ {
		bucketTS := (ts[i] / interval) * interval
		if ts[i] < 0 && ts[i]%interval != 0 {
			bucketTS -= interval
		}

		b, ok := buckets[bucketTS]
		if !ok {
			b = &sampleBucket{
				ts:    bucketTS,
				first: make(map[string]float64),
				last:  make(map[string]float64),
				min:   make(map[string]float64),
				max:   make(map[string]float64),
				sum:   make(map[string]float64),
			}
			buckets[bucketTS] = b
		}

		for name, col := range cols {
			v := col.Float64At(i)
			if b.count == 0 {
				b.first[name] = v
				b.min[name] = v
				b.max[name] = v
			} else {
				if v < b.min[name] {
					b.min[name] = v
				}
				if v > b.max[name] {
					b.max[name] = v
				}
			}
			b.last[name] = v
			b.sum[name] += v
		}
		b.count++
	}

	ordered := make([]*sampleBucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ts < ordered[j].ts })

	rows := make([]Row, 0, len(ordered))
	for _, b := range ordered {
		row := Row{timeColumn: Int(b.ts)}
		for _, agg := range aggs {
			key := agg.Column
			if perColumn[agg.Column] > 1 {
				key = agg.Column + "_" + string(agg.Op)
			}

			var v float64
			switch agg.Op {
			case SampleFirst:
				v = b.first[agg.Column]
			case SampleLast:
				v = b.last[agg.Column]
			case SampleMin:
				v = b.min[agg.Column]
			case SampleMax:
				v = b.max[agg.Column]
			case SampleSum:
				v = b.sum[agg.Column]
			case SampleAvg:
				v = b.sum[agg.Column] / float64(b.count)
			default:
				return nil, errs.Newf(errs.KindUnsupported, "unknown sample op %q", agg.Op)
			}
			row[key] = Float(v)
		}
		rows = append(rows, row)
	}

	return rows, nil
}
