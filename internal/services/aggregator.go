package services

import (
	"cmp"
	"fmt"
	"slices"

	"hdbdash/internal/core"

	"github.com/shopspring/decimal"
)

var (
	lowerPad = decimal.RequireFromString("0.95")
	upperPad = decimal.RequireFromString("1.05")
)

type bucketKey struct {
	month, town, flatType string
}

type bucket struct {
	sum   decimal.Decimal
	count int64
}

// Aggregate merges the datasets and computes the monthly mean of the chosen
// metric per (month, town, flat type), rounded to the nearest hundred.
//
// Records take the town and flat type of the dataset they came in. The
// result is ordered by town, flat type, then month. An empty merge yields
// core.ErrEmptyResult; a bad number anywhere fails the whole aggregation.
func Aggregate(datasets []core.Dataset, metric core.Metric) (core.AggregateResult, error) {
	if !metric.IsValid() {
		return core.AggregateResult{}, fmt.Errorf("%w: unknown metric %q", core.ErrInvalidSelection, metric)
	}

	buckets := make(map[bucketKey]*bucket)
	total := 0
	for _, ds := range datasets {
		for _, r := range ds.Tagged().Records {
			total++
			price, err := r.Price(metric)
			if err != nil {
				return core.AggregateResult{}, err
			}
			k := bucketKey{month: r.Month, town: r.Town, flatType: r.FlatType}
			b, ok := buckets[k]
			if !ok {
				b = &bucket{}
				buckets[k] = b
			}
			b.sum = b.sum.Add(price)
			b.count++
		}
	}
	if total == 0 {
		return core.AggregateResult{}, core.ErrEmptyResult
	}

	out := core.AggregateResult{
		Metric:     metric,
		Aggregates: make([]core.MonthlyAggregate, 0, len(buckets)),
	}
	var lo, hi decimal.Decimal
	first := true
	for k, b := range buckets {
		mean := b.sum.Div(decimal.NewFromInt(b.count)).RoundBank(-2)
		if first || mean.LessThan(lo) {
			lo = mean
		}
		if first || mean.GreaterThan(hi) {
			hi = mean
		}
		first = false
		out.Aggregates = append(out.Aggregates, core.MonthlyAggregate{
			Month:    k.month,
			Town:     k.town,
			FlatType: k.flatType,
			Value:    mean.InexactFloat64(),
		})
	}

	slices.SortFunc(out.Aggregates, func(a, b core.MonthlyAggregate) int {
		return cmp.Or(
			cmp.Compare(a.Town, b.Town),
			cmp.Compare(a.FlatType, b.FlatType),
			cmp.Compare(a.Month, b.Month),
		)
	})
	out.Bounds = Bounds(lo, hi)
	return out, nil
}

// Bounds pads a value range to a chart axis: 5% below the minimum and 5%
// above the maximum.
func Bounds(lo, hi decimal.Decimal) core.AxisBounds {
	return core.AxisBounds{
		Min: lo.Mul(lowerPad).InexactFloat64(),
		Max: hi.Mul(upperPad).InexactFloat64(),
	}
}
