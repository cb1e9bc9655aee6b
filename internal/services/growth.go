package services

import (
	"fmt"
	"math"

	"hdbdash/internal/core"
)

// ComputeCAGR returns (last/first)^(12/N) - 1 for a series ordered by
// month, where N is the number of points rather than elapsed months.
func ComputeCAGR(series []core.MonthlyAggregate) (float64, error) {
	n := len(series)
	if n == 0 {
		return 0, fmt.Errorf("cagr: empty series: %w", core.ErrInsufficientData)
	}
	first, last := series[0].Value, series[n-1].Value
	if first == 0 {
		return 0, fmt.Errorf("cagr: first value of %s %s is zero: %w", series[0].Town, series[0].FlatType, core.ErrDivision)
	}
	return math.Pow(last/first, 12/float64(n)) - 1, nil
}

// GrowthRates computes one rate per filter from the aggregates. A series
// that cannot produce a rate carries the reason in Err; the others are
// unaffected.
func GrowthRates(result core.AggregateResult, filters []core.Filter) []core.GrowthRate {
	out := make([]core.GrowthRate, 0, len(filters))
	for _, f := range filters {
		series := result.Series(f.Town, f.FlatType)
		g := core.GrowthRate{Town: f.Town, FlatType: f.FlatType, Points: len(series)}
		rate, err := ComputeCAGR(series)
		if err != nil {
			g.Err = err.Error()
		} else {
			g.Rate = rate
		}
		out = append(out, g)
	}
	return out
}

// FormatPercent renders a rate as a percentage with two decimals.
func FormatPercent(rate float64) string {
	return fmt.Sprintf("%.2f%%", rate*100)
}
