// Package derived recomputes Client/Product aggregate state after a
// load: RFM/segment/budget-band, preference/popularity, aroma profile,
// and K-means cluster. Every service here is idempotent and per-tenant.
package derived

import "sort"

// Quintile scores a raw value into 1..5 using per-tenant thresholds
// (0.2, 0.4, 0.6, 0.8 by default). When invert is true, lower raw values
// score higher (used for recency: fewer days is better).
func Quintile(sorted []float64, value float64, thresholds [4]float64, invert bool) int {
	if len(sorted) == 0 {
		return 1
	}
	rank := percentileRank(sorted, value)
	score := 1
	switch {
	case rank <= thresholds[0]:
		score = 1
	case rank <= thresholds[1]:
		score = 2
	case rank <= thresholds[2]:
		score = 3
	case rank <= thresholds[3]:
		score = 4
	default:
		score = 5
	}
	if invert {
		return 6 - score
	}
	return score
}

// percentileRank returns value's position in the sorted ascending
// distribution as a 0..1 fraction: the count of values strictly below it
// divided by the population size. A value tied for the lowest band (the
// degenerate single-point case in particular) lands at the bottom of the
// distribution rather than the top.
func percentileRank(sorted []float64, value float64) float64 {
	idx := sort.SearchFloat64s(sorted, value)
	return float64(idx) / float64(len(sorted))
}

// Quantile returns the linear-interpolated q-quantile (0..1) of a sorted
// ascending slice, used for the q33/q66 budget-band split.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}
