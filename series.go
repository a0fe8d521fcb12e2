package spcline

import (
	"math"
	"sort"
)

// ========== Numeric Helpers ==========
//
// Shared arithmetic for the limit calculator, violation detector, and outlier
// engine. Rounding follows half-up semantics (halves round toward positive
// infinity) so results match what charting clients display.

func abs(x float64) float64 {
	return math.Abs(x)
}

// round2 rounds to two decimal places, halves toward positive infinity.
func round2(x float64) float64 {
	return math.Floor(x*100+0.5) / 100
}

// round4 rounds to four decimal places, halves toward positive infinity.
func round4(x float64) float64 {
	return math.Floor(x*10000+0.5) / 10000
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := sortedCopy(values)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// stdDev is the population standard deviation (divisor n).
func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// skewness is the population skewness (third standardized moment). Zero when
// the series has no spread.
func skewness(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sd := stdDev(values)
	if sd == 0 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := (v - m) / sd
		sum += d * d * d
	}
	return sum / float64(len(values))
}

// movingRanges returns the n-1 absolute consecutive differences.
func movingRanges(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	ranges := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		ranges[i-1] = abs(values[i] - values[i-1])
	}
	return ranges
}

func sortedCopy(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}

// percentileNearest returns the p-th percentile of values using the
// nearest-rank method: the smallest element with at least p percent of the
// data at or below it.
func percentileNearest(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := sortedCopy(values)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
