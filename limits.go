package spcline

import "fmt"

// LimitMode selects the central-tendency statistic for control limits.
type LimitMode int

const (
	// ModeMean centres limits on the arithmetic mean (scaling factors
	// 2.66 and 3.268).
	ModeMean LimitMode = iota
	// ModeMedian centres limits on the median (scaling factors 3.145 and
	// 3.865), which resists skew from extreme points.
	ModeMedian
)

// String returns a human-readable limit mode name.
func (m LimitMode) String() string {
	switch m {
	case ModeMean:
		return "mean"
	case ModeMedian:
		return "median"
	default:
		return "unknown"
	}
}

// ParseLimitMode parses a limit mode name.
func ParseLimitMode(s string) (LimitMode, error) {
	switch s {
	case "", "mean":
		return ModeMean, nil
	case "median":
		return ModeMedian, nil
	default:
		return 0, fmt.Errorf("%w: limit mode %q", ErrBadInput, s)
	}
}

// Scaling factors for individuals and moving-range charts. The natural
// process limits sit at centre ± LimitScale * average moving range, and the
// upper range limit at RangeScale * average moving range.
const (
	MeanLimitScale   = 2.66
	MeanRangeScale   = 3.268
	MedianLimitScale = 3.145
	MedianRangeScale = 3.865
)

// ControlLimits holds the derived chart statistics for an individuals and
// moving-range chart. All values are rounded to two decimal places. A series
// with fewer than two observations yields the zero value, which callers
// should treat as "insufficient data" rather than as a failure.
type ControlLimits struct {
	// AvgX is the centre line of the individuals chart.
	AvgX float64 `json:"avg_x"`
	// AvgMovement is the centre line of the moving-range chart.
	AvgMovement float64 `json:"avg_movement"`
	// UNPL is the upper natural process limit.
	UNPL float64 `json:"unpl"`
	// LNPL is the lower natural process limit.
	LNPL float64 `json:"lnpl"`
	// URL is the upper range limit for the moving-range chart.
	URL float64 `json:"url"`
	// LowerQuartile is the midpoint between LNPL and AvgX.
	LowerQuartile float64 `json:"lower_quartile"`
	// UpperQuartile is the midpoint between AvgX and UNPL.
	UpperQuartile float64 `json:"upper_quartile"`
}

// IsZero reports whether the limits are the insufficient-data sentinel.
func (c ControlLimits) IsZero() bool {
	return c == ControlLimits{}
}

// limitScales returns the process-limit and range-limit scaling factors for
// the mode.
func limitScales(mode LimitMode) (limit, rng float64) {
	if mode == ModeMedian {
		return MedianLimitScale, MedianRangeScale
	}
	return MeanLimitScale, MeanRangeScale
}

// ComputeLimits derives control limits from a series. The centre statistics
// are computed on the raw values and every derived limit is taken from those
// unrounded statistics, so rounding error never compounds; only the returned
// fields are rounded.
func ComputeLimits(s Series, mode LimitMode) ControlLimits {
	return computeLimitValues(s.Values(), mode)
}

func computeLimitValues(values []float64, mode LimitMode) ControlLimits {
	if len(values) < 2 {
		return ControlLimits{}
	}
	ranges := movingRanges(values)

	var avgX, avgMovement float64
	switch mode {
	case ModeMedian:
		avgX = median(values)
		avgMovement = median(ranges)
	default:
		avgX = mean(values)
		avgMovement = mean(ranges)
	}

	limitScale, rangeScale := limitScales(mode)
	unpl := avgX + limitScale*avgMovement
	lnpl := avgX - limitScale*avgMovement

	return ControlLimits{
		AvgX:          round2(avgX),
		AvgMovement:   round2(avgMovement),
		UNPL:          round2(unpl),
		LNPL:          round2(lnpl),
		URL:           round2(rangeScale * avgMovement),
		LowerQuartile: round2((lnpl + avgX) / 2),
		UpperQuartile: round2((avgX + unpl) / 2),
	}
}
