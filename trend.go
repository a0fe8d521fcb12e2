package spcline

// RegressionStats describes the ordinary least squares fit of a series
// against its observation index, plus the average moving range of the raw,
// undetrended values. The fit is exact arithmetic over the inputs; nothing
// is rounded here.
type RegressionStats struct {
	// Slope is the fitted change in value per observation.
	Slope float64 `json:"slope"`
	// Intercept is the fitted value at index zero.
	Intercept float64 `json:"intercept"`
	// AvgMovement is the mean moving range of the raw series, which sets
	// the width of the sloping limit band.
	AvgMovement float64 `json:"avg_movement"`
}

// Regress fits a least squares line through (index, value) pairs. It returns
// nil when the series has fewer than two observations or the index column has
// no variance, so callers can treat "no trend" as a plain sentinel.
func Regress(s Series) *RegressionStats {
	return regressValues(s.Values())
}

func regressValues(values []float64) *RegressionStats {
	n := len(values)
	if n < 2 {
		return nil
	}
	meanX := float64(n-1) / 2
	meanY := mean(values)
	num, den := 0.0, 0.0
	for i, v := range values {
		dx := float64(i) - meanX
		num += dx * (v - meanY)
		den += dx * dx
	}
	if den == 0 {
		return nil
	}
	slope := num / den
	return &RegressionStats{
		Slope:       slope,
		Intercept:   meanY - slope*meanX,
		AvgMovement: mean(movingRanges(values)),
	}
}

// TrendLimits carries the chart lines of a sloping individuals chart as
// parallel per-index sequences, all the same length as the source series.
// The reduced variants narrow the band by the per-step trend movement, so a
// steady climb is not charged against the process spread; the reduced band
// never goes below zero width.
type TrendLimits struct {
	Centre               []float64 `json:"centre"`
	UNPL                 []float64 `json:"unpl"`
	LNPL                 []float64 `json:"lnpl"`
	LowerQuartile        []float64 `json:"lower_quartile"`
	UpperQuartile        []float64 `json:"upper_quartile"`
	ReducedUNPL          []float64 `json:"reduced_unpl"`
	ReducedLNPL          []float64 `json:"reduced_lnpl"`
	ReducedLowerQuartile []float64 `json:"reduced_lower_quartile"`
	ReducedUpperQuartile []float64 `json:"reduced_upper_quartile"`
}

// Len returns the number of per-index entries.
func (t *TrendLimits) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Centre)
}

// slice returns a view over entries [lo, hi), used to hand a segment its part
// of the overlay.
func (t *TrendLimits) slice(lo, hi int) *TrendLimits {
	if t == nil {
		return nil
	}
	return &TrendLimits{
		Centre:               t.Centre[lo:hi],
		UNPL:                 t.UNPL[lo:hi],
		LNPL:                 t.LNPL[lo:hi],
		LowerQuartile:        t.LowerQuartile[lo:hi],
		UpperQuartile:        t.UpperQuartile[lo:hi],
		ReducedUNPL:          t.ReducedUNPL[lo:hi],
		ReducedLNPL:          t.ReducedLNPL[lo:hi],
		ReducedLowerQuartile: t.ReducedLowerQuartile[lo:hi],
		ReducedUpperQuartile: t.ReducedUpperQuartile[lo:hi],
	}
}

// BuildTrendLimits evaluates the sloping chart lines at every index of an
// n-observation series. The band width is AvgMovement scaled by 2.66 on both
// sides of the fitted line, quartile lines at half that distance, and every
// entry is rounded to two decimal places. Returns nil when stats is nil or n
// is not positive.
func BuildTrendLimits(stats *RegressionStats, n int) *TrendLimits {
	if stats == nil || n <= 0 {
		return nil
	}
	band := stats.AvgMovement * MeanLimitScale
	reducedMovement := stats.AvgMovement - abs(stats.Slope)
	if reducedMovement < 0 {
		reducedMovement = 0
	}
	reducedBand := reducedMovement * MeanLimitScale

	t := &TrendLimits{
		Centre:               make([]float64, n),
		UNPL:                 make([]float64, n),
		LNPL:                 make([]float64, n),
		LowerQuartile:        make([]float64, n),
		UpperQuartile:        make([]float64, n),
		ReducedUNPL:          make([]float64, n),
		ReducedLNPL:          make([]float64, n),
		ReducedLowerQuartile: make([]float64, n),
		ReducedUpperQuartile: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		centre := stats.Intercept + stats.Slope*float64(i)
		t.Centre[i] = round2(centre)
		t.UNPL[i] = round2(centre + band)
		t.LNPL[i] = round2(centre - band)
		t.LowerQuartile[i] = round2(centre - band/2)
		t.UpperQuartile[i] = round2(centre + band/2)
		t.ReducedUNPL[i] = round2(centre + reducedBand)
		t.ReducedLNPL[i] = round2(centre - reducedBand)
		t.ReducedLowerQuartile[i] = round2(centre - reducedBand/2)
		t.ReducedUpperQuartile[i] = round2(centre + reducedBand/2)
	}
	return t
}
