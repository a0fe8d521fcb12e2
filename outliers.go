package spcline

import (
	"math"
	"sort"
)

// OutlierConfig tunes the consensus outlier detector. The zero value is
// usable; DetectOutliers fills unset fields from DefaultOutlierConfig.
type OutlierConfig struct {
	// MinPoints is the minimum series length before detection runs,
	// clamped to [6, 10].
	MinPoints int `json:"min_points" yaml:"min_points"`
	// ZScoreThreshold flags values whose absolute z-score exceeds it.
	ZScoreThreshold float64 `json:"z_score_threshold" yaml:"z_score_threshold"`
	// ModifiedZThreshold flags values whose absolute modified z-score
	// (MAD based) exceeds it.
	ModifiedZThreshold float64 `json:"modified_z_threshold" yaml:"modified_z_threshold"`
	// ExtremeZ lets a single method carry the consensus on its own, and
	// guards the most recent observation against removal.
	ExtremeZ float64 `json:"extreme_z" yaml:"extreme_z"`
	// MaxRemovalFraction caps how much of the series may be removed.
	MaxRemovalFraction float64 `json:"max_removal_fraction" yaml:"max_removal_fraction"`
	// MinAutoLockCV is the coefficient of variation a series must exceed
	// before an automatic limit lock is proposed.
	MinAutoLockCV float64 `json:"min_auto_lock_cv" yaml:"min_auto_lock_cv"`
	// Mode selects the limit mode for the cleaned-baseline limits.
	Mode LimitMode `json:"mode" yaml:"-"`
}

// DefaultOutlierConfig returns the standard detector tuning.
func DefaultOutlierConfig() OutlierConfig {
	return OutlierConfig{
		MinPoints:          8,
		ZScoreThreshold:    2.5,
		ModifiedZThreshold: 3.5,
		ExtremeZ:           3.0,
		MaxRemovalFraction: 0.25,
		MinAutoLockCV:      0.05,
		Mode:               ModeMean,
	}
}

func (c *OutlierConfig) normalize() {
	if c.MinPoints <= 0 {
		c.MinPoints = 8
	}
	if c.MinPoints < 6 {
		c.MinPoints = 6
	}
	if c.MinPoints > 10 {
		c.MinPoints = 10
	}
	if c.ZScoreThreshold <= 0 {
		c.ZScoreThreshold = 2.5
	}
	if c.ModifiedZThreshold <= 0 {
		c.ModifiedZThreshold = 3.5
	}
	if c.ExtremeZ <= 0 {
		c.ExtremeZ = 3.0
	}
	if c.MaxRemovalFraction <= 0 || c.MaxRemovalFraction > 1 {
		c.MaxRemovalFraction = 0.25
	}
	if c.MinAutoLockCV <= 0 {
		c.MinAutoLockCV = 0.05
	}
}

// OutlierDetail explains why one observation was removed.
type OutlierDetail struct {
	// Index is the observation's position in the source series.
	Index int `json:"index"`
	// Value is the removed value.
	Value float64 `json:"value"`
	// Votes is how many detection methods flagged the value.
	Votes int `json:"votes"`
	// ZScore is the value's z-score against the full series.
	ZScore float64 `json:"z_score"`
	// Methods lists the detection methods that flagged the value.
	Methods []string `json:"methods"`
}

// OutlierReport is the outcome of a consensus detection pass. Cleaned plus
// Removed always partition the input series, so callers can reverse the
// removal without re-running detection.
type OutlierReport struct {
	// Indices are the removed observation positions, sorted ascending.
	Indices []int `json:"indices"`
	// Cleaned is the series with outliers removed, original order kept.
	Cleaned Series `json:"cleaned"`
	// Removed are the outlier observations, original order kept.
	Removed Series `json:"removed"`
	// Details explains each removal, aligned with Indices.
	Details []OutlierDetail `json:"details"`
	// Limits are control limits over the cleaned series, the candidate
	// baseline for an automatic limit lock.
	Limits ControlLimits `json:"limits"`
}

// DetectOutliers runs four detection methods over the series and removes the
// values they agree on. A value is removed when at least two methods flag it,
// or one method flags it and its z-score is extreme. Removals are ranked by
// vote count then absolute z-score and capped at MaxRemovalFraction of the
// series; the most recent observation is kept unless its z-score is extreme,
// so a fresh genuine shift is not swallowed as noise. Identical input always
// yields an identical report.
func DetectOutliers(s Series, cfg OutlierConfig) *OutlierReport {
	cfg.normalize()
	report := &OutlierReport{Cleaned: s.Clone()}
	if len(s) < cfg.MinPoints {
		report.Limits = ComputeLimits(report.Cleaned, cfg.Mode)
		return report
	}

	values := s.Values()
	zscores := zScoresOf(values)
	flags := []struct {
		name    string
		flagged []bool
	}{
		{"iqr", iqrOutliers(values)},
		{"zscore", zScoreOutliers(values, zscores, cfg.ZScoreThreshold)},
		{"mad", madOutliers(values, cfg.ModifiedZThreshold)},
		{"percentile", percentileOutliers(values)},
	}

	var candidates []outlierVote
	for i := range values {
		vote := outlierVote{index: i, absZ: abs(zscores[i])}
		for _, f := range flags {
			if f.flagged[i] {
				vote.votes++
				vote.methods = append(vote.methods, f.name)
			}
		}
		if vote.votes >= 2 || (vote.votes >= 1 && vote.absZ > cfg.ExtremeZ) {
			candidates = append(candidates, vote)
		}
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].votes != candidates[b].votes {
			return candidates[a].votes > candidates[b].votes
		}
		if candidates[a].absZ != candidates[b].absZ {
			return candidates[a].absZ > candidates[b].absZ
		}
		return candidates[a].index < candidates[b].index
	})
	if most := int(math.Floor(cfg.MaxRemovalFraction * float64(len(values)))); len(candidates) > most {
		candidates = candidates[:most]
	}

	last := len(s) - 1
	selected := candidates[:0]
	for _, c := range candidates {
		if c.index == last && c.absZ <= cfg.ExtremeZ {
			continue
		}
		selected = append(selected, c)
	}
	sort.Slice(selected, func(a, b int) bool { return selected[a].index < selected[b].index })

	removed := make(map[int]bool, len(selected))
	for _, c := range selected {
		removed[c.index] = true
		report.Indices = append(report.Indices, c.index)
		report.Details = append(report.Details, OutlierDetail{
			Index:   c.index,
			Value:   s[c.index].Value,
			Votes:   c.votes,
			ZScore:  zscores[c.index],
			Methods: c.methods,
		})
	}
	report.Cleaned = report.Cleaned[:0]
	for i, o := range s {
		if removed[i] {
			report.Removed = append(report.Removed, o)
		} else {
			report.Cleaned = append(report.Cleaned, o)
		}
	}
	report.Limits = ComputeLimits(report.Cleaned, cfg.Mode)
	return report
}

// ShouldAutoLock reports whether the series is a candidate for an automatic
// limit lock: long enough to trust, varied enough for limits to mean
// anything, and carrying at least one consensus outlier that would distort a
// naive baseline.
func ShouldAutoLock(s Series, cfg OutlierConfig) bool {
	cfg.normalize()
	if len(s) < cfg.MinPoints {
		return false
	}
	values := s.Values()
	sd := stdDev(values)
	if sd == 0 {
		return false
	}
	if m := mean(values); m != 0 && sd/abs(m) <= cfg.MinAutoLockCV {
		return false
	}
	return len(DetectOutliers(s, cfg).Indices) > 0
}

type outlierVote struct {
	index   int
	votes   int
	absZ    float64
	methods []string
}

// ========== Detection Methods ==========

// iqrOutliers flags values outside Tukey fences around the interquartile
// range. The fence multiplier adapts to the series: tight data gets a wide
// multiplier so ordinary wiggle is not flagged, noisy data a narrow one, and
// heavy skew widens it again. When the IQR collapses to zero the method falls
// back to flagging values more than ten percent away from the median.
func iqrOutliers(values []float64) []bool {
	flagged := make([]bool, len(values))
	q1 := percentileNearest(values, 25)
	q3 := percentileNearest(values, 75)
	iqr := q3 - q1

	if iqr == 0 {
		med := median(values)
		for i, v := range values {
			if med != 0 {
				flagged[i] = abs(v-med)/abs(med) > 0.10
			} else {
				flagged[i] = v != 0
			}
		}
		return flagged
	}

	multiplier := 1.5
	m := mean(values)
	cv := math.Inf(1)
	if m != 0 {
		cv = stdDev(values) / abs(m)
	}
	switch {
	case cv < 0.10:
		multiplier = 2.5
	case cv < 0.30:
		multiplier = 2.0
	}
	if abs(skewness(values)) > 1 {
		multiplier += 0.5
	}

	lower := q1 - multiplier*iqr
	upper := q3 + multiplier*iqr
	for i, v := range values {
		flagged[i] = v < lower || v > upper
	}
	return flagged
}

func zScoresOf(values []float64) []float64 {
	zscores := make([]float64, len(values))
	sd := stdDev(values)
	if sd == 0 {
		return zscores
	}
	m := mean(values)
	for i, v := range values {
		zscores[i] = (v - m) / sd
	}
	return zscores
}

// zScoreOutliers flags values whose absolute z-score exceeds the threshold.
// A flat series has no spread and produces no flags.
func zScoreOutliers(values []float64, zscores []float64, threshold float64) []bool {
	flagged := make([]bool, len(values))
	for i := range values {
		flagged[i] = abs(zscores[i]) > threshold
	}
	return flagged
}

// madOutliers flags values by modified z-score against the median absolute
// deviation, which a handful of extremes cannot drag the way they drag the
// mean. A zero MAD produces no flags.
func madOutliers(values []float64, threshold float64) []bool {
	flagged := make([]bool, len(values))
	med := median(values)
	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = abs(v - med)
	}
	mad := median(deviations)
	if mad == 0 {
		return flagged
	}
	for i, v := range values {
		modified := 0.6745 * (v - med) / mad
		flagged[i] = abs(modified) > threshold
	}
	return flagged
}

// percentileOutliers flags values strictly outside the 1st to 99th percentile
// band, nearest rank. On short series the band spans the whole range and the
// method abstains.
func percentileOutliers(values []float64) []bool {
	flagged := make([]bool, len(values))
	p1 := percentileNearest(values, 1)
	p99 := percentileNearest(values, 99)
	for i, v := range values {
		flagged[i] = v < p1 || v > p99
	}
	return flagged
}
