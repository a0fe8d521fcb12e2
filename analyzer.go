package spcline

// OverlayKind identifies which chart overlay is in force.
type OverlayKind int

const (
	// OverlayNone shows the plain individuals chart.
	OverlayNone OverlayKind = iota
	// OverlayTrend screens observations against sloping fitted lines.
	OverlayTrend
	// OverlaySeasonality analyzes the deseasonalized series.
	OverlaySeasonality
	// OverlayLock judges observations against a frozen baseline.
	OverlayLock
)

// String returns the overlay name.
func (k OverlayKind) String() string {
	switch k {
	case OverlayNone:
		return "none"
	case OverlayTrend:
		return "trend"
	case OverlaySeasonality:
		return "seasonality"
	case OverlayLock:
		return "lock"
	default:
		return "unknown"
	}
}

// OverlayState is the caller-owned record of the active overlay. The three
// overlays are mutually exclusive by construction: Active is a single value
// and each activation replaces the previous one, so the engine never has to
// arbitrate between conflicting overlays.
type OverlayState struct {
	Active OverlayKind `json:"active"`
	// Lock carries the frozen baseline while Active is OverlayLock.
	Lock *LockedLimitState `json:"lock,omitempty"`
	// SeasonalPeriod and SeasonalGrouping configure the seasonality
	// overlay while it is active.
	SeasonalPeriod   Period   `json:"seasonal_period,omitempty"`
	SeasonalGrouping Grouping `json:"seasonal_grouping,omitempty"`
}

// ActivateTrend switches to the trend overlay.
func (o *OverlayState) ActivateTrend() {
	*o = OverlayState{Active: OverlayTrend}
}

// ActivateSeasonality switches to the seasonality overlay.
func (o *OverlayState) ActivateSeasonality(period Period, grouping Grouping) {
	*o = OverlayState{Active: OverlaySeasonality, SeasonalPeriod: period, SeasonalGrouping: grouping}
}

// ActivateLock switches to the lock overlay with the given state.
func (o *OverlayState) ActivateLock(lock *LockedLimitState) {
	*o = OverlayState{Active: OverlayLock, Lock: lock}
}

// Deactivate returns to the plain chart.
func (o *OverlayState) Deactivate() {
	*o = OverlayState{}
}

// AnalysisOptions selects everything that shapes one analysis pass.
type AnalysisOptions struct {
	// Mode is the limit mode for every computed limit set.
	Mode LimitMode `json:"mode"`
	// Overlay is the active overlay, if any.
	Overlay OverlayState `json:"overlay"`
	// Dividers splits the series into segments when interior dividers
	// are present.
	Dividers *DividerSet `json:"dividers,omitempty"`
	// IncludeOutliers adds a consensus outlier report to the result.
	IncludeOutliers bool `json:"include_outliers"`
	// Outliers tunes the outlier report; the zero value uses defaults
	// with the analysis limit mode.
	Outliers OutlierConfig `json:"outliers"`
}

// AnalysisResult is the complete outcome of one analysis pass, a plain value
// ready for JSON serialization. Which optional sections are present follows
// from the options: an overlay contributes its section, dividers contribute
// segments, and a short series yields only the insufficient marker.
type AnalysisResult struct {
	Mode LimitMode `json:"mode"`
	// Insufficient is set when the series has fewer than two observations
	// and nothing could be computed.
	Insufficient bool `json:"insufficient,omitempty"`
	// Limits covers the undivided series, or the locked baseline when a
	// lock is in force. Per-segment limits live in Segments.
	Limits ControlLimits `json:"limits"`
	// Points are the moving-range points of the analyzed series.
	Points []RangedPoint `json:"points,omitempty"`
	// Violations holds the pattern rule hits, in series indices.
	Violations ViolationSet `json:"violations"`
	// Overlay echoes which overlay produced this result.
	Overlay OverlayKind `json:"overlay"`
	// Regression and Trend are present under the trend overlay.
	Regression *RegressionStats `json:"regression,omitempty"`
	Trend      *TrendLimits     `json:"trend,omitempty"`
	// Seasonal and Deseasonalized are present under the seasonality
	// overlay; all other sections then describe the deseasonalized series.
	Seasonal       *SeasonalFactors `json:"seasonal,omitempty"`
	Deseasonalized Series           `json:"deseasonalized,omitempty"`
	// Lock echoes the frozen baseline under the lock overlay.
	Lock *LockedLimitState `json:"lock,omitempty"`
	// Segments is present when interior dividers split the series.
	Segments []SegmentStats `json:"segments,omitempty"`
	// Outliers is present when the options requested it.
	Outliers *OutlierReport `json:"outliers,omitempty"`
}

// Analyze runs the full analysis pipeline over a series: seasonal adjustment
// if active, limit computation or the locked baseline, trend fitting if
// active, pattern screening, segmentation, and the optional outlier report.
// It is a pure function of its inputs; the same series and options always
// produce the same result, and the input series is never mutated.
func Analyze(s Series, opts AnalysisOptions) (*AnalysisResult, error) {
	result := &AnalysisResult{Mode: opts.Mode, Overlay: opts.Overlay.Active}
	if len(s) < 2 {
		result.Insufficient = true
		return result, nil
	}

	working := s
	if opts.Overlay.Active == OverlaySeasonality {
		factors, err := ComputeFactors(s, opts.Overlay.SeasonalPeriod, opts.Overlay.SeasonalGrouping)
		if err != nil {
			return nil, err
		}
		adjusted, err := Deseasonalize(s, factors)
		if err != nil {
			return nil, err
		}
		result.Seasonal = factors
		result.Deseasonalized = adjusted
		working = adjusted
	}

	var lock *LockedLimitState
	if opts.Overlay.Active == OverlayLock && opts.Overlay.Lock != nil && opts.Overlay.Lock.Locked {
		lock = opts.Overlay.Lock
		result.Lock = lock
	}

	dividersActive := opts.Dividers != nil && len(opts.Dividers.Interior) > 0

	if opts.Overlay.Active == OverlayTrend {
		subject := working
		if dividersActive {
			first, err := firstSegmentOf(working, opts.Dividers)
			if err != nil {
				return nil, err
			}
			subject = first
		}
		if stats := Regress(subject); stats != nil {
			result.Regression = stats
			result.Trend = BuildTrendLimits(stats, len(subject))
		}
	}

	if lock != nil {
		result.Limits = lock.Limits
	} else {
		result.Limits = ComputeLimits(working, opts.Mode)
	}
	result.Points = RangedPoints(working)

	if dividersActive {
		segments, err := AnalyzeSegments(working, opts.Dividers, SegmentOptions{
			Mode:  opts.Mode,
			Lock:  lock,
			Trend: result.Trend,
		})
		if err != nil {
			return nil, err
		}
		result.Segments = segments.Segments
		result.Violations = segments.Violations
	} else {
		result.Violations = DetectViolations(working, result.Limits, result.Trend)
	}

	if opts.IncludeOutliers {
		cfg := opts.Outliers
		if cfg == (OutlierConfig{}) {
			cfg = DefaultOutlierConfig()
			cfg.Mode = opts.Mode
		}
		result.Outliers = DetectOutliers(s, cfg)
	}
	return result, nil
}

// firstSegmentOf cuts the series at the earliest interior divider. Trend
// fitting under dividers uses only this slice, because the overlay describes
// the first segment's behaviour.
func firstSegmentOf(s Series, dividers *DividerSet) (Series, error) {
	times, err := s.Times()
	if err != nil {
		return nil, err
	}
	cut := dividers.boundaries()[1]
	end := 0
	for end < len(s) && times[end].Before(cut) {
		end++
	}
	return s[:end], nil
}
