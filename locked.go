package spcline

// quartileSymmetryTolerance bounds how far the quartile midpoints may drift
// from symmetry around the centre line before quartile-based rules and
// display are suppressed.
const quartileSymmetryTolerance = 0.001

// LockSource records how a limit lock came to be.
type LockSource int

const (
	// LockManual means a caller supplied or edited the limits.
	LockManual LockSource = iota
	// LockAuto means the limits were proposed from an outlier-cleaned
	// baseline.
	LockAuto
)

// String returns the lock source name.
func (s LockSource) String() string {
	switch s {
	case LockManual:
		return "manual"
	case LockAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// LockedLimitState freezes a set of control limits so new observations are
// judged against a fixed baseline instead of shifting it. Which fields were
// hand-edited is carried as explicit flags, one per editable value.
type LockedLimitState struct {
	// Locked reports whether the lock is in force.
	Locked bool `json:"locked"`
	// AvgXModified, UNPLModified and LNPLModified mark hand-edited values.
	AvgXModified bool `json:"avg_x_modified"`
	UNPLModified bool `json:"unpl_modified"`
	LNPLModified bool `json:"lnpl_modified"`
	// Source records whether the lock was manual or proposed automatically.
	Source LockSource `json:"source"`
	// Limits is the frozen baseline.
	Limits ControlLimits `json:"limits"`
	// Excluded lists observation indices removed from the baseline, for
	// an automatic lock the consensus outliers.
	Excluded []int `json:"excluded,omitempty"`
}

// LockEdits carries the values a caller wants to override when locking
// manually. Nil fields keep the base value.
type LockEdits struct {
	AvgX *float64
	UNPL *float64
	LNPL *float64
}

// ValidateLimits checks the three limit invariants and returns a
// ValidationError naming every one that failed, or nil. The centre line must
// sit between the natural process limits, the average moving range must not
// exceed the upper range limit, and the upper limit must sit above the lower.
func ValidateLimits(l ControlLimits) error {
	var failures []LimitFailure
	if l.AvgX < l.LNPL || l.AvgX > l.UNPL {
		failures = append(failures, FailureAverageOutsideLimits)
	}
	if l.AvgMovement > l.URL {
		failures = append(failures, FailureMovementAboveRangeLimit)
	}
	if l.UNPL <= l.LNPL {
		failures = append(failures, FailureLimitsInverted)
	}
	return newValidationError(failures)
}

// NewManualLock merges caller edits over a computed base, revalidates, and
// returns the locked state. Editing any of the three values recomputes the
// quartile midpoints from the merged limits. Invalid merges return a
// ValidationError and no state, so a lock in force is always a valid one.
func NewManualLock(base ControlLimits, edits LockEdits) (*LockedLimitState, error) {
	state := &LockedLimitState{
		Locked: true,
		Source: LockManual,
		Limits: base,
	}
	if edits.AvgX != nil {
		state.Limits.AvgX = *edits.AvgX
		state.AvgXModified = true
	}
	if edits.UNPL != nil {
		state.Limits.UNPL = *edits.UNPL
		state.UNPLModified = true
	}
	if edits.LNPL != nil {
		state.Limits.LNPL = *edits.LNPL
		state.LNPLModified = true
	}
	if state.Modified() {
		state.Limits.LowerQuartile = round2((state.Limits.LNPL + state.Limits.AvgX) / 2)
		state.Limits.UpperQuartile = round2((state.Limits.AvgX + state.Limits.UNPL) / 2)
	}
	if err := ValidateLimits(state.Limits); err != nil {
		return nil, err
	}
	return state, nil
}

// NewAutoLock freezes the cleaned baseline of an outlier report. The report's
// removal indices are carried as the lock's exclusions.
func NewAutoLock(report *OutlierReport) *LockedLimitState {
	return &LockedLimitState{
		Locked:   true,
		Source:   LockAuto,
		Limits:   report.Limits,
		Excluded: append([]int(nil), report.Indices...),
	}
}

// ProposeAutoLock runs outlier detection and, when the series qualifies for
// an automatic lock, returns the cleaned baseline frozen as a lock. Returns
// nil when the series is too short, too flat, or free of consensus outliers;
// the caller decides whether to activate the proposal.
func ProposeAutoLock(s Series, cfg OutlierConfig) *LockedLimitState {
	cfg.normalize()
	if len(s) < cfg.MinPoints {
		return nil
	}
	values := s.Values()
	sd := stdDev(values)
	if sd == 0 {
		return nil
	}
	if m := mean(values); m != 0 && sd/abs(m) <= cfg.MinAutoLockCV {
		return nil
	}
	report := DetectOutliers(s, cfg)
	if len(report.Indices) == 0 {
		return nil
	}
	return NewAutoLock(report)
}

// Modified reports whether any value was hand-edited.
func (s *LockedLimitState) Modified() bool {
	return s.AvgXModified || s.UNPLModified || s.LNPLModified
}

// QuartilesDisplayable reports whether the quartile midpoints still sit
// symmetrically around the centre line. Hand edits can break the symmetry,
// in which case quartile lines are hidden and the quartile rule goes
// inactive.
func (s *LockedLimitState) QuartilesDisplayable() bool {
	return abs(s.Limits.UNPL+s.Limits.LNPL-2*s.Limits.AvgX) < quartileSymmetryTolerance
}
