package spcline

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateLimits(t *testing.T) {
	valid := ControlLimits{AvgX: 10, AvgMovement: 2, UNPL: 16, LNPL: 4, URL: 7}
	if err := ValidateLimits(valid); err != nil {
		t.Fatalf("valid limits rejected: %v", err)
	}
}

func TestValidateLimits_CentreOutside(t *testing.T) {
	err := ValidateLimits(ControlLimits{AvgX: 20, AvgMovement: 2, UNPL: 16, LNPL: 4, URL: 7})
	if !errors.Is(err, ErrInvalidLimits) {
		t.Fatalf("expected ErrInvalidLimits, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a ValidationError, got %T", err)
	}
	if !verr.Has(FailureAverageOutsideLimits) {
		t.Errorf("expected FailureAverageOutsideLimits in %v", verr.Failures)
	}
	if verr.Has(FailureLimitsInverted) {
		t.Errorf("unexpected inverted-limits failure in %v", verr.Failures)
	}
	if !strings.Contains(err.Error(), "average outside limits") {
		t.Errorf("message should name the failure: %v", err)
	}
}

func TestValidateLimits_MovementAboveRangeLimit(t *testing.T) {
	err := ValidateLimits(ControlLimits{AvgX: 10, AvgMovement: 9, UNPL: 16, LNPL: 4, URL: 7})
	var verr *ValidationError
	if !errors.As(err, &verr) || !verr.Has(FailureMovementAboveRangeLimit) {
		t.Errorf("expected FailureMovementAboveRangeLimit, got %v", err)
	}
}

func TestValidateLimits_EveryFailureReported(t *testing.T) {
	err := ValidateLimits(ControlLimits{AvgX: 5, AvgMovement: 3, UNPL: 1, LNPL: 9, URL: 1})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
	for _, f := range []LimitFailure{FailureAverageOutsideLimits, FailureMovementAboveRangeLimit, FailureLimitsInverted} {
		if !verr.Has(f) {
			t.Errorf("missing failure %v in %v", f, verr.Failures)
		}
	}
}

func TestNewManualLock_NoEdits(t *testing.T) {
	base := ComputeLimits(testSeries(10, 12, 11, 13, 12, 14, 13, 15, 14, 16), ModeMean)

	lock, err := NewManualLock(base, LockEdits{})
	if err != nil {
		t.Fatalf("NewManualLock failed: %v", err)
	}
	if !lock.Locked || lock.Source != LockManual {
		t.Errorf("unexpected lock state: %+v", lock)
	}
	if lock.Modified() {
		t.Error("no edits were made, Modified should be false")
	}
	if lock.Limits != base {
		t.Errorf("limits changed without edits:\n got  %+v\n want %+v", lock.Limits, base)
	}
	if !lock.QuartilesDisplayable() {
		t.Error("computed limits are symmetric, quartiles should display")
	}
}

func TestNewManualLock_EditRecomputesQuartiles(t *testing.T) {
	base := ComputeLimits(testSeries(10, 12, 11, 13, 12, 14, 13, 15, 14, 16), ModeMean)

	unpl := 20.0
	lock, err := NewManualLock(base, LockEdits{UNPL: &unpl})
	if err != nil {
		t.Fatalf("NewManualLock failed: %v", err)
	}
	if !lock.UNPLModified || lock.AvgXModified || lock.LNPLModified {
		t.Errorf("unexpected edit flags: %+v", lock)
	}
	if lock.Limits.UNPL != 20 {
		t.Errorf("UNPL = %v, want 20", lock.Limits.UNPL)
	}
	if lock.Limits.UpperQuartile != 16.5 {
		t.Errorf("UpperQuartile = %v, want the recomputed midpoint 16.5", lock.Limits.UpperQuartile)
	}
	if lock.Limits.LowerQuartile != 10.93 {
		t.Errorf("LowerQuartile = %v, want 10.93", lock.Limits.LowerQuartile)
	}
	if lock.QuartilesDisplayable() {
		t.Error("a one-sided edit breaks symmetry, quartiles should hide")
	}
}

func TestNewManualLock_InvalidEdit(t *testing.T) {
	base := ComputeLimits(testSeries(10, 12, 11, 13, 12, 14, 13, 15, 14, 16), ModeMean)

	avg := 100.0
	lock, err := NewManualLock(base, LockEdits{AvgX: &avg})
	if lock != nil {
		t.Errorf("invalid edit should not produce a lock, got %+v", lock)
	}
	if !errors.Is(err, ErrInvalidLimits) {
		t.Errorf("expected ErrInvalidLimits, got %v", err)
	}
}

func TestNewAutoLock(t *testing.T) {
	report := DetectOutliers(consensusSeries(), OutlierConfig{})

	lock := NewAutoLock(report)
	if !lock.Locked || lock.Source != LockAuto {
		t.Errorf("unexpected lock state: %+v", lock)
	}
	if !equalInts(lock.Excluded, []int{3}) {
		t.Errorf("Excluded = %v, want [3]", lock.Excluded)
	}
	if lock.Limits != report.Limits {
		t.Errorf("lock should freeze the cleaned baseline:\n got  %+v\n want %+v", lock.Limits, report.Limits)
	}

	// The lock owns its exclusion list.
	report.Indices[0] = 99
	if lock.Excluded[0] != 3 {
		t.Error("mutating the report leaked into the lock")
	}
}

func TestProposeAutoLock(t *testing.T) {
	lock := ProposeAutoLock(consensusSeries(), OutlierConfig{})
	if lock == nil {
		t.Fatal("expected a proposal for a series with a consensus outlier")
	}
	if lock.Source != LockAuto || !equalInts(lock.Excluded, []int{3}) {
		t.Errorf("unexpected proposal: %+v", lock)
	}

	cleaned := testSeries(10, 10.2, 9.8, 10.1, 9.9, 10.3, 9.7)
	if want := ComputeLimits(cleaned, ModeMean); lock.Limits != want {
		t.Errorf("baseline mismatch:\n got  %+v\n want %+v", lock.Limits, want)
	}
}

func TestProposeAutoLock_Declines(t *testing.T) {
	if got := ProposeAutoLock(testSeries(10, 10, 30, 10, 10), OutlierConfig{}); got != nil {
		t.Errorf("short series: expected nil, got %+v", got)
	}
	if got := ProposeAutoLock(testSeries(5, 5, 5, 5, 5, 5, 5, 5), OutlierConfig{}); got != nil {
		t.Errorf("flat series: expected nil, got %+v", got)
	}
	if got := ProposeAutoLock(testSeries(100, 100.1, 99.9, 100.05, 99.95, 100.1, 99.9, 100), OutlierConfig{}); got != nil {
		t.Errorf("low-variation series: expected nil, got %+v", got)
	}
	if got := ProposeAutoLock(testSeries(10, 12, 11, 13, 12, 14, 13, 15), OutlierConfig{}); got != nil {
		t.Errorf("series without outliers: expected nil, got %+v", got)
	}
}
