package spcline

import (
	"errors"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := &ValidationError{Failures: []LimitFailure{
		FailureAverageOutsideLimits,
		FailureLimitsInverted,
	}}

	if !errors.Is(err, ErrInvalidLimits) {
		t.Error("expected error to match ErrInvalidLimits")
	}
	if errors.Is(err, ErrBadInput) {
		t.Error("validation errors should not match unrelated sentinels")
	}
	want := "invalid limits: average outside limits; upper limit not above lower limit"
	if err.Error() != want {
		t.Errorf("unexpected message: %s", err.Error())
	}

	if !err.Has(FailureAverageOutsideLimits) {
		t.Error("expected Has to report the recorded failure")
	}
	if err.Has(FailureMovementAboveRangeLimit) {
		t.Error("Has should not report failures that were not recorded")
	}
}

func TestValidationError_EmptyIsNil(t *testing.T) {
	if err := newValidationError(nil); err != nil {
		t.Errorf("no failures should produce a nil error, got %v", err)
	}
}

func TestLimitFailure_String(t *testing.T) {
	cases := []struct {
		failure LimitFailure
		want    string
	}{
		{FailureAverageOutsideLimits, "average outside limits"},
		{FailureMovementAboveRangeLimit, "average movement above upper range limit"},
		{FailureLimitsInverted, "upper limit not above lower limit"},
		{LimitFailure(99), "unknown failure"},
	}
	for _, tc := range cases {
		if got := tc.failure.String(); got != tc.want {
			t.Errorf("String(%d) = %q, want %q", tc.failure, got, tc.want)
		}
	}
}

func TestStoreError(t *testing.T) {
	cause := errors.New("disk full")

	// Error with a metric name includes it.
	err := newStoreError("save", "cpu.latency", cause)
	if err.Error() != "store save [cpu.latency]: disk full" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("StoreError should unwrap to its cause")
	}

	// Sentinel causes stay matchable through the wrapper.
	notFound := newStoreError("get", "cpu.latency", ErrMetricNotFound)
	if !errors.Is(notFound, ErrMetricNotFound) {
		t.Error("expected error to match ErrMetricNotFound")
	}

	// Error without a metric name.
	bare := newStoreError("list", "", cause)
	if bare.Error() != "store list: disk full" {
		t.Errorf("unexpected message: %s", bare.Error())
	}
}

func TestSnapshotError(t *testing.T) {
	cause := errors.New("checksum mismatch")
	err := newSnapshotError("restore", cause)

	if err.Error() != "snapshot restore: checksum mismatch" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("SnapshotError should unwrap to its cause")
	}

	var snapErr *SnapshotError
	if !errors.As(err, &snapErr) || snapErr.Stage != "restore" {
		t.Error("expected errors.As to recover the stage")
	}
}
