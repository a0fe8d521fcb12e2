package spcline

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors for the spcline package. Expected edge cases of the
// analysis itself (short series, flat series) degrade to documented defaults
// and never surface here; these cover malformed input, misuse of stateful
// helpers, and the boundary layers.
var (
	// ErrBadInput is returned for unparseable names, periods, or parameters.
	ErrBadInput = errors.New("invalid input")

	// ErrBadTimestamp is returned when an observation timestamp cannot be
	// parsed.
	ErrBadTimestamp = errors.New("unparseable timestamp")

	// ErrInvalidLimits is returned when a limit set fails validation.
	ErrInvalidLimits = errors.New("invalid limits")

	// ErrEmptySeries is returned by operations that need observations.
	ErrEmptySeries = errors.New("series is empty")

	// ErrDividerLimit is returned when no more interior dividers may be added.
	ErrDividerLimit = errors.New("divider limit reached")

	// ErrNoDividers is returned when only the fixed boundary dividers remain.
	ErrNoDividers = errors.New("no removable dividers")

	// ErrMetricNotFound is returned by stores for unknown metrics.
	ErrMetricNotFound = errors.New("metric not found")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// LimitFailure names one validation invariant a limit set can break.
type LimitFailure int

const (
	// FailureAverageOutsideLimits means the centre line does not sit between
	// the natural process limits.
	FailureAverageOutsideLimits LimitFailure = iota
	// FailureMovementAboveRangeLimit means the average moving range exceeds
	// the upper range limit.
	FailureMovementAboveRangeLimit
	// FailureLimitsInverted means the upper limit does not sit above the
	// lower limit.
	FailureLimitsInverted
)

// String returns the failure description shown to callers.
func (f LimitFailure) String() string {
	switch f {
	case FailureAverageOutsideLimits:
		return "average outside limits"
	case FailureMovementAboveRangeLimit:
		return "average movement above upper range limit"
	case FailureLimitsInverted:
		return "upper limit not above lower limit"
	default:
		return "unknown failure"
	}
}

// ValidationError reports exactly which invariants a limit set failed, so a
// caller can tell a misplaced centre line from inverted limits without
// parsing the message.
type ValidationError struct {
	Failures []LimitFailure
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return "invalid limits: " + strings.Join(parts, "; ")
}

// Is implements error matching for ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidLimits
}

// Has reports whether the error includes the failure.
func (e *ValidationError) Has(f LimitFailure) bool {
	for _, failure := range e.Failures {
		if failure == f {
			return true
		}
	}
	return false
}

// newValidationError creates a ValidationError, or nil when nothing failed.
func newValidationError(failures []LimitFailure) error {
	if len(failures) == 0 {
		return nil
	}
	return &ValidationError{Failures: failures}
}

// StoreError wraps a persistence failure with the operation and metric it
// occurred on.
type StoreError struct {
	Op     string
	Metric string
	Cause  error
}

func (e *StoreError) Error() string {
	if e.Metric != "" {
		return fmt.Sprintf("store %s [%s]: %v", e.Op, e.Metric, e.Cause)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// newStoreError creates a new StoreError.
func newStoreError(op, metric string, cause error) *StoreError {
	return &StoreError{Op: op, Metric: metric, Cause: cause}
}

// SnapshotError wraps a snapshot read or write failure with the stage it
// occurred at.
type SnapshotError struct {
	Stage string
	Cause error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s: %v", e.Stage, e.Cause)
}

func (e *SnapshotError) Unwrap() error {
	return e.Cause
}

// newSnapshotError creates a new SnapshotError.
func newSnapshotError(stage string, cause error) *SnapshotError {
	return &SnapshotError{Stage: stage, Cause: cause}
}
