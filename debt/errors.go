/*
errors.go - Centralized error types for the debt engine

ERROR CATEGORIES:
  1. Validation errors - Rejected input, never silently coerced
  2. State errors - Profile missing, already onboarded, not initialized
  3. Consistency errors - Counter/log pairing broken (test assertion)

Storage errors are not defined here. Stores wrap driver errors with %w and
callers treat them as generic I/O failures.

USAGE:
    if debt.IsClientError(err) {
        // 4xx
    }
*/
package debt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the parent of every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownCategory is returned for a category outside the 7 known ones.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrInvalidStatus is returned for a status outside completed/missed/pending.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidDate is returned for malformed or out-of-range dates.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidDelta is returned for a quick entry tap other than +1 or -1.
	ErrInvalidDelta = errors.New("invalid delta")

	// ErrInvalidGender is returned for a gender outside male/female.
	ErrInvalidGender = errors.New("invalid gender")

	// ErrProfileNotFound is returned when an operation needs a profile
	// and onboarding has not happened yet.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrAlreadyOnboarded is returned by a second onboarding without reset.
	ErrAlreadyOnboarded = errors.New("profile already exists")

	// ErrNotInitialized is returned when the counters were never seeded.
	ErrNotInitialized = errors.New("debt counts not initialized")

	// ErrSessionCommitted is returned when reusing a committed or
	// discarded adjustment session.
	ErrSessionCommitted = errors.New("adjustment session already closed")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
	Err    error // specific sentinel, optional
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is match both ErrValidation and the specific sentinel.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || (e.Err != nil && target == e.Err)
}

// ConsistencyError reports categories whose counter differs from the sum
// of their log entries.
type ConsistencyError struct {
	Mismatches map[Category]Mismatch
}

// Mismatch is one category's counter vs. log sum.
type Mismatch struct {
	Count  int
	LogSum int
}

func (e *ConsistencyError) Error() string {
	cats := make([]string, 0, len(e.Mismatches))
	for c := range e.Mismatches {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	parts := make([]string, 0, len(cats))
	for _, c := range cats {
		m := e.Mismatches[Category(c)]
		parts = append(parts, fmt.Sprintf("%s: count=%d logs=%d", c, m.Count, m.LogSum))
	}
	return "debt/log mismatch: " + strings.Join(parts, ", ")
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidDelta) ||
		errors.Is(err, ErrInvalidGender)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProfileNotFound)
}

// IsConflict returns true if the operation clashes with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyOnboarded) || errors.Is(err, ErrSessionCommitted)
}
