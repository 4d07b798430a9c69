package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
)

// Conflict severities derived from the version gap between the attempted
// write and the stored cart.
const (
	ConflictMinor = "minor"
	ConflictMajor = "major"
)

// InvalidCartConditionError reports a malformed condition at construction.
type InvalidCartConditionError struct {
	Field  string
	Reason string
}

func (e *InvalidCartConditionError) Error() string {
	return fmt.Sprintf("invalid cart condition: %s: %s", e.Field, e.Reason)
}

// InvalidCartItemError reports a malformed item at the point of mutation.
type InvalidCartItemError struct {
	Field  string
	Reason string
}

func (e *InvalidCartItemError) Error() string {
	return fmt.Sprintf("invalid cart item: %s: %s", e.Field, e.Reason)
}

// LimitExceededError reports a configured ceiling violation (item count,
// per-item quantity or serialized payload size).
type LimitExceededError struct {
	Limit  string
	Max    int
	Actual int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("cart limit exceeded: %s: %d > %d", e.Limit, e.Actual, e.Max)
}

// ConflictError is returned when an optimistic write loses to a concurrent
// writer. Storage backends fill the versions; the cart layer classifies
// severity and attaches resolution suggestions before surfacing.
type ConflictError struct {
	AttemptedVersion int64
	CurrentVersion   int64
	Severity         string
	Suggestions      []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cart version conflict: attempted %d, current %d", e.AttemptedVersion, e.CurrentVersion)
}

// Classify derives severity and suggested resolutions from the version gap.
// Gaps up to minorGap suggest a refresh-and-retry; larger gaps mean the cart
// diverged enough that the caller should re-resolve manually.
func (e *ConflictError) Classify(minorGap int64) *ConflictError {
	gap := e.CurrentVersion - e.AttemptedVersion
	if gap < 0 {
		gap = -gap
	}
	if gap <= minorGap {
		e.Severity = ConflictMinor
		e.Suggestions = []string{"refresh cart state", "retry operation"}
	} else {
		e.Severity = ConflictMajor
		e.Suggestions = []string{"reload cart", "resolve conflicting changes manually"}
	}
	return e
}

// ToMap renders the conflict in a machine-readable shape for API responses.
func (e *ConflictError) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"error":            "version_conflict",
		"attemptedVersion": e.AttemptedVersion,
		"currentVersion":   e.CurrentVersion,
		"severity":         e.Severity,
		"suggestions":      e.Suggestions,
	}
}
