/*
errors.go - Centralized error types for the ledger core

ERROR CATEGORIES:
  1. Validation errors - bad input, surfaced as 4xx, never retried
  2. Not-found errors  - operation targets a missing or voided entry
  3. Store errors      - persistence failures, wrapped with %w

USAGE:
  Handlers map errors to HTTP status via the helpers:

    if ledger.IsValidation(err) { ... 400 ... }
    if errors.Is(err, ledger.ErrNotFound) { ... 404 ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when an operation targets an entry id that
	// does not exist or has been voided.
	ErrNotFound = errors.New("entry not found")

	// ErrDuplicateIdempotencyKey is returned by the store when an insert
	// collides on idempotency_key. The writer treats it as a retry and
	// returns the previously stored entry.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError carries the offending field and the reason.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation reports whether err is a client input failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound reports whether err indicates a missing entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
