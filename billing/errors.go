/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error kinds in one place. Every error returned by this package (and by
  the store implementations) wraps exactly one of the five kind sentinels, so
  callers can branch with errors.Is without knowing the concrete type.

ERROR KINDS:
  1. ErrMalformedInput   - unparseable date/instant literal
  2. ErrValidation       - business rule violation (end before start, missing rate)
  3. ErrNotFound         - closure/status/entry id does not resolve
  4. ErrConflict         - uniqueness violation in the store (resolve by re-reading)
  5. ErrStoreUnavailable - transport/store failure

PROPAGATION:
  Calculation errors (1, 2) are returned before any write is attempted.
  Store errors (3, 4, 5) carry the operation and key via StoreError.
  Nothing in this package retries.
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// KIND SENTINELS - Use with errors.Is()
// =============================================================================

var (
	ErrMalformedInput   = errors.New("malformed input")
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// SPECIFIC SENTINELS - Each wraps one kind
// =============================================================================

var (
	// ErrMissingInstant is returned when an instant is required but the literal is empty.
	ErrMissingInstant = fmt.Errorf("%w: instant is required", ErrMalformedInput)

	ErrInvalidClosingDay = fmt.Errorf("%w: closing day must be between 1 and 31", ErrValidation)
	ErrInvalidPeriod     = fmt.Errorf("%w: period end before start", ErrValidation)
	ErrEndBeforeStart    = fmt.Errorf("%w: end must be after start", ErrValidation)
	ErrRoleRequired      = fmt.Errorf("%w: act requires a role", ErrValidation)
	ErrMissingRoleRate   = fmt.Errorf("%w: missing rate for role", ErrValidation)
	ErrNegativeQuantity  = fmt.Errorf("%w: quantity must not be negative", ErrValidation)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MalformedInputError names the field and literal that failed to parse.
type MalformedInputError struct {
	Field  string
	Value  string
	Layout string
}

func (e *MalformedInputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed input %q: expected %s", e.Value, e.Layout)
	}
	return fmt.Sprintf("malformed %s %q: expected %s", e.Field, e.Value, e.Layout)
}

func (e *MalformedInputError) Unwrap() error { return ErrMalformedInput }

// MissingRoleRateError reports a role-priced act whose rate for the requested
// role has not been configured.
type MissingRoleRateError struct {
	ActID string
	Role  Role
}

func (e *MissingRoleRateError) Error() string {
	return fmt.Sprintf("act %s has no rate configured for role %s", e.ActID, e.Role)
}

func (e *MissingRoleRateError) Unwrap() error { return ErrMissingRoleRate }

// FieldError is a validation failure bound to one input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

func (e *FieldError) Unwrap() error { return ErrValidation }

// StoreError wraps a store failure with the operation and key that produced it.
// Err must wrap one of ErrNotFound, ErrConflict or ErrStoreUnavailable.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError builds a StoreError. Errors that are not already of a store
// kind are classified as ErrStoreUnavailable.
func NewStoreError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrConflict) && !errors.Is(err, ErrStoreUnavailable) {
		err = fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &StoreError{Op: op, Key: key, Err: err}
}

// NotFound is shorthand for a StoreError of kind ErrNotFound.
func NotFound(op, key string) error {
	return &StoreError{Op: op, Key: key, Err: ErrNotFound}
}

// Conflict is shorthand for a StoreError of kind ErrConflict.
func Conflict(op, key string) error {
	return &StoreError{Op: op, Key: key, Err: ErrConflict}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMalformedInput) || errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict returns true if the error is a uniqueness violation.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsRetryable returns true if the same call might succeed later.
// Conflicts are not retryable: the caller re-reads instead.
func IsRetryable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }

// Kind returns a stable name for the error's kind, used in API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrValidation):
		return "validation_failure"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}
