/*
errors.go - Error taxonomy for the calendar engine

PURPOSE:
  Four error classes cover everything this engine can reject:
  - NotFound:    a referenced record does not exist
  - Validation:  malformed input, reported as a structured field list
  - Conflict:    the write contradicts existing state (e.g. deleting a
                 time slot still referenced by schedule rules)
  - Concurrency: optimistic-concurrency violation on update

  Validation and not-found errors are detected before any mutation, so a
  rejected command never leaves partial writes behind.

USAGE:
  Callers classify with the predicates:

    if calendar.IsValidation(err) { ... 400 ... }
    if calendar.IsNotFound(err)   { ... 404 ... }

SEE ALSO:
  - service.go: Where these are raised
  - api/handlers.go: HTTP translation
*/
package calendar

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is the base of all missing-record errors.
	ErrNotFound = errors.New("not found")

	// ErrConflict is the base of all state-conflict errors.
	ErrConflict = errors.New("conflict")

	// ErrConcurrency is returned when an optimistic version check fails.
	ErrConcurrency = errors.New("concurrent modification detected")

	// ErrNoTenant is returned when an operation runs without tenant scope.
	ErrNoTenant = errors.New("no tenant in context")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NotFoundError identifies which record was missing.
type NotFoundError struct {
	Kind string // "schedule", "absence", "closure", "end mark", "time slot", "group", "child"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError carries a human-readable conflict description.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// FieldError is one validation failure on one property.
type FieldError struct {
	Property string `json:"property"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// ValidationError is a structured list of field failures.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Property+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends one field failure and returns the error for chaining.
func (e *ValidationError) Add(property, code, message string) *ValidationError {
	e.Fields = append(e.Fields, FieldError{Property: property, Code: code, Message: message})
	return e
}

// OrNil returns nil when no field failed, so validators can end with
// `return v.OrNil()`.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

func IsConcurrency(err error) bool { return errors.Is(err, ErrConcurrency) }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// AsValidation extracts the structured field list, if any.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
