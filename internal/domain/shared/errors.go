// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")

	// Storage / availability errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "ledger", "award", "botwatch"
	Op      string // Operation that failed, e.g., "Append", "Evaluate"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Actor domain errors
var (
	ErrActorNotFound      = NewDomainError("actor", "Find", ErrNotFound, "actor not found")
	ErrActorAlreadyExists = NewDomainError("actor", "Create", ErrAlreadyExists, "actor already exists")
	ErrInvalidActorID     = NewDomainError("actor", "Validate", ErrInvalidID, "invalid actor ID")
)

// Activity (inbound event) domain errors
var (
	ErrUnknownEventType   = NewDomainError("activity", "Validate", ErrInvalidInput, "unknown event type")
	ErrMissingTargetRef   = NewDomainError("activity", "Validate", ErrEmptyValue, "required target reference is missing")
	ErrMissingViewerToken = NewDomainError("activity", "Validate", ErrEmptyValue, "viewer identity or session token required")
)

// Ledger domain errors
var (
	ErrTransactionNotFound = NewDomainError("ledger", "Find", ErrNotFound, "transaction not found")
	ErrDuplicateDedupKey   = NewDomainError("ledger", "Append", ErrAlreadyExists, "dedup key already applied")
	ErrEmptyDedupKey       = NewDomainError("ledger", "Validate", ErrEmptyValue, "dedup key cannot be empty")
	ErrZeroAmount          = NewDomainError("ledger", "Validate", ErrInvalidInput, "transaction amount cannot be zero")
	ErrUnknownReason       = NewDomainError("ledger", "Validate", ErrInvalidInput, "unknown transaction reason")
)

// Bot watch domain errors
var (
	ErrAlertNotFound   = NewDomainError("botwatch", "Find", ErrNotFound, "bot alert not found")
	ErrInvalidSeverity = NewDomainError("botwatch", "Validate", ErrInvalidInput, "invalid alert severity")
)

// Leaderboard domain errors
var (
	ErrLeaderboardEmpty = NewDomainError("leaderboard", "Recompute", ErrNotFound, "no rankable actors")
	ErrInvalidRank      = NewDomainError("leaderboard", "Validate", ErrValueOutOfRange, "invalid rank")
	ErrLeaderboardStale = NewDomainError("leaderboard", "Refresh", ErrExpired, "leaderboard snapshot is stale")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
