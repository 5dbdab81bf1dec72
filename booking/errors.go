/*
errors.go - Error taxonomy of the reservation engine

PURPOSE:
  All error types in one place. Every failure is terminal and surfaced to
  the caller verbatim; the engine never retries. The only internal recovery
  is the rollback of a transaction whose second step failed.

ERROR CATEGORIES:
  1. Rule violations - EventFull, EventClosed, AlreadyReserved,
     InsufficientFunds, Forbidden, Conflict
  2. Input errors - InvalidRecurrence, InvalidAmount, InvalidArgument
  3. Lookups - NotFound

USAGE:
  if errors.Is(err, booking.ErrEventFull) { ... }

  var funds *booking.InsufficientFundsError
  if errors.As(err, &funds) { fmt.Println(funds.Shortfall()) }
*/
package booking

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidRecurrence = errors.New("invalid recurrence")
	ErrEventFull         = errors.New("event is full")
	ErrEventClosed       = errors.New("event already started")
	ErrAlreadyReserved   = errors.New("user already has a reservation for this event")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidArgument   = errors.New("invalid argument")

	// ErrDuplicateIdempotencyKey is returned by the credit log when the same
	// balance change is recorded twice.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string // "event", "calendar", "reservation", "user", "location"
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

// ConflictError explains why a delete or create was refused.
type ConflictError struct {
	Kind   string
	ID     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %s: %s", e.Kind, e.ID, e.Reason)
}
func (e *ConflictError) Unwrap() error { return ErrConflict }

// InvalidRecurrenceError explains which recurrence precondition failed.
type InvalidRecurrenceError struct {
	Reason string
}

func (e *InvalidRecurrenceError) Error() string { return "invalid recurrence: " + e.Reason }
func (e *InvalidRecurrenceError) Unwrap() error { return ErrInvalidRecurrence }

// InsufficientFundsError provides details about a balance shortage.
type InsufficientFundsError struct {
	UserID  string
	Balance Credits
	Price   Credits
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %d, price %d", e.Balance, e.Price)
}
func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// Shortfall is the amount missing to cover the price.
func (e *InsufficientFundsError) Shortfall() Credits { return e.Price - e.Balance }

// ForbiddenError names the refused action.
type ForbiddenError struct {
	Role   Role
	Action Action
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: role %s may not %s", e.Role, e.Action)
}
func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// InvalidArgumentError wraps a validation message.
type InvalidArgumentError struct {
	Field   string
	Message string
}

func (e *InvalidArgumentError) Error() string {
	if e.Field == "" {
		return "invalid argument: " + e.Message
	}
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Message)
}
func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }

func invalid(field, msg string) error { return &InvalidArgumentError{Field: field, Message: msg} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is caused by the request itself
// rather than by the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRecurrence) ||
		errors.Is(err, ErrEventFull) ||
		errors.Is(err, ErrEventClosed) ||
		errors.Is(err, ErrAlreadyReserved) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidArgument) ||
		IsNotFound(err)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
