package model

import "errors"

// Lookup failures.
var (
	ErrEventNotFound = errors.New("event not found")
)

// Inventory rule violations. These are terminal for the attempt: retrying
// the same request cannot succeed.
var (
	ErrNotEnoughTickets  = errors.New("not enough tickets available")
	ErrInvalidQuantity   = errors.New("quantity must be a positive integer")
	ErrCapacityBelowSold = errors.New("capacity cannot be less than tickets already sold")
)

// ErrValidation marks authoring input that failed validation.
var ErrValidation = errors.New("validation error")

// ErrStorage marks failures of the underlying store that are unrelated to
// business rules. Every unit of work is all-or-nothing, so callers may
// retry the whole operation.
var ErrStorage = errors.New("storage error")

// Retryable reports whether err is worth retrying as a whole operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorage)
}
