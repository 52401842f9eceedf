package apperr

import (
	"errors"
	"fmt"
)

// ErrValidation is returned when the input fails domain validation.
var ErrValidation = errors.New("validation failed")

// ErrNotFound indicates that the requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a uniqueness or state conflict (HTTP 409).
var ErrConflict = errors.New("conflict")

// ErrStateTransition indicates an illegal lifecycle edge. Use
// NewStateTransition to attach the offending pair.
var ErrStateTransition = errors.New("illegal state transition")

// ErrAlreadyReleased is returned on a duplicate escrow release attempt.
var ErrAlreadyReleased = errors.New("escrow already released")

// ErrExpiredHold is returned when an escrow operation arrives after the
// hold deadline without a valid code.
var ErrExpiredHold = errors.New("escrow hold expired")

// ErrProcessor indicates a failed payment-processor call. Recoverable:
// callers enqueue reconciliation instead of retrying inline.
var ErrProcessor = errors.New("payment processor call failed")

// StateTransitionError names the rejected lifecycle edge.
type StateTransitionError struct {
	From string
	To   string
}

// NewStateTransition builds a StateTransitionError for the (from, to) pair.
func NewStateTransition(from, to string) *StateTransitionError {
	return &StateTransitionError{From: from, To: to}
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("illegal state transition %s -> %s", e.From, e.To)
}

// Is makes the error match ErrStateTransition in errors.Is chains.
func (e *StateTransitionError) Is(target error) bool {
	return target == ErrStateTransition
}
