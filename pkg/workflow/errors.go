// Package workflow implements the approval workflow engine: step routing,
// document submission, and approval action recording.
package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDefinition means no active workflow definition governs the
	// submitted document's type.
	ErrNoDefinition = errors.New("no active workflow definition for document type")

	// ErrAuthorizationDenied means the acting user neither matches the
	// step's approver nor holds its required permission.
	ErrAuthorizationDenied = errors.New("user is not authorized for this step")

	// ErrStateConflict means the instance is in a terminal state and
	// accepts no further actions.
	ErrStateConflict = errors.New("workflow instance is in a terminal state")

	// ErrConcurrencyConflict means another action won the optimistic
	// version check; the caller is expected to retry.
	ErrConcurrencyConflict = errors.New("concurrent modification of workflow instance")

	// ErrActionNotPending means the current step's action row has already
	// been decided.
	ErrActionNotPending = errors.New("action for current step is not pending")

	// ErrInvalidDecision means the decision verb is unknown.
	ErrInvalidDecision = errors.New("invalid decision")
)

// ActionError wraps a failed operation against one workflow instance.
type ActionError struct {
	Op         string
	InstanceID string
	Err        error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("workflow %s: instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// NewActionError creates an ActionError with the given operation context.
func NewActionError(op, instanceID string, err error) *ActionError {
	return &ActionError{Op: op, InstanceID: instanceID, Err: err}
}

// IsAuthorizationDenied checks if an error is an authorization failure.
func IsAuthorizationDenied(err error) bool {
	return errors.Is(err, ErrAuthorizationDenied)
}

// IsStateConflict checks if an error is a terminal-state or wrong-step conflict.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrStateConflict) || errors.Is(err, ErrActionNotPending)
}

// IsConcurrencyConflict checks if an error is a retryable version conflict.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
