package domain

import (
	"errors"
	"fmt"
)

// Error types for consistent error handling across the BFA.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrDependency indicates a failure in an external collaborator
// (wallet service, database, PostgREST).
type ErrDependency struct {
	Service string
	Err     error
}

func (e *ErrDependency) Error() string {
	return fmt.Sprintf("dependency error [%s]: %v", e.Service, e.Err)
}

func (e *ErrDependency) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrInvalidState indicates a transition attempted from the wrong state.
// Concurrent conflicting transitions surface as this error with the status
// observed after the conflict.
type ErrInvalidState struct {
	Resource string
	ID       string
	Status   string
	Action   string
}

func (e *ErrInvalidState) Error() string {
	return fmt.Sprintf("cannot %s %s %s: status is %s", e.Action, e.Resource, e.ID, e.Status)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrStatusChanged is returned by stores when a conditional write finds a
// status different from the expected one.
var ErrStatusChanged = errors.New("status changed concurrently")
