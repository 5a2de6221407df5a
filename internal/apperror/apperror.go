// Package apperror defines the error taxonomy shared across layers.
//
// Services return these typed errors; the HTTP layer maps them to status
// codes with errors.Is/errors.As. No layer below the handlers knows about
// HTTP at all.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")

	// ErrContextLost marks a stored execution context that no longer
	// resolves at the sandbox provider, typically an expired kernel.
	// Executors recover from it with a single recreate-and-retry.
	ErrContextLost = errors.New("execution context lost")

	// ErrConfiguration marks a missing required external dependency
	// (database path, provider connectivity). Fatal, never degraded.
	ErrConfiguration = errors.New("configuration error")

	// ErrProtocol marks kernel output that could not be parsed as the
	// expected JSON shape. Surfaced as an error-typed output, never as
	// a failure of the whole call.
	ErrProtocol = errors.New("protocol error")
)

type AppError struct {
	Err     error  // category sentinel
	Message string // human-readable error message
	Field   string // optional: field causing a validation error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func ContextLost(contextID string, cause error) *AppError {
	return &AppError{
		Err:     ErrContextLost,
		Message: fmt.Sprintf("execution context %s no longer resolves: %v", contextID, cause),
	}
}

func Configuration(message string) *AppError {
	return &AppError{
		Err:     ErrConfiguration,
		Message: message,
	}
}

func Protocol(message string) *AppError {
	return &AppError{
		Err:     ErrProtocol,
		Message: message,
	}
}
