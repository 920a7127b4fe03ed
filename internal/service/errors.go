package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/scribe-api/internal/store"
	"github.com/phrazzld/scribe-api/internal/writing"
)

// Common service errors - sentinel errors used across service implementations.
// Callers check for them with errors.Is; the API layer maps them to HTTP
// status codes.
var (
	// ErrNotOwned indicates a project is owned by a different user than the one
	// making the request. API layer should map this to HTTP 403 Forbidden.
	ErrNotOwned = errors.New("resource is owned by another user")

	// ErrProjectNotFound indicates that the project does not exist.
	// API layer should map this to HTTP 404 Not Found.
	ErrProjectNotFound = errors.New("project not found")

	// ErrRunInProgress indicates that a run cannot start while jobs are
	// pending or processing. API layer should map this to HTTP 409 Conflict.
	ErrRunInProgress = writing.ErrRunInProgress

	// ErrNothingToWrite indicates that every chapter is outlined and every
	// scene is written. API layer should map this to HTTP 400 Bad Request.
	ErrNothingToWrite = writing.ErrNothingToWrite
)

// WritingServiceError wraps errors from the writing service with context.
type WritingServiceError struct {
	// Operation is the operation that failed (e.g., "start", "pause")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for WritingServiceError.
func (e *WritingServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("writing service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("writing service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *WritingServiceError) Unwrap() error {
	return e.Err
}

// NewWritingServiceError creates a new WritingServiceError.
// It returns known sentinel errors directly without wrapping.
func NewWritingServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrNotOwned):
		return ErrNotOwned
	case errors.Is(err, ErrProjectNotFound), errors.Is(err, store.ErrProjectNotFound):
		return ErrProjectNotFound
	case errors.Is(err, ErrRunInProgress):
		return ErrRunInProgress
	case errors.Is(err, ErrNothingToWrite):
		return ErrNothingToWrite
	}

	return &WritingServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
