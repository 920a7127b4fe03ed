package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a status change is not allowed
	// by the relevant transition table.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInsufficientCredits is returned when a user's ledger cannot cover a
	// generation call.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrSceneIndexOutOfRange is returned when a scene index does not address
	// a stub in the chapter outline.
	ErrSceneIndexOutOfRange = errors.New("scene index out of range")
)
