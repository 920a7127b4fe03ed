package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/scribe-api/internal/api/shared"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/service"
	"github.com/phrazzld/scribe-api/internal/service/auth"
	"github.com/phrazzld/scribe-api/internal/store"
)

// Request errors raised by the handlers themselves.
var (
	// ErrUnauthenticated means no user was found in the request context.
	ErrUnauthenticated = errors.New("request is not authenticated")

	// ErrInvalidPathParam means a path parameter is missing or malformed.
	ErrInvalidPathParam = errors.New("invalid path parameter")
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType):
		return http.StatusUnauthorized

	// Authorization errors
	case errors.Is(err, service.ErrNotOwned):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, service.ErrProjectNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, service.ErrRunInProgress),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, service.ErrNothingToWrite),
		errors.Is(err, ErrInvalidPathParam),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest

	// Payment required: the run needs more credits before it can continue
	case errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusPaymentRequired

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "Authentication required"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"

	case errors.Is(err, service.ErrNotOwned):
		return "You do not own this project"

	case errors.Is(err, service.ErrProjectNotFound),
		errors.Is(err, store.ErrProjectNotFound):
		return "Project not found"

	case errors.Is(err, service.ErrRunInProgress):
		return "A writing run is already in progress"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "The run cannot do that in its current state"
	case errors.Is(err, store.ErrConflict):
		return "The project changed concurrently, please retry"

	case errors.Is(err, service.ErrNothingToWrite):
		return "Nothing left to write"
	case errors.Is(err, ErrInvalidPathParam):
		return "Invalid project ID"
	case errors.Is(err, domain.ErrInsufficientCredits):
		return "Insufficient credits"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the status and safe message for err and logs the
// redacted error. defaultMsg, when set, replaces the generic message for
// errors that map to 500.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		msg = defaultMsg
	}

	var opts []shared.ResponseOption
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err, opts...)
}
