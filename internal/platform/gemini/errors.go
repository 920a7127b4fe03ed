package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/phrazzld/scribe-api/internal/generation"
	"google.golang.org/genai"
)

// mapError classifies an error returned by the genai client.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}

	switch code {
	case http.StatusBadRequest:
		// The request itself is rejected; resending it will not help.
		return fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	case 0:
		return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	default:
		// 401/403 are kept transient so a rotated key lets the run continue.
		return fmt.Errorf("%w: gemini status %d: %v", generation.ErrTransientFailure, code, err)
	}
}
