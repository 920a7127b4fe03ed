package generation

import "errors"

// Common errors returned by generators.
var (
	// ErrGenerationFailed is returned when generation fails for an unclassified reason.
	ErrGenerationFailed = errors.New("failed to generate content")

	// ErrInvalidResponse is returned when the model output cannot be parsed or is malformed.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the provider refuses the prompt or the output.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for network, rate-limit and provider errors
	// that may resolve on retry.
	ErrTransientFailure = errors.New("transient error during generation")

	// ErrInvalidConfig is returned when the generator configuration is invalid.
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrEmptyInput is returned when a request lacks the text it needs.
	ErrEmptyInput = errors.New("generation request is missing required input")
)

// IsContentFailure reports whether err is a content or validation failure.
// Such failures are not retried: the scene or chapter is marked failed.
func IsContentFailure(err error) bool {
	return errors.Is(err, ErrContentBlocked) ||
		errors.Is(err, ErrInvalidResponse) ||
		errors.Is(err, ErrEmptyInput)
}
