// Package gemini implements generation.Generator on Google's Gemini API.
//
// Outlines are requested as JSON (response MIME type application/json) and
// parsed with generation.ParseOutline; scenes are requested as plain prose.
// Provider failures are mapped onto the generation error taxonomy: safety
// blocks become ErrContentBlocked, malformed output ErrInvalidResponse, and
// rate limits, timeouts and server errors ErrTransientFailure. The generator
// does not retry; retry and recovery belong to the writing pipeline.
package gemini
