// Package config loads the service settings from SCRIBE_* environment
// variables and an optional config.yaml, applies defaults for the writing
// pipeline and the worker runtime, and validates the result.
package config
