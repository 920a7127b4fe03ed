// Package logger configures the process-wide slog JSON logger and carries
// request- or job-scoped loggers through a context.
package logger
