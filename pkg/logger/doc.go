// Package logger provides structured logging with configurable log levels.
// It wraps the standard log/slog package, emitting JSON in production and
// plain text elsewhere.
package logger
