// Package flog provides structured logging for the codec packages. It wraps
// Go's log/slog with the same thin conventions the host module's own pkg/log
// uses: a process-wide default logger and per-component child loggers
// obtained via Module.
package flog

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with codec-specific conveniences.
type Logger struct {
	inner *slog.Logger
}

var defaultLogger *Logger

func init() {
	defaultLogger = New(slog.LevelInfo)
}

// New creates a Logger that writes JSON to stderr at the given level.
func New(level slog.Level) *Logger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &Logger{inner: slog.New(h)}
}

// NewWithHandler creates a Logger backed by the supplied slog.Handler.
func NewWithHandler(h slog.Handler) *Logger {
	return &Logger{inner: slog.New(h)}
}

// Discard returns a Logger that drops everything. Codec constructors default
// to this so that importing the library never forces stderr output.
func Discard() *Logger {
	return NewWithHandler(slog.NewJSONHandler(io.Discard, nil))
}

// SetDefault replaces the package-level default logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Default returns the current package-level default logger.
func Default() *Logger {
	return defaultLogger
}

// Module returns a child logger with an additional "module" attribute.
func (l *Logger) Module(name string) *Logger {
	if l == nil {
		return Discard().Module(name)
	}
	return &Logger{inner: l.inner.With("module", name)}
}

// With returns a child logger with additional key-value context.
func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return Discard().With(args...)
	}
	return &Logger{inner: l.inner.With(args...)}
}

// Debug logs at LevelDebug. Safe to call on a nil *Logger.
func (l *Logger) Debug(msg string, args ...any) {
	if l == nil {
		return
	}
	l.inner.Debug(msg, args...)
}

// Info logs at LevelInfo. Safe to call on a nil *Logger.
func (l *Logger) Info(msg string, args ...any) {
	if l == nil {
		return
	}
	l.inner.Info(msg, args...)
}

// Warn logs at LevelWarn. Safe to call on a nil *Logger.
func (l *Logger) Warn(msg string, args ...any) {
	if l == nil {
		return
	}
	l.inner.Warn(msg, args...)
}

// Error logs at LevelError. Safe to call on a nil *Logger.
func (l *Logger) Error(msg string, args ...any) {
	if l == nil {
		return
	}
	l.inner.Error(msg, args...)
}
