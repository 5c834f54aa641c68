// Package log provides the logging interface shared by every meshconn
// component.
//
// It wraps log/slog directly rather than introducing a logging
// abstraction of its own: callers get a slog-compatible API with one
// addition, a lazily-bound per-component logger that re-reads
// slog.Default() on every call so redirecting output at runtime (tests,
// embedding applications) affects loggers obtained earlier.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
)

var defaultLogger = slog.Default()

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// SetDefault sets the process-wide default logger.
func SetDefault(l *slog.Logger) {
	defaultLogger = l
	slog.SetDefault(l)
}

// Default returns the current default logger.
func Default() *slog.Logger {
	return slog.Default()
}

// New creates a text-handler logger writing to w.
func New(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetOutput redirects the default logger's output.
func SetOutput(w io.Writer) {
	defaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(defaultLogger)
}

// SetLevel rebuilds the default logger at the given level, writing to stderr.
func SetLevel(level slog.Level) {
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(defaultLogger)
}

// LazyLogger re-reads slog.Default() on every call, tagged with a component name.
type LazyLogger struct {
	component string
}

func (l *LazyLogger) Debug(msg string, args ...any) { slog.Default().With("component", l.component).Debug(msg, args...) }
func (l *LazyLogger) Info(msg string, args ...any)  { slog.Default().With("component", l.component).Info(msg, args...) }
func (l *LazyLogger) Warn(msg string, args ...any)  { slog.Default().With("component", l.component).Warn(msg, args...) }
func (l *LazyLogger) Error(msg string, args ...any) { slog.Default().With("component", l.component).Error(msg, args...) }

func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	slog.Default().With("component", l.component).DebugContext(ctx, msg, args...)
}
func (l *LazyLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	slog.Default().With("component", l.component).InfoContext(ctx, msg, args...)
}
func (l *LazyLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	slog.Default().With("component", l.component).WarnContext(ctx, msg, args...)
}
func (l *LazyLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	slog.Default().With("component", l.component).ErrorContext(ctx, msg, args...)
}

// With returns a slog.Logger with the component tag and extra args attached.
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return slog.Default().With("component", l.component).With(args...)
}

// Logger returns a component-tagged LazyLogger.
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

func init() {
	defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
