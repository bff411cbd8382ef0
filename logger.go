package gamenet

import "log/slog"

// Logger is the interface for structured logging.
// It is designed to be compatible with *slog.Logger from the standard library.
// Applications can provide their own implementation or use the default slog logger.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// componentLogger prepends a "component" pair to every record.
type componentLogger struct {
	next      Logger
	component string
}

// WithComponent returns a Logger that tags every record with the given
// component name. A nil logger is replaced with the default logger.
func WithComponent(l Logger, component string) Logger {
	if l == nil {
		l = defaultLogger()
	}
	if sl, ok := l.(*slog.Logger); ok {
		return sl.With("component", component)
	}
	return &componentLogger{next: l, component: component}
}

func (l *componentLogger) with(args []any) []any {
	return append([]any{"component", l.component}, args...)
}

func (l *componentLogger) Debug(msg string, args ...any) { l.next.Debug(msg, l.with(args)...) }
func (l *componentLogger) Info(msg string, args ...any)  { l.next.Info(msg, l.with(args)...) }
func (l *componentLogger) Warn(msg string, args ...any)  { l.next.Warn(msg, l.with(args)...) }
func (l *componentLogger) Error(msg string, args ...any) { l.next.Error(msg, l.with(args)...) }
