package nvstore

import (
	"context"

	"go.uber.org/zap"
)

// Logger defines an interface for logging operations.
// Implementations should be safe for concurrent use.
type Logger interface {
	// Info logs informational messages
	Info(ctx context.Context, format string, args ...interface{})

	// Warn logs warning messages
	Warn(ctx context.Context, format string, args ...interface{})

	// Error logs error messages
	Error(ctx context.Context, format string, args ...interface{})

	// Debug logs debug messages
	Debug(ctx context.Context, format string, args ...interface{})
}

// noopLogger is a Logger that does nothing.
type noopLogger struct{}

func (noopLogger) Info(ctx context.Context, format string, args ...interface{})  {}
func (noopLogger) Warn(ctx context.Context, format string, args ...interface{})  {}
func (noopLogger) Error(ctx context.Context, format string, args ...interface{}) {}
func (noopLogger) Debug(ctx context.Context, format string, args ...interface{}) {}

var defaultLogger Logger = noopLogger{}

// zapLogger forwards to a sugared zap logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger adapts l to Logger. A nil l yields the no-op logger.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		return defaultLogger
	}
	return zapLogger{s: l.WithOptions(zap.AddCallerSkip(2)).Sugar()}
}

func (z zapLogger) Info(_ context.Context, format string, args ...interface{}) {
	z.s.Infof(format, args...)
}

func (z zapLogger) Warn(_ context.Context, format string, args ...interface{}) {
	z.s.Warnf(format, args...)
}

func (z zapLogger) Error(_ context.Context, format string, args ...interface{}) {
	z.s.Errorf(format, args...)
}

func (z zapLogger) Debug(_ context.Context, format string, args ...interface{}) {
	z.s.Debugf(format, args...)
}
