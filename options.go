package nvstore

import (
	"context"
	"fmt"
)

// Metrics receives wear-related events from Devices and Streams.
// Implementations must be safe for concurrent use.
type Metrics interface {
	// PhysicalWrite is called after a set primitive succeeded.
	PhysicalWrite(namespace string, kind Kind)
	// SkippedWrite is called when a write was dropped because the stored
	// value already matched.
	SkippedWrite(namespace string, kind Kind)
	Commit(namespace string, err error)
	Reinit(label string, err error)
}

type noopMetrics struct{}

func (noopMetrics) PhysicalWrite(string, Kind) {}
func (noopMetrics) SkippedWrite(string, Kind)  {}
func (noopMetrics) Commit(string, error)       {}
func (noopMetrics) Reinit(string, error)       {}

// Option customizes a Device, a Stream or a Partitions registry.
type Option func(*options)

type options struct {
	logger  Logger
	logTag  string
	metrics Metrics
}

func defaultOptions() options {
	return options{
		logger:  defaultLogger,
		metrics: noopMetrics{},
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger specifies a logger for operation logging.
// If not provided, a no-op logger is used (no logging).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLogTag sets a tag prefix for all log messages.
func WithLogTag(tag string) Option {
	return func(o *options) {
		o.logTag = tag
	}
}

// WithMetrics specifies where write and commit events are reported.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

func (o *options) logf(level string, ctx context.Context, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if o.logTag != "" {
		msg = o.logTag + " " + msg
	}
	switch level {
	case "info":
		o.logger.Info(ctx, "%s", msg)
	case "warn":
		o.logger.Warn(ctx, "%s", msg)
	case "error":
		o.logger.Error(ctx, "%s", msg)
	case "debug":
		o.logger.Debug(ctx, "%s", msg)
	}
}
