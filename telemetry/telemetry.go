// Package telemetry defines the logging, metrics, and tracing seams used
// throughout the orchestrator. The production implementation delegates to
// goa.design/clue/log and the global OpenTelemetry providers; the
// interfaces are deliberately small so tests can pass a no-op provider.
package telemetry

import (
	"context"
	"time"
)

// Logger captures structured logging used throughout the scheduler and
// workflow runtime. keyvals are alternating key/value pairs; non-string
// keys are dropped.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics counts and times runtime events. Tags are alternating key/value
// pairs.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, d time.Duration, tags ...string)
}

// Tracer opens a span and returns the derived context together with a
// finish function. Passing a non-nil error to finish records it and marks
// the span failed before ending it; call sites cannot leak an open span
// across an early return.
type Tracer interface {
	Trace(ctx context.Context, name string, keyvals ...any) (context.Context, func(err error))
}

// Provider bundles the three telemetry seams so callers only need to
// thread one value through constructors.
type Provider struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}

// Noop returns a Provider whose components discard everything. It is the
// default used when a caller does not configure telemetry explicitly.
func Noop() Provider {
	return Provider{Logger: noopLogger{}, Metrics: noopMetrics{}, Tracer: noopTracer{}}
}
