package telemetry

import (
	"context"
	"time"
)

type (
	noopLogger  struct{}
	noopMetrics struct{}
	noopTracer  struct{}
)

func (noopLogger) Debug(context.Context, string, ...any) {}
func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Warn(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}

func (noopMetrics) IncCounter(string, float64, ...string)        {}
func (noopMetrics) RecordTimer(string, time.Duration, ...string) {}

func (noopTracer) Trace(ctx context.Context, _ string, _ ...any) (context.Context, func(error)) {
	return ctx, func(error) {}
}
