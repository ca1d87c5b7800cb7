package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

// scope names the instrumentation scope under which this module's metrics
// and spans are registered.
const scope = "github.com/websets-labs/orchestrator"

// Live returns a Provider that logs through goa.design/clue/log and
// records metrics and spans through the global OpenTelemetry providers.
// The caller configures OTEL export and prepares the log context
// (log.Context, log.WithFormat) before handing contexts to the
// orchestrator; without that setup, logs go to stderr and OTEL data is
// dropped by the default no-op providers.
func Live() Provider {
	return Provider{
		Logger:  clueLogger{},
		Metrics: &otelMetrics{meter: otel.Meter(scope)},
		Tracer:  otelTracer{tracer: otel.Tracer(scope)},
	}
}

// clueLogger writes structured entries through clue's context-scoped
// logger. All four levels funnel through one emit path so the message key
// and keyval folding stay consistent.
type clueLogger struct{}

type severity int

const (
	sevDebug severity = iota
	sevInfo
	sevWarn
	sevError
)

func (clueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	emit(ctx, sevDebug, msg, keyvals)
}

func (clueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	emit(ctx, sevInfo, msg, keyvals)
}

func (clueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	emit(ctx, sevWarn, msg, keyvals)
}

func (clueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	emit(ctx, sevError, msg, keyvals)
}

func emit(ctx context.Context, sev severity, msg string, keyvals []any) {
	fields := make([]log.Fielder, 0, len(keyvals)/2+1)
	fields = append(fields, log.KV{K: "msg", V: msg})
	for i := 0; i+1 < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, log.KV{K: k, V: keyvals[i+1]})
	}
	switch sev {
	case sevDebug:
		log.Debug(ctx, fields...)
	case sevInfo:
		log.Info(ctx, fields...)
	case sevWarn:
		log.Warn(ctx, fields...)
	case sevError:
		log.Error(ctx, nil, fields...)
	}
}

// otelMetrics lazily creates OTEL instruments and caches them by name: the
// runtime hits the same few counters and histograms on every task, so
// instrument lookup should not pay the creation path each time.
type otelMetrics struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

func (m *otelMetrics) IncCounter(name string, value float64, tags ...string) {
	m.mu.Lock()
	if m.counters == nil {
		m.counters = make(map[string]metric.Float64Counter)
	}
	c, ok := m.counters[name]
	if !ok {
		var err error
		if c, err = m.meter.Float64Counter(name); err != nil {
			m.mu.Unlock()
			return
		}
		m.counters[name] = c
	}
	m.mu.Unlock()
	c.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func (m *otelMetrics) RecordTimer(name string, d time.Duration, tags ...string) {
	m.mu.Lock()
	if m.histograms == nil {
		m.histograms = make(map[string]metric.Float64Histogram)
	}
	h, ok := m.histograms[name]
	if !ok {
		var err error
		if h, err = m.meter.Float64Histogram(name, metric.WithUnit("s")); err != nil {
			m.mu.Unlock()
			return
		}
		m.histograms[name] = h
	}
	m.mu.Unlock()
	h.Record(context.Background(), d.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

func tagAttrs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}

// otelTracer opens spans on the global tracer provider.
type otelTracer struct {
	tracer trace.Tracer
}

func (t otelTracer) Trace(ctx context.Context, name string, keyvals ...any) (context.Context, func(error)) {
	attrs := make([]attribute.KeyValue, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, anyAttr(k, keyvals[i+1]))
	}
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func anyAttr(k string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(k, val)
	case bool:
		return attribute.Bool(k, val)
	case int:
		return attribute.Int(k, val)
	case int64:
		return attribute.Int64(k, val)
	case float64:
		return attribute.Float64(k, val)
	default:
		return attribute.String(k, fmt.Sprintf("%v", val))
	}
}
