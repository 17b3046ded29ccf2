package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// OtelLogger emits log lines as span events on the active trace span (or
// drops them if no span is active), and additionally calls an injected sink
// for out-of-band collection. This mirrors the teacher's pattern of
// correlating logs with the current trace without pulling in a separate
// logging framework.
type OtelLogger struct {
	// Sink receives every log line verbatim; nil means span-events only.
	Sink func(ctx context.Context, level, msg string, kv []any)
}

var _ Logger = OtelLogger{}

func (l OtelLogger) log(ctx context.Context, level, msg string, kv []any) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(msg, trace.WithAttributes(kvToAttributes(level, kv)...))
	}
	if l.Sink != nil {
		l.Sink(ctx, level, msg, kv)
	}
}

func kvToAttributes(level string, kv []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2+1)
	attrs = append(attrs, attribute.String("level", level))
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, attribute.String(key, toString(kv[i+1])))
	}
	return attrs
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return ""
}

func (l OtelLogger) Debug(ctx context.Context, msg string, kv ...any) { l.log(ctx, "debug", msg, kv) }
func (l OtelLogger) Info(ctx context.Context, msg string, kv ...any)  { l.log(ctx, "info", msg, kv) }
func (l OtelLogger) Warn(ctx context.Context, msg string, kv ...any)  { l.log(ctx, "warn", msg, kv) }
func (l OtelLogger) Error(ctx context.Context, msg string, kv ...any) { l.log(ctx, "error", msg, kv) }

// OtelMetrics adapts the core's Metrics interface onto otel/metric instruments.
// Instruments are created lazily: every call asks the meter for the
// instrument by name, and OtelMetrics itself does not store them (cache is
// never written).
type OtelMetrics struct {
	meter   metric.Meter
	cache   map[string]any
}

// NewOtelMetrics constructs an OtelMetrics recorder backed by the given meter.
func NewOtelMetrics(meter metric.Meter) *OtelMetrics {
	return &OtelMetrics{meter: meter, cache: make(map[string]any)}
}

var _ Metrics = (*OtelMetrics)(nil)

func (m *OtelMetrics) IncCounter(name string, value float64, kv ...string) {
	c, _ := m.meter.Float64Counter(name)
	c.Add(context.Background(), value, metric.WithAttributes(pairsToAttributes(kv)...))
}

func (m *OtelMetrics) RecordTimer(name string, d time.Duration, kv ...string) {
	h, _ := m.meter.Float64Histogram(name)
	h.Record(context.Background(), d.Seconds(), metric.WithAttributes(pairsToAttributes(kv)...))
}

func (m *OtelMetrics) RecordGauge(name string, value float64, kv ...string) {
	g, _ := m.meter.Float64Gauge(name)
	g.Record(context.Background(), value, metric.WithAttributes(pairsToAttributes(kv)...))
}

func pairsToAttributes(kv []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	return attrs
}

// OtelTracer adapts the core's Tracer interface onto an otel trace.Tracer.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer constructs an OtelTracer backed by the given otel tracer.
func NewOtelTracer(tracer trace.Tracer) OtelTracer {
	return OtelTracer{tracer: tracer}
}

var _ Tracer = OtelTracer{}

func (t OtelTracer) Start(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, otelSpan{span: span}
}

func (t OtelTracer) Span(ctx context.Context) Span {
	return otelSpan{span: trace.SpanFromContext(ctx)}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) AddEvent(name string, kv ...string) {
	s.span.AddEvent(name, trace.WithAttributes(pairsToAttributes(kv)...))
}

func (s otelSpan) SetStatus(code uint32, description string) {
	s.span.SetStatus(codes.Code(code), description)
}

func (s otelSpan) RecordError(err error) {
	if err != nil {
		s.span.RecordError(err)
	}
}

func (s otelSpan) End() { s.span.End() }
