// Package telemetry defines the logging, metrics, and tracing contracts used
// throughout the orchestration core, mirroring agents/runtime/telemetry in
// the teacher. Components accept these interfaces rather than a concrete
// backend so the core can run with noop implementations in tests and
// otel-backed implementations in production.
package telemetry

import (
	"context"
	"time"
)

type (
	// Logger emits structured, leveled log lines. Implementations should treat
	// the trailing key/value pairs as alternating key, value, key, value...
	Logger interface {
		Debug(ctx context.Context, msg string, kv ...any)
		Info(ctx context.Context, msg string, kv ...any)
		Warn(ctx context.Context, msg string, kv ...any)
		Error(ctx context.Context, msg string, kv ...any)
	}

	// Metrics records counters, timers, and gauges tagged with key/value pairs.
	Metrics interface {
		IncCounter(name string, value float64, kv ...string)
		RecordTimer(name string, d time.Duration, kv ...string)
		RecordGauge(name string, value float64, kv ...string)
	}

	// Tracer creates spans. No package in this module starts spans through
	// it; it is provided for embedders.
	Tracer interface {
		Start(ctx context.Context, name string) (context.Context, Span)
		Span(ctx context.Context) Span
	}

	// Span is the minimal span surface the core needs: events, status, and
	// closing. Real implementations back this with an otel trace.Span.
	Span interface {
		AddEvent(name string, kv ...string)
		SetStatus(code uint32, description string)
		RecordError(err error)
		End()
	}
)
