// Package telemetry defines the ambient logging/metrics/tracing surface
// the engine accepts through engine.Options (SPEC_FULL §A.1),
// grounded on the teacher's runtime/agent/telemetry package: the same
// three-interface split (Logger, Metrics, Tracer), a Noop binding used by
// default, and a Clue/OTel binding for production use.
package telemetry

import "context"

// Logger emits structured log lines. kv is an alternating key/value pair
// list, following the teacher's convention.
type Logger interface {
	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, kv ...any)
}

// Metrics records counters, timers, and gauges.
type Metrics interface {
	IncCounter(name string, tags ...string)
	RecordTimer(name string, seconds float64, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Span is one unit of tracing work.
type Span interface {
	End()
	AddEvent(name string, kv ...any)
	SetStatus(err error)
	RecordError(err error)
}

// Tracer starts spans.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
}
