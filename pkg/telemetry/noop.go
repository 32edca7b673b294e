package telemetry

import "context"

// NoopLogger discards everything. It is the engine's default when a
// caller supplies no Logger.
type NoopLogger struct{}

func (NoopLogger) Debug(context.Context, string, ...any) {}
func (NoopLogger) Info(context.Context, string, ...any)  {}
func (NoopLogger) Warn(context.Context, string, ...any)  {}
func (NoopLogger) Error(context.Context, string, ...any) {}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) IncCounter(string, ...string)          {}
func (NoopMetrics) RecordTimer(string, float64, ...string) {}
func (NoopMetrics) RecordGauge(string, float64, ...string) {}

// NoopSpan does nothing.
type NoopSpan struct{}

func (NoopSpan) End()                 {}
func (NoopSpan) AddEvent(string, ...any) {}
func (NoopSpan) SetStatus(error)      {}
func (NoopSpan) RecordError(error)    {}

// NoopTracer returns a NoopSpan from every Start call.
type NoopTracer struct{}

func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, NoopSpan{}
}
