package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

// ClueLogger delegates to goa.design/clue/log, following the teacher's
// runtime/agent/telemetry.ClueLogger binding.
type ClueLogger struct{}

// NewClueLogger returns a Logger backed by clue/log.
func NewClueLogger() ClueLogger { return ClueLogger{} }

func (ClueLogger) Debug(ctx context.Context, msg string, kv ...any) {
	log.Debug(ctx, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvSliceToClue(kv)...)...)
}

func (ClueLogger) Info(ctx context.Context, msg string, kv ...any) {
	log.Print(ctx, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvSliceToClue(kv)...)...)
}

func (ClueLogger) Warn(ctx context.Context, msg string, kv ...any) {
	fields := append([]log.Fielder{log.KV{K: "msg", V: msg}, log.KV{K: "level", V: "warn"}}, kvSliceToClue(kv)...)
	log.Print(ctx, fields...)
}

func (ClueLogger) Error(ctx context.Context, msg string, kv ...any) {
	log.Error(ctx, fmt.Errorf("%s", msg), kvSliceToClue(kv)...)
}

func kvSliceToClue(kv []any) []log.Fielder {
	fields := make([]log.Fielder, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, log.KV{K: key, V: kv[i+1]})
	}
	return fields
}

// ClueMetrics delegates to an OTEL metric.Meter, following the teacher's
// ClueMetrics binding.
type ClueMetrics struct {
	meter metric.Meter
}

// NewClueMetrics returns a Metrics backed by meter.
func NewClueMetrics(meter metric.Meter) *ClueMetrics {
	return &ClueMetrics{meter: meter}
}

func (m *ClueMetrics) IncCounter(name string, tags ...string) {
	counter, err := m.meter.Int64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), 1, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *ClueMetrics) RecordTimer(name string, seconds float64, tags ...string) {
	h, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), seconds, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *ClueMetrics) RecordGauge(name string, v float64, tags ...string) {
	g, err := m.meter.Float64Gauge(name)
	if err != nil {
		return
	}
	g.Record(context.Background(), v, metric.WithAttributes(tagsToAttrs(tags)...))
}

func tagsToAttrs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}

// ClueTracer delegates to an OTEL trace.Tracer, following the teacher's
// ClueTracer binding.
type ClueTracer struct {
	tracer trace.Tracer
}

// NewClueTracer returns a Tracer backed by tracer.
func NewClueTracer(tracer trace.Tracer) *ClueTracer {
	return &ClueTracer{tracer: tracer}
}

func (t *ClueTracer) Start(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &clueSpan{span: span}
}

type clueSpan struct {
	span trace.Span
}

func (s *clueSpan) End() { s.span.End() }

func (s *clueSpan) AddEvent(name string, kv ...any) {
	s.span.AddEvent(name, trace.WithAttributes(kvSliceToAttrs(kv)...))
}

func (s *clueSpan) SetStatus(err error) {
	if err != nil {
		s.span.SetStatus(codes.Error, err.Error())
		return
	}
	s.span.SetStatus(codes.Ok, "")
}

func (s *clueSpan) RecordError(err error) { s.span.RecordError(err) }

func kvSliceToAttrs(kv []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, attribute.String(key, fmt.Sprintf("%v", kv[i+1])))
	}
	return attrs
}
