// Package tracing is a thin facade over OpenTelemetry. Packages start spans
// through it without holding a tracer; until SetTracer installs one, every
// helper is a no-op, which keeps tests and library embedders quiet.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer installs the process-wide tracer. Call once at startup.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan opens a child span when a tracer is installed, otherwise it
// returns the context unchanged with whatever span is already on it.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name)
}

// activeSpan returns the current span, or nil when tracing is off or the
// span context is not valid.
func activeSpan(ctx context.Context) trace.Span {
	if tracer == nil {
		return nil
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	return span
}

// GetTraceID returns the active trace id, or "" when not tracing.
func GetTraceID(ctx context.Context) string {
	span := activeSpan(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// GetSpanID returns the active span id, or "" when not tracing.
func GetSpanID(ctx context.Context) string {
	span := activeSpan(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().SpanID().String()
}

// GetTraceParent returns the W3C traceparent value for the active span, for
// propagation over non-HTTP transports like Kafka headers.
func GetTraceParent(ctx context.Context) string {
	return injected(ctx, "traceparent")
}

// GetTraceState returns the W3C tracestate value for the active span.
func GetTraceState(ctx context.Context) string {
	return injected(ctx, "tracestate")
}

func injected(ctx context.Context, key string) string {
	if activeSpan(ctx) == nil {
		return ""
	}
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get(key)
}
