// Package tracing wires a minimal OpenTelemetry tracer used to trace the
// fan-out HTTP calls made by the Tier-1 dispatcher and broadcaster, the
// same construction shape as the upstream
// engine's business-operation tracer (tracer provider + resource attributes,
// span-per-operation, attributes/events attached along the way).
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer starts spans for outbound fan-out operations (deploy dispatch,
// trace-timestamp broadcast).
type Tracer struct {
	tracer oteltrace.Tracer
}

// New constructs a Tracer with an in-process tracer provider. No external
// exporter is wired by default; embedders may call
// otel.SetTracerProvider on a provider with a real exporter before
// calling New if they want spans to leave the process.
func New(serviceName string) *Tracer {
	res, _ := sdkresource.New(context.Background(),
		sdkresource.WithAttributes(
			attribute.String("service.name", serviceName),
		),
	)
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return &Tracer{tracer: otel.Tracer(serviceName)}
}

// StartOperation starts a span for a named outbound operation, attaching
// string-valued attributes.
func (t *Tracer) StartOperation(ctx context.Context, name string, attrs map[string]string) (context.Context, oteltrace.Span) {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	return t.tracer.Start(ctx, name, oteltrace.WithAttributes(kvs...))
}

// RecordCandidateResult annotates the current span with the outcome of a
// single fan-out leg (one cloudlet's deploy or broadcast call).
func RecordCandidateResult(span oteltrace.Span, candidate string, err error, resultCount int) {
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("candidate", candidate),
		attribute.Int("result_count", resultCount),
	}
	if err != nil {
		span.RecordError(err)
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	span.AddEvent("candidate_result", oteltrace.WithAttributes(attrs...))
}

// Finish sets the terminal status on a span and ends it.
func Finish(span oteltrace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ExtractIDs returns the active span's trace/span IDs (hex), or empty
// strings if no span is active on ctx. Used by internal/logging to
// correlate log lines with traces.
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

// Attr is a convenience to build a %v-stringified attribute pair, mirroring
// the upstream tracer's permissive attribute coercion.
func Attr(k string, v interface{}) (string, string) { return k, fmt.Sprintf("%v", v) }
