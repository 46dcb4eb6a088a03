package infrastructure

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// EnsureTraceID returns ctx carrying a trace ID for log correlation. An
// active, sampled span lends its OpenTelemetry trace ID so log lines and
// exported spans line up; otherwise a random UUID is used. An ID already on
// ctx is kept.
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return WithTraceID(ctx, sc.TraceID().String())
	}
	return WithTraceID(ctx, uuid.NewString())
}
