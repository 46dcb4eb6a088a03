package license

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"poscore/internal/infrastructure"
	"poscore/pkg/contracts/domain"
)

// TracerName names the tracer of this package.
const TracerName = "license-manager"

func (m *Manager) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	ctx = infrastructure.EnsureTraceID(ctx)
	return m.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("license.status", string(m.Status())),
	))
}

func (m *Manager) finishActivation(ctx context.Context, span trace.Span, result string, err error, attrs ...slog.Attr) {
	m.metrics.LicenseActivations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	span.SetAttributes(attribute.String("license.result", result))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logAction(ctx, slog.LevelWarn, "activate", result, append(attrs, slog.String("error", err.Error()))...)
		return
	}
	span.SetStatus(codes.Ok, "")
	m.logAction(ctx, slog.LevelInfo, "activate", result, attrs...)
}

func (m *Manager) recordValidation(ctx context.Context, status domain.LicenseStatus) {
	m.metrics.LicenseValidations.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("license.status", string(status)))
}

// logAction logs a license action with the trace id of ctx.
func (m *Manager) logAction(ctx context.Context, level slog.Level, action, result string, attrs ...slog.Attr) {
	all := make([]slog.Attr, 0, len(attrs)+3)
	all = append(all,
		slog.String("action", action),
		slog.String("result", result),
	)
	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		all = append(all, slog.String("trace_id", traceID))
	}
	all = append(all, attrs...)
	m.logger.LogAttrs(ctx, level, "license "+action, all...)
}
