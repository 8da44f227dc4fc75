package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vasont/Foundatio/workitem"
)

// tracerName is the instrumentation scope name for work item tracing.
const tracerName = "github.com/vasont/Foundatio"

// Tracing returns middleware that wraps handler execution in an
// OpenTelemetry span using the global TracerProvider.
//
// Span attributes include: foundatio.work_item.id, foundatio.work_item.type,
// foundatio.handler, foundatio.entry.id, foundatio.entry.attempts,
// foundatio.scope.app_id, foundatio.scope.org_id.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, h workitem.Handler, wc *workitem.Context, next Handler) error {
		d := wc.Data()
		ctx, span := tracer.Start(ctx, "foundatio.work_item.handle",
			trace.WithAttributes(
				attribute.String("foundatio.work_item.id", d.WorkItemID),
				attribute.String("foundatio.work_item.type", d.Type),
				attribute.String("foundatio.handler", h.Name()),
				attribute.String("foundatio.entry.id", wc.EntryID()),
				attribute.Int("foundatio.entry.attempts", wc.Attempts()),
				attribute.String("foundatio.scope.app_id", d.ScopeAppID),
				attribute.String("foundatio.scope.org_id", d.ScopeOrgID),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
