package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vasont/Foundatio/workitem"
)

// meterName is the instrumentation scope name for work item metrics.
const meterName = "github.com/vasont/Foundatio"

// Metrics returns middleware that records per-handler execution metrics
// using the global OTel MeterProvider.
//
// Instruments:
//   - foundatio.work_item.duration (Float64Histogram): handler time in
//     seconds, with attributes handler, type, status ("ok" or "error")
//   - foundatio.work_item.executions (Int64Counter): handler calls, with
//     the same attributes
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// The OTel API returns usable noop instruments alongside any error.
	duration, _ := meter.Float64Histogram(
		"foundatio.work_item.duration",
		metric.WithDescription("Duration of work item handler execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"foundatio.work_item.executions",
		metric.WithDescription("Total number of work item handler executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, h workitem.Handler, wc *workitem.Context, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("handler", h.Name()),
			attribute.String("type", wc.Data().Type),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return err
	}
}
