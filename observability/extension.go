package observability

import (
	"context"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/vasont/Foundatio/ext"
	"github.com/vasont/Foundatio/workitem"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.WorkItemEnqueued  = (*MetricsExtension)(nil)
	_ ext.WorkItemRejected  = (*MetricsExtension)(nil)
	_ ext.WorkItemSkipped   = (*MetricsExtension)(nil)
	_ ext.WorkItemStarted   = (*MetricsExtension)(nil)
	_ ext.WorkItemProgress  = (*MetricsExtension)(nil)
	_ ext.WorkItemCompleted = (*MetricsExtension)(nil)
	_ ext.WorkItemFailed    = (*MetricsExtension)(nil)
	_ ext.CronFired         = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle counters via a go-utils MetricFactory.
type MetricsExtension struct {
	Enqueued  gu.Counter
	Rejected  gu.Counter
	Skipped   gu.Counter
	Started   gu.Counter
	Progress  gu.Counter
	Completed gu.Counter
	Failed    gu.Counter
	CronFired gu.Counter
}

// NewMetricsExtension creates a MetricsExtension using a default metrics collector.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithFactory(gu.NewMetricsCollector("foundatio/observability"))
}

// NewMetricsExtensionWithFactory creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtensionWithFactory(factory gu.MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		Enqueued:  factory.Counter("foundatio.work_item.enqueued"),
		Rejected:  factory.Counter("foundatio.work_item.rejected"),
		Skipped:   factory.Counter("foundatio.work_item.skipped"),
		Started:   factory.Counter("foundatio.work_item.started"),
		Progress:  factory.Counter("foundatio.work_item.progress"),
		Completed: factory.Counter("foundatio.work_item.completed"),
		Failed:    factory.Counter("foundatio.work_item.failed"),
		CronFired: factory.Counter("foundatio.cron.fired"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnWorkItemEnqueued implements ext.WorkItemEnqueued.
func (m *MetricsExtension) OnWorkItemEnqueued(context.Context, workitem.Data) error {
	m.Enqueued.Inc()
	return nil
}

// OnWorkItemRejected implements ext.WorkItemRejected.
func (m *MetricsExtension) OnWorkItemRejected(context.Context, workitem.Data, string) error {
	m.Rejected.Inc()
	return nil
}

// OnWorkItemSkipped implements ext.WorkItemSkipped.
func (m *MetricsExtension) OnWorkItemSkipped(context.Context, workitem.Data, string) error {
	m.Skipped.Inc()
	return nil
}

// OnWorkItemStarted implements ext.WorkItemStarted.
func (m *MetricsExtension) OnWorkItemStarted(context.Context, *workitem.Context) error {
	m.Started.Inc()
	return nil
}

// OnWorkItemProgress implements ext.WorkItemProgress.
func (m *MetricsExtension) OnWorkItemProgress(context.Context, *workitem.Context, int, string) error {
	m.Progress.Inc()
	return nil
}

// OnWorkItemCompleted implements ext.WorkItemCompleted.
func (m *MetricsExtension) OnWorkItemCompleted(context.Context, *workitem.Context, time.Duration) error {
	m.Completed.Inc()
	return nil
}

// OnWorkItemFailed implements ext.WorkItemFailed.
func (m *MetricsExtension) OnWorkItemFailed(context.Context, *workitem.Context, error) error {
	m.Failed.Inc()
	return nil
}

// OnCronFired implements ext.CronFired.
func (m *MetricsExtension) OnCronFired(context.Context, string, string) error {
	m.CronFired.Inc()
	return nil
}
