package audithook

import (
	"context"
	"log/slog"
	"time"

	"github.com/vasont/Foundatio/ext"
	"github.com/vasont/Foundatio/workitem"
)

var (
	_ ext.Extension         = (*Extension)(nil)
	_ ext.WorkItemEnqueued  = (*Extension)(nil)
	_ ext.WorkItemRejected  = (*Extension)(nil)
	_ ext.WorkItemSkipped   = (*Extension)(nil)
	_ ext.WorkItemStarted   = (*Extension)(nil)
	_ ext.WorkItemCompleted = (*Extension)(nil)
	_ ext.WorkItemFailed    = (*Extension)(nil)
	_ ext.CronFired         = (*Extension)(nil)
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail record.
type AuditEvent struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension records work item lifecycle events through a Recorder.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that records through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// OnWorkItemEnqueued implements ext.WorkItemEnqueued.
func (e *Extension) OnWorkItemEnqueued(ctx context.Context, d workitem.Data) error {
	return e.record(ctx, &AuditEvent{
		Action:     ActionWorkItemEnqueued,
		Severity:   SeverityInfo,
		Outcome:    OutcomeSuccess,
		ResourceID: d.WorkItemID,
		Metadata:   dataMeta(d),
	})
}

// OnWorkItemRejected implements ext.WorkItemRejected.
func (e *Extension) OnWorkItemRejected(ctx context.Context, d workitem.Data, reason string) error {
	return e.record(ctx, &AuditEvent{
		Action:     ActionWorkItemRejected,
		Severity:   SeverityWarning,
		Outcome:    OutcomeFailure,
		ResourceID: d.WorkItemID,
		Metadata:   dataMeta(d),
		Reason:     reason,
	})
}

// OnWorkItemSkipped implements ext.WorkItemSkipped.
func (e *Extension) OnWorkItemSkipped(ctx context.Context, d workitem.Data, handler string) error {
	meta := dataMeta(d)
	meta["handler"] = handler
	return e.record(ctx, &AuditEvent{
		Action:     ActionWorkItemSkipped,
		Severity:   SeverityInfo,
		Outcome:    OutcomeSuccess,
		ResourceID: d.WorkItemID,
		Metadata:   meta,
		Reason:     "work item lock held elsewhere",
	})
}

// OnWorkItemStarted implements ext.WorkItemStarted.
func (e *Extension) OnWorkItemStarted(ctx context.Context, wc *workitem.Context) error {
	return e.record(ctx, &AuditEvent{
		Action:     ActionWorkItemStarted,
		Severity:   SeverityInfo,
		Outcome:    OutcomeSuccess,
		ResourceID: wc.WorkItemID(),
		Metadata:   contextMeta(wc),
	})
}

// OnWorkItemCompleted implements ext.WorkItemCompleted.
func (e *Extension) OnWorkItemCompleted(ctx context.Context, wc *workitem.Context, elapsed time.Duration) error {
	meta := contextMeta(wc)
	meta["elapsed_ms"] = elapsed.Milliseconds()
	return e.record(ctx, &AuditEvent{
		Action:     ActionWorkItemCompleted,
		Severity:   SeverityInfo,
		Outcome:    OutcomeSuccess,
		ResourceID: wc.WorkItemID(),
		Metadata:   meta,
	})
}

// OnWorkItemFailed implements ext.WorkItemFailed.
func (e *Extension) OnWorkItemFailed(ctx context.Context, wc *workitem.Context, itemErr error) error {
	meta := contextMeta(wc)
	meta["error"] = itemErr.Error()
	return e.record(ctx, &AuditEvent{
		Action:     ActionWorkItemFailed,
		Severity:   SeverityWarning,
		Outcome:    OutcomeFailure,
		ResourceID: wc.WorkItemID(),
		Metadata:   meta,
		Reason:     itemErr.Error(),
	})
}

// OnCronFired implements ext.CronFired.
func (e *Extension) OnCronFired(ctx context.Context, entryName, workItemID string) error {
	return e.record(ctx, &AuditEvent{
		Action:     ActionCronFired,
		Resource:   ResourceCron,
		Category:   CategoryCron,
		Severity:   SeverityInfo,
		Outcome:    OutcomeSuccess,
		ResourceID: entryName,
		Metadata:   map[string]any{"work_item_id": workItemID},
	})
}

// record fills the work item defaults and sends evt if its action is
// enabled. Recorder errors are logged, never returned.
func (e *Extension) record(ctx context.Context, evt *AuditEvent) error {
	if e.enabled != nil && !e.enabled[evt.Action] {
		return nil
	}
	if evt.Resource == "" {
		evt.Resource = ResourceWorkItem
		evt.Category = CategoryWorkItem
	}

	if err := e.recorder.Record(ctx, evt); err != nil {
		e.logger.Warn("audit event not recorded",
			slog.String("action", evt.Action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func dataMeta(d workitem.Data) map[string]any {
	meta := map[string]any{"type": d.Type}
	if d.ScopeAppID != "" {
		meta["scope_app_id"] = d.ScopeAppID
	}
	if d.ScopeOrgID != "" {
		meta["scope_org_id"] = d.ScopeOrgID
	}
	return meta
}

func contextMeta(wc *workitem.Context) map[string]any {
	meta := dataMeta(wc.Data())
	meta["entry_id"] = wc.EntryID()
	meta["attempts"] = wc.Attempts()
	if wc.JobID() != "" {
		meta["job_id"] = wc.JobID()
	}
	return meta
}
