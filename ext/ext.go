package ext

import (
	"context"
	"time"

	"github.com/vasont/Foundatio/workitem"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Work item lifecycle hooks
// ──────────────────────────────────────────────────

// WorkItemEnqueued is called after an envelope is enqueued.
type WorkItemEnqueued interface {
	OnWorkItemEnqueued(ctx context.Context, d workitem.Data) error
}

// WorkItemRejected is called when a dequeued envelope fails before any
// handler runs. The entry is left unresolved.
type WorkItemRejected interface {
	OnWorkItemRejected(ctx context.Context, d workitem.Data, reason string) error
}

// WorkItemSkipped is called when the work item lock could not be acquired.
type WorkItemSkipped interface {
	OnWorkItemSkipped(ctx context.Context, d workitem.Data, handler string) error
}

// WorkItemStarted is called right before the handler runs.
type WorkItemStarted interface {
	OnWorkItemStarted(ctx context.Context, wc *workitem.Context) error
}

// WorkItemProgress is called for every progress report.
type WorkItemProgress interface {
	OnWorkItemProgress(ctx context.Context, wc *workitem.Context, progress int, message string) error
}

// WorkItemCompleted is called after the handler succeeds.
type WorkItemCompleted interface {
	OnWorkItemCompleted(ctx context.Context, wc *workitem.Context, elapsed time.Duration) error
}

// WorkItemFailed is called after the handler fails or panics.
type WorkItemFailed interface {
	OnWorkItemFailed(ctx context.Context, wc *workitem.Context, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// CronFired is called when a cron entry fires and enqueues a work item.
type CronFired interface {
	OnCronFired(ctx context.Context, entryName, workItemID string) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
