package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/vasont/Foundatio/workitem"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
// Register everything before processing starts.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	enqueued  []entry[WorkItemEnqueued]
	rejected  []entry[WorkItemRejected]
	skipped   []entry[WorkItemSkipped]
	started   []entry[WorkItemStarted]
	progress  []entry[WorkItemProgress]
	completed []entry[WorkItemCompleted]
	failed    []entry[WorkItemFailed]
	cronFired []entry[CronFired]
	shutdown  []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(WorkItemEnqueued); ok {
		r.enqueued = append(r.enqueued, entry[WorkItemEnqueued]{name, h})
	}
	if h, ok := e.(WorkItemRejected); ok {
		r.rejected = append(r.rejected, entry[WorkItemRejected]{name, h})
	}
	if h, ok := e.(WorkItemSkipped); ok {
		r.skipped = append(r.skipped, entry[WorkItemSkipped]{name, h})
	}
	if h, ok := e.(WorkItemStarted); ok {
		r.started = append(r.started, entry[WorkItemStarted]{name, h})
	}
	if h, ok := e.(WorkItemProgress); ok {
		r.progress = append(r.progress, entry[WorkItemProgress]{name, h})
	}
	if h, ok := e.(WorkItemCompleted); ok {
		r.completed = append(r.completed, entry[WorkItemCompleted]{name, h})
	}
	if h, ok := e.(WorkItemFailed); ok {
		r.failed = append(r.failed, entry[WorkItemFailed]{name, h})
	}
	if h, ok := e.(CronFired); ok {
		r.cronFired = append(r.cronFired, entry[CronFired]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Work item event emitters
// ──────────────────────────────────────────────────

// EmitWorkItemEnqueued notifies all extensions that implement WorkItemEnqueued.
func (r *Registry) EmitWorkItemEnqueued(ctx context.Context, d workitem.Data) {
	for _, e := range r.enqueued {
		if err := e.hook.OnWorkItemEnqueued(ctx, d); err != nil {
			r.logHookError("OnWorkItemEnqueued", e.name, err)
		}
	}
}

// EmitWorkItemRejected notifies all extensions that implement WorkItemRejected.
func (r *Registry) EmitWorkItemRejected(ctx context.Context, d workitem.Data, reason string) {
	for _, e := range r.rejected {
		if err := e.hook.OnWorkItemRejected(ctx, d, reason); err != nil {
			r.logHookError("OnWorkItemRejected", e.name, err)
		}
	}
}

// EmitWorkItemSkipped notifies all extensions that implement WorkItemSkipped.
func (r *Registry) EmitWorkItemSkipped(ctx context.Context, d workitem.Data, handler string) {
	for _, e := range r.skipped {
		if err := e.hook.OnWorkItemSkipped(ctx, d, handler); err != nil {
			r.logHookError("OnWorkItemSkipped", e.name, err)
		}
	}
}

// EmitWorkItemStarted notifies all extensions that implement WorkItemStarted.
func (r *Registry) EmitWorkItemStarted(ctx context.Context, wc *workitem.Context) {
	for _, e := range r.started {
		if err := e.hook.OnWorkItemStarted(ctx, wc); err != nil {
			r.logHookError("OnWorkItemStarted", e.name, err)
		}
	}
}

// EmitWorkItemProgress notifies all extensions that implement WorkItemProgress.
func (r *Registry) EmitWorkItemProgress(ctx context.Context, wc *workitem.Context, progress int, message string) {
	for _, e := range r.progress {
		if err := e.hook.OnWorkItemProgress(ctx, wc, progress, message); err != nil {
			r.logHookError("OnWorkItemProgress", e.name, err)
		}
	}
}

// EmitWorkItemCompleted notifies all extensions that implement WorkItemCompleted.
func (r *Registry) EmitWorkItemCompleted(ctx context.Context, wc *workitem.Context, elapsed time.Duration) {
	for _, e := range r.completed {
		if err := e.hook.OnWorkItemCompleted(ctx, wc, elapsed); err != nil {
			r.logHookError("OnWorkItemCompleted", e.name, err)
		}
	}
}

// EmitWorkItemFailed notifies all extensions that implement WorkItemFailed.
func (r *Registry) EmitWorkItemFailed(ctx context.Context, wc *workitem.Context, itemErr error) {
	for _, e := range r.failed {
		if err := e.hook.OnWorkItemFailed(ctx, wc, itemErr); err != nil {
			r.logHookError("OnWorkItemFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitCronFired notifies all extensions that implement CronFired.
func (r *Registry) EmitCronFired(ctx context.Context, entryName, workItemID string) {
	for _, e := range r.cronFired {
		if err := e.hook.OnCronFired(ctx, entryName, workItemID); err != nil {
			r.logHookError("OnCronFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors never reach the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
