// Package ext defines the extension system for work item processing.
//
// Extensions are notified of lifecycle events and can react to them,
// for example by recording metrics or writing audit logs. Each lifecycle
// hook is a separate interface so extensions opt in only to the events
// they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnWorkItemCompleted(ctx context.Context, wc *workitem.Context, elapsed time.Duration) error {
//	    log.Printf("work item %s completed in %s", wc.WorkItemID(), elapsed)
//	    return nil
//	}
//
// # Work Item Lifecycle Hooks
//
//   - [WorkItemEnqueued]: the envelope was accepted by the queue
//   - [WorkItemRejected]: the envelope could not be resolved, decoded or routed
//   - [WorkItemSkipped]: the work item lock was busy
//   - [WorkItemStarted]: the handler is about to run
//   - [WorkItemProgress]: the handler reported progress
//   - [WorkItemCompleted]: the handler succeeded and the entry was completed
//   - [WorkItemFailed]: the handler failed and the entry was abandoned
//
// # Other Hooks
//
//   - [CronFired]: a cron entry enqueued a work item
//   - [Shutdown]: the engine is stopping
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
