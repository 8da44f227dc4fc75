package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionWorkItemEnqueued  = "work_item.enqueued"
	ActionWorkItemRejected  = "work_item.rejected"
	ActionWorkItemSkipped   = "work_item.skipped"
	ActionWorkItemStarted   = "work_item.started"
	ActionWorkItemCompleted = "work_item.completed"
	ActionWorkItemFailed    = "work_item.failed"
	ActionCronFired         = "cron.fired"
)

// Audit event categories group related actions.
const (
	CategoryWorkItem = "foundatio.work_item"
	CategoryCron     = "foundatio.cron"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceWorkItem = "work_item"
	ResourceCron     = "cron_entry"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionWorkItemEnqueued,
		ActionWorkItemRejected,
		ActionWorkItemSkipped,
		ActionWorkItemStarted,
		ActionWorkItemCompleted,
		ActionWorkItemFailed,
		ActionCronFired,
	}
}
