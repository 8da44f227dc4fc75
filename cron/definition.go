package cron

// Definition is a typed cron entry. Payload is encoded with the
// scheduler's serializer when registered.
type Definition[T any] struct {
	// Name is the unique identifier for this cron entry.
	Name string

	// Schedule is a cron expression (e.g., "*/5 * * * *" or "@every 30s").
	Schedule string

	// Type is the work item type enqueued on each occurrence.
	Type string

	Payload T

	// SendProgressReports requests status messages for each occurrence.
	SendProgressReports bool

	ScopeAppID string
	ScopeOrgID string
}
