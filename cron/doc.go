// Package cron enqueues work items on cron schedules.
//
// Every process that runs a [Scheduler] with the same entries evaluates
// them independently. Before firing an occurrence the scheduler takes a
// lock named after the entry and the occurrence time, so across processes
// sharing a lock provider each occurrence enqueues at most once. The lock
// is kept until the lock TTL passes so late evaluators still see it held.
//
// # Entry
//
// An [Entry] is a recurring work item:
//   - Schedule: standard 5-field cron expression or descriptor ("@every 1h")
//   - Type: the registered work item type to enqueue
//   - Payload: the encoded payload passed to every occurrence
//   - ScopeAppID / ScopeOrgID: tenant scope restored around the handler
//
// Typed entries are registered with [Register]:
//
//	cron.Register(sched, cron.Definition[ReportInput]{
//	    Name:     "daily-report",
//	    Schedule: "0 9 * * *",
//	    Type:     "generate-report",
//	    Payload:  ReportInput{Format: "pdf"},
//	})
//
// The scheduler's timer is a maintenance.Scheduler armed for the earliest
// NextRunAt. The [ext.CronFired] hook fires after each enqueue.
package cron
