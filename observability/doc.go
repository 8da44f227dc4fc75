// Package observability provides a metrics extension that records
// system-wide counters for work item enqueue, rejection, lock skips,
// completion, failure, progress and cron events.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
