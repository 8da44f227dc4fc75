// Package worker processes work items. A [Job] takes one queue entry
// through the work item pipeline:
//
//  1. resolve the envelope's payload type
//  2. decode the payload with the queue's serializer
//  3. look up the handler
//  4. publish a 0% status when progress reports are requested
//  5. acquire the work item lock; a busy lock skips the item
//  6. run the handler through the middleware chain
//  7. complete the entry on success or abandon it on failure
//  8. publish a 100% status on success
//
// Failures before the handler runs leave the entry untouched so the queue's
// visibility timeout returns it. The lock is released on every path after
// it was acquired.
//
// A [Pool] runs several continuous runner loops over one Job.
package worker
