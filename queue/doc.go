// Package queue defines the queue contract the work item runner consumes,
// the single-shot Entry returned by Dequeue, and a dequeue Limiter.
//
// # Entries
//
// An Entry starts in flight and moves exactly once to Completed or
// Abandoned. A second Complete or Abandon returns
// [foundatio.ErrEntryResolved]. The queue decides what abandonment means:
// the shipped implementations redeliver after a retry delay and move the
// entry to a dead letter list once its retries are spent.
//
// # Implementations
//
//	queue/memory   in-process, maintenance-driven timeouts and retries
//	queue/redis    lists and sorted sets in Redis
//
// # Limiter
//
// [Limiter] gates dequeues with a token bucket (golang.org/x/time/rate)
// and an in-flight cap:
//
//	l := queue.NewLimiter(queue.LimitConfig{RateLimit: 10, RateBurst: 20, MaxInFlight: 4})
//	jobs.RunContinuous(ctx, job, jobs.WithLimiter(l))
package queue
