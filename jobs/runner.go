// Package jobs drives a queue job: a loop that dequeues one entry at a
// time and hands it to the job's Process method. It also defines the
// Result every cycle produces.
//
// The runner never completes or abandons entries itself. An entry the job
// leaves unresolved stays in flight until the queue's visibility timeout
// returns it.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/vasont/Foundatio"
	"github.com/vasont/Foundatio/queue"
)

// QueueJob processes entries from one queue.
type QueueJob[T any] interface {
	Queue() queue.Queue[T]

	// Process handles one entry. The error return is reserved for faults
	// outside the entry's own outcome.
	Process(ctx context.Context, entry queue.Entry[T]) (Result, error)
}

// RunContinuous dequeues and processes entries until ctx ends, the
// iteration limit is reached, or the continuation returns false. A closed
// queue stops the loop with foundatio.ErrQueueClosed.
func RunContinuous[T any](ctx context.Context, job QueueJob[T], opts ...Option) error {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return run(ctx, cfg.processContext(ctx), job, cfg)
}

// RunUntilEmpty runs until the queue has nothing queued and nothing in
// flight. Unless overridden, each dequeue waits at most one second so an
// empty queue is noticed promptly.
func RunUntilEmpty[T any](ctx context.Context, job QueueJob[T], opts ...Option) error {
	cfg := defaultRunConfig()
	cfg.dequeueTimeout = time.Second
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.continuation = untilEmpty(job.Queue(), cfg.logger)
	return run(ctx, cfg.processContext(ctx), job, cfg)
}

// RunUntilEmptyWithin is RunUntilEmpty with the loop and its dequeue waits
// bounded by acquireTimeout. Entries already dequeued are processed with
// the caller's ctx, so the bound never interrupts a running handler.
func RunUntilEmptyWithin[T any](ctx context.Context, job QueueJob[T], acquireTimeout time.Duration, opts ...Option) error {
	if acquireTimeout <= 0 {
		return fmt.Errorf("foundatio/jobs: acquire timeout must be positive, got %v: %w", acquireTimeout, foundatio.ErrInvalidArgument)
	}

	cfg := defaultRunConfig()
	cfg.dequeueTimeout = time.Second
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.continuation = untilEmpty(job.Queue(), cfg.logger)

	loopCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()
	return run(loopCtx, cfg.processContext(ctx), job, cfg)
}

// untilEmpty yields so in-flight abandon and redelivery can land, then
// keeps going while anything is queued or working.
func untilEmpty[T any](q queue.Queue[T], logger *slog.Logger) Continuation {
	return func(ctx context.Context) bool {
		runtime.Gosched()

		stats, err := q.Stats(ctx)
		if err != nil {
			logger.Warn("queue stats failed",
				slog.String("queue", q.Name()),
				slog.String("error", err.Error()),
			)
			return ctx.Err() == nil
		}
		logger.Debug("run until empty",
			slog.String("queue", q.Name()),
			slog.Int64("queued", stats.Queued),
			slog.Int64("working", stats.Working),
			slog.Int64("abandoned", stats.Abandoned),
		)
		return stats.Queued+stats.Working > 0
	}
}

// run is the shared loop. loopCtx bounds dequeues and the loop itself;
// procCtx is passed to Process.
func run[T any](loopCtx, procCtx context.Context, job QueueJob[T], cfg runConfig) error {
	q := job.Queue()
	logger := cfg.logger.With(slog.String("queue", q.Name()))

	for i := 0; cfg.iterationLimit < 0 || i < cfg.iterationLimit; i++ {
		if loopCtx.Err() != nil {
			break
		}

		if err := cycle(loopCtx, procCtx, job, cfg, logger); err != nil {
			if errors.Is(err, foundatio.ErrQueueClosed) {
				return err
			}
			if loopCtx.Err() != nil {
				break
			}
			logger.Error("job cycle failed", slog.String("error", err.Error()))
		}

		if cfg.continuation != nil && !cfg.continuation(loopCtx) {
			break
		}
		if cfg.interval > 0 {
			t := time.NewTimer(cfg.interval)
			select {
			case <-loopCtx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}
	logger.Debug("runner stopped")
	return nil
}

func cycle[T any](loopCtx, procCtx context.Context, job QueueJob[T], cfg runConfig, logger *slog.Logger) error {
	if cfg.limiter != nil {
		if err := cfg.limiter.Acquire(loopCtx); err != nil {
			return err
		}
		defer cfg.limiter.Release()
	}

	entry, err := job.Queue().Dequeue(loopCtx, cfg.dequeueTimeout)
	if err != nil {
		return fmt.Errorf("foundatio/jobs: dequeue: %w", err)
	}
	if entry == nil {
		return nil
	}

	result, err := job.Process(procCtx, entry)
	logResult(logger, entry.ID(), result)
	return err
}

func logResult(logger *slog.Logger, entryID string, r Result) {
	attrs := []any{
		slog.String("entry_id", entryID),
		slog.String("status", r.Status.String()),
	}
	if r.Message != "" {
		attrs = append(attrs, slog.String("message", r.Message))
	}
	switch {
	case r.Err != nil:
		attrs = append(attrs, slog.String("error", r.Err.Error()))
		logger.Error("queue entry processed", attrs...)
	case r.IsFailed():
		logger.Warn("queue entry processed", attrs...)
	default:
		logger.Debug("queue entry processed", attrs...)
	}
}
