package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vasont/Foundatio"
	"github.com/vasont/Foundatio/id"
	"github.com/vasont/Foundatio/jobs"
	"github.com/vasont/Foundatio/workitem"
)

// Pool runs concurrent continuous runner loops over one queue job. Each
// loop processes one entry at a time.
type Pool struct {
	job         jobs.QueueJob[workitem.Data]
	concurrency int
	runOpts     []jobs.Option
	workerID    id.ID
	logger      *slog.Logger

	mu         sync.Mutex
	running    bool
	stopLoops  context.CancelFunc
	cancelWork context.CancelFunc
	done       chan error
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of runner loops.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithRunOptions passes options to every runner loop.
func WithRunOptions(opts ...jobs.Option) PoolOption {
	return func(p *Pool) { p.runOpts = append(p.runOpts, opts...) }
}

// WithPoolLogger sets the logger.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates a worker pool.
func NewPool(job jobs.QueueJob[workitem.Data], opts ...PoolOption) *Pool {
	p := &Pool{
		job:         job,
		concurrency: 1,
		workerID:    id.NewWorkerID(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() string { return p.workerID.String() }

// Running reports whether the pool has been started and not stopped.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start launches the runner loops and returns immediately. Values carried
// by ctx reach the handlers; its cancellation does not.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	base := context.WithoutCancel(ctx)
	workCtx, cancelWork := context.WithCancel(base)
	loopCtx, stopLoops := context.WithCancel(base)
	p.cancelWork = cancelWork
	p.stopLoops = stopLoops
	p.done = make(chan error, 1)

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.String("queue", p.job.Queue().Name()),
		slog.Int("concurrency", p.concurrency),
	)

	g, gctx := errgroup.WithContext(loopCtx)
	opts := append([]jobs.Option{
		jobs.WithLogger(p.logger),
		jobs.WithProcessContext(workCtx),
	}, p.runOpts...)
	for range p.concurrency {
		g.Go(func() error {
			return jobs.RunContinuous(gctx, p.job, opts...)
		})
	}

	done := p.done
	go func() { done <- g.Wait() }()
	return nil
}

// Stop stops dequeuing and waits for in-flight entries to finish. When ctx
// ends first, running handlers are cancelled and Stop waits for them to
// return. A closed queue is not reported as an error.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopLoops, cancelWork, done := p.stopLoops, p.cancelWork, p.done
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))
	stopLoops()

	var err error
	select {
	case err = <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active work items")
		cancelWork()
		err = <-done
	}
	cancelWork()

	if errors.Is(err, foundatio.ErrQueueClosed) {
		return nil
	}
	return err
}
