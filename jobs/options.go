package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/vasont/Foundatio/queue"
)

// Continuation decides after each cycle whether the runner keeps going.
type Continuation func(ctx context.Context) bool

// Option configures a runner.
type Option func(*runConfig)

type runConfig struct {
	interval       time.Duration
	iterationLimit int
	dequeueTimeout time.Duration
	continuation   Continuation
	logger         *slog.Logger
	limiter        *queue.Limiter
	procCtx        context.Context
}

func defaultRunConfig() runConfig {
	return runConfig{
		iterationLimit: -1,
		dequeueTimeout: 30 * time.Second,
		logger:         slog.Default(),
	}
}

func (c runConfig) processContext(fallback context.Context) context.Context {
	if c.procCtx != nil {
		return c.procCtx
	}
	return fallback
}

// WithInterval pauses between cycles.
func WithInterval(d time.Duration) Option {
	return func(c *runConfig) { c.interval = d }
}

// WithIterationLimit stops after n cycles. Negative means unlimited.
func WithIterationLimit(n int) Option {
	return func(c *runConfig) { c.iterationLimit = n }
}

// WithDequeueTimeout bounds each dequeue wait.
func WithDequeueTimeout(d time.Duration) Option {
	return func(c *runConfig) { c.dequeueTimeout = d }
}

// WithContinuation sets the predicate evaluated after each cycle.
func WithContinuation(fn Continuation) Option {
	return func(c *runConfig) { c.continuation = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// WithLimiter gates each dequeue on l. The slot is held until the entry
// has been processed.
func WithLimiter(l *queue.Limiter) Option {
	return func(c *runConfig) { c.limiter = l }
}

// WithProcessContext processes dequeued entries under ctx instead of the
// loop context, so stopping the loop does not cancel a running handler.
func WithProcessContext(ctx context.Context) Option {
	return func(c *runConfig) { c.procCtx = ctx }
}
