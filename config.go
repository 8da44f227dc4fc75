package foundatio

import "time"

// Config holds the settings shared by the engine, its worker pool and the
// default queue and lock backends.
type Config struct {
	// Concurrency is the number of worker loops run by the pool.
	Concurrency int

	// QueueName names the work item queue.
	QueueName string

	// DequeueTimeout bounds each dequeue wait of a worker loop.
	DequeueTimeout time.Duration

	// LockAcquireTimeout is how long a handler waits for its work item lock
	// before the item is skipped.
	LockAcquireTimeout time.Duration

	// LockTTL is the lease granted on acquire and on each renewal.
	LockTTL time.Duration

	// WorkItemTimeout is the visibility timeout of a dequeued entry. An
	// entry neither completed nor abandoned in time is abandoned by the
	// queue.
	WorkItemTimeout time.Duration

	// Retries is the number of redeliveries before an entry is dead-lettered.
	Retries int

	// RetryDelay postpones redelivery of an abandoned entry.
	RetryDelay time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:        1,
		QueueName:          "workitems",
		DequeueTimeout:     30 * time.Second,
		LockAcquireTimeout: 30 * time.Second,
		LockTTL:            5 * time.Minute,
		WorkItemTimeout:    5 * time.Minute,
		Retries:            2,
		RetryDelay:         time.Minute,
		ShutdownTimeout:    30 * time.Second,
	}
}

// Option configures a Config.
type Option func(*Config)

// WithConcurrency sets the number of worker loops.
func WithConcurrency(n int) Option {
	return func(c *Config) { c.Concurrency = n }
}

// WithQueueName sets the work item queue name.
func WithQueueName(name string) Option {
	return func(c *Config) { c.QueueName = name }
}

// WithDequeueTimeout sets the per-loop dequeue wait.
func WithDequeueTimeout(d time.Duration) Option {
	return func(c *Config) { c.DequeueTimeout = d }
}

// WithLockAcquireTimeout sets how long handlers wait for work item locks.
func WithLockAcquireTimeout(d time.Duration) Option {
	return func(c *Config) { c.LockAcquireTimeout = d }
}

// WithLockTTL sets the lock lease duration.
func WithLockTTL(d time.Duration) Option {
	return func(c *Config) { c.LockTTL = d }
}

// WithWorkItemTimeout sets the queue visibility timeout.
func WithWorkItemTimeout(d time.Duration) Option {
	return func(c *Config) { c.WorkItemTimeout = d }
}

// WithRetries sets the redelivery budget.
func WithRetries(n int) Option {
	return func(c *Config) { c.Retries = n }
}

// WithRetryDelay sets the redelivery delay for abandoned entries.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) { c.RetryDelay = d }
}

// WithShutdownTimeout sets the graceful shutdown limit.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) { c.ShutdownTimeout = d }
}

// NewConfig returns DefaultConfig with opts applied.
func NewConfig(opts ...Option) Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
