package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vasont/Foundatio"
	"github.com/vasont/Foundatio/backoff"
	"github.com/vasont/Foundatio/id"
)

// Compile-time check.
var _ Provider = (*Locker)(nil)

// Locker implements Provider over a Backend. Each acquisition gets a fresh
// lock id that the backend stores as the lease owner, so a stale handle
// cannot release or renew a lease granted to a later acquisition, even one
// made through the same Locker.
type Locker struct {
	backend        Backend
	logger         *slog.Logger
	defaultTTL     time.Duration
	acquireTimeout time.Duration
	polling        backoff.Strategy

	mu   sync.Mutex
	held map[string]string // lock id -> name
}

// Option configures a Locker.
type Option func(*Locker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(lk *Locker) { lk.logger = l }
}

// WithDefaultTTL sets the lease used when Acquire or Renew do not name one.
func WithDefaultTTL(d time.Duration) Option {
	return func(lk *Locker) { lk.defaultTTL = d }
}

// WithDefaultAcquireTimeout sets how long Acquire waits by default.
func WithDefaultAcquireTimeout(d time.Duration) Option {
	return func(lk *Locker) { lk.acquireTimeout = d }
}

// WithPolling sets the delay strategy between attempts on a busy lock.
func WithPolling(s backoff.Strategy) Option {
	return func(lk *Locker) { lk.polling = s }
}

// NewLocker creates a Locker over b.
func NewLocker(b Backend, opts ...Option) *Locker {
	lk := &Locker{
		backend:        b,
		logger:         slog.Default(),
		defaultTTL:     5 * time.Minute,
		acquireTimeout: 30 * time.Second,
		polling:        backoff.Polling(time.Second),
		held:           make(map[string]string),
	}
	for _, opt := range opts {
		opt(lk)
	}
	return lk
}

// Acquire implements Provider.
func (lk *Locker) Acquire(ctx context.Context, name string, opts ...AcquireOption) (*Handle, error) {
	cfg := acquireConfig{timeout: lk.acquireTimeout, ttl: lk.defaultTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ttl <= 0 {
		cfg.ttl = lk.defaultTTL
	}

	owner := id.NewLockOwnerID().String()
	deadline := time.Now().Add(cfg.timeout)

	for attempt := 1; ; attempt++ {
		ok, err := lk.backend.TryAcquire(ctx, name, owner, cfg.ttl)
		if err != nil {
			return nil, fmt.Errorf("foundatio/lock: acquire %q: %w", name, err)
		}
		if ok {
			lk.mu.Lock()
			lk.held[owner] = name
			lk.mu.Unlock()
			lk.logger.Debug("lock acquired",
				slog.String("lock", name),
				slog.Int("attempts", attempt),
			)
			return NewHandle(name, owner, lk), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			lk.logger.Debug("lock not acquired", slog.String("lock", name))
			return nil, nil
		}
		wait := min(lk.polling.Delay(attempt), remaining)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, nil
		case <-t.C:
		}
	}
}

// Held returns how many acquisitions made through this Locker have not
// been released. A lease that expired unreleased still counts.
func (lk *Locker) Held() int {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	return len(lk.held)
}

// IsLocked implements Provider.
func (lk *Locker) IsLocked(ctx context.Context, name string) (bool, error) {
	locked, err := lk.backend.IsLocked(ctx, name)
	if err != nil {
		return false, fmt.Errorf("foundatio/lock: is locked %q: %w", name, err)
	}
	return locked, nil
}

// Release implements Provider. Releasing a lock id this Locker did not
// grant, or already released, is a no-op.
func (lk *Locker) Release(ctx context.Context, name, lockID string) error {
	lk.mu.Lock()
	held, ok := lk.held[lockID]
	if ok && held == name {
		delete(lk.held, lockID)
	}
	lk.mu.Unlock()
	if !ok || held != name {
		return nil
	}

	if err := lk.backend.Release(ctx, name, lockID); err != nil {
		return fmt.Errorf("foundatio/lock: release %q: %w", name, err)
	}
	lk.logger.Debug("lock released", slog.String("lock", name))
	return nil
}

// Renew implements Provider.
func (lk *Locker) Renew(ctx context.Context, name, lockID string, extension time.Duration) error {
	if extension <= 0 {
		extension = lk.defaultTTL
	}

	lk.mu.Lock()
	held, ok := lk.held[lockID]
	lk.mu.Unlock()
	if !ok || held != name {
		return fmt.Errorf("foundatio/lock: renew %q: %w", name, foundatio.ErrLockNotHeld)
	}

	if err := lk.backend.Renew(ctx, name, lockID, extension); err != nil {
		return fmt.Errorf("foundatio/lock: renew %q: %w", name, err)
	}
	return nil
}
