// Package memory provides an in-process lock.Backend. Expired leases are
// purged by a maintenance scheduler armed at the earliest expiry.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vasont/Foundatio"
	"github.com/vasont/Foundatio/lock"
	"github.com/vasont/Foundatio/maintenance"
)

// Compile-time check.
var _ lock.Backend = (*Backend)(nil)

type lease struct {
	owner   string
	expires time.Time
}

// Backend keeps leases in a map.
type Backend struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
	logger *slog.Logger
	maint  *maintenance.Scheduler
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithClock overrides time.Now for lease expiry.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// New creates an empty Backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		leases: make(map[string]lease),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.maint = maintenance.New(b.purge,
		maintenance.WithLogger(b.logger),
		maintenance.WithName("lock/memory"),
	)
	return b
}

// TryAcquire implements lock.Backend.
func (b *Backend) TryAcquire(_ context.Context, name, owner string, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	now := b.now()
	if l, ok := b.leases[name]; ok && l.expires.After(now) {
		b.mu.Unlock()
		return false, nil
	}
	expires := now.Add(ttl)
	b.leases[name] = lease{owner: owner, expires: expires}
	b.mu.Unlock()

	b.maint.ScheduleNext(expires)
	return true, nil
}

// Release implements lock.Backend.
func (b *Backend) Release(_ context.Context, name, owner string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.leases[name]; ok && l.owner == owner {
		delete(b.leases, name)
	}
	return nil
}

// Renew implements lock.Backend.
func (b *Backend) Renew(_ context.Context, name, owner string, ttl time.Duration) error {
	b.mu.Lock()
	now := b.now()
	l, ok := b.leases[name]
	if !ok || l.owner != owner || !l.expires.After(now) {
		b.mu.Unlock()
		return foundatio.ErrLockNotHeld
	}
	l.expires = now.Add(ttl)
	b.leases[name] = l
	b.mu.Unlock()

	b.maint.ScheduleNext(l.expires)
	return nil
}

// IsLocked implements lock.Backend.
func (b *Backend) IsLocked(_ context.Context, name string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.leases[name]
	return ok && l.expires.After(b.now()), nil
}

// Len returns the number of stored leases, expired or not.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.leases)
}

// Close stops the purge scheduler.
func (b *Backend) Close() error {
	return b.maint.Close()
}

// purge drops expired leases and returns the next expiry.
func (b *Backend) purge(context.Context) (time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	next := maintenance.Never
	for name, l := range b.leases {
		if !l.expires.After(now) {
			delete(b.leases, name)
			continue
		}
		if next.IsZero() || l.expires.Before(next) {
			next = l.expires
		}
	}
	return next, nil
}
