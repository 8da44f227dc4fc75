package lock

import (
	"context"
	"sync/atomic"
	"time"
)

// Handle represents one held lock: the lock name, the lock id of this
// acquisition and the provider that granted it. Release is idempotent;
// Renew delegates to the provider.
type Handle struct {
	name     string
	lockID   string
	provider Provider
	released atomic.Bool
}

// NewHandle returns a Handle for the acquisition lockID of name held
// through p. Providers call this after a successful acquisition.
func NewHandle(name, lockID string, p Provider) *Handle {
	return &Handle{name: name, lockID: lockID, provider: p}
}

// Name returns the lock name.
func (h *Handle) Name() string { return h.name }

// LockID identifies this acquisition. Two handles for the same name never
// share one.
func (h *Handle) LockID() string { return h.lockID }

// Released reports whether Release has been called.
func (h *Handle) Released() bool { return h.released.Load() }

// Release gives the lock back. Only the first call reaches the provider.
func (h *Handle) Release(ctx context.Context) error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	return h.provider.Release(ctx, h.name, h.lockID)
}

// Renew extends the lease. A zero extension uses the provider default.
func (h *Handle) Renew(ctx context.Context, extension time.Duration) error {
	return h.provider.Renew(ctx, h.name, h.lockID, extension)
}
