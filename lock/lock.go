// Package lock provides named, lease-based distributed locks and the
// Handle returned to the code that holds one.
//
// A Provider grants at most one holder per name at a time. Failure to
// acquire is reported as a nil Handle, never as an error; errors are
// reserved for backend faults. Leases expire after their TTL unless
// renewed, so a crashed holder never blocks a name forever.
package lock

import (
	"context"
	"time"
)

// Provider is the contract the work item pipeline locks through.
type Provider interface {
	// Acquire waits up to the acquire timeout for name. It returns
	// (nil, nil) when the lock could not be obtained in time.
	Acquire(ctx context.Context, name string, opts ...AcquireOption) (*Handle, error)

	// IsLocked reports whether any holder currently has name.
	IsLocked(ctx context.Context, name string) (bool, error)

	// Release gives up name if lockID still holds it. A lockID whose
	// lease expired or was already released is a no-op.
	Release(ctx context.Context, name, lockID string) error

	// Renew extends the lease lockID holds on name. A zero extension uses
	// the provider's default TTL. Renewing a lock that is no longer held
	// returns foundatio.ErrLockNotHeld.
	Renew(ctx context.Context, name, lockID string, extension time.Duration) error
}

// Backend is the storage a Locker keeps leases in. Implementations exist
// for memory, Redis, PostgreSQL, MongoDB and Kubernetes Leases.
//
// Locks are not reentrant: TryAcquire fails while any unexpired lease
// exists for name, including one held by the same owner.
type Backend interface {
	// TryAcquire makes one attempt to lease name to owner for ttl.
	TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)

	// Release drops the lease if owner still holds it. Releasing a lease
	// that expired or moved to another owner is not an error.
	Release(ctx context.Context, name, owner string) error

	// Renew resets the lease expiry to now+ttl. It returns
	// foundatio.ErrLockNotHeld when owner no longer holds name.
	Renew(ctx context.Context, name, owner string, ttl time.Duration) error

	// IsLocked reports whether an unexpired lease exists for name.
	IsLocked(ctx context.Context, name string) (bool, error)
}

// AcquireOption configures one Acquire call.
type AcquireOption func(*acquireConfig)

type acquireConfig struct {
	timeout    time.Duration
	timeoutSet bool
	ttl        time.Duration
}

// WithAcquireTimeout bounds the wait for a busy lock. Zero makes a single
// attempt.
func WithAcquireTimeout(d time.Duration) AcquireOption {
	return func(c *acquireConfig) {
		c.timeout = d
		c.timeoutSet = true
	}
}

// WithTTL sets the lease duration for this acquisition.
func WithTTL(d time.Duration) AcquireOption {
	return func(c *acquireConfig) { c.ttl = d }
}
