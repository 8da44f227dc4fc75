// Package redis implements lock.Backend on Redis. A lease is a string key
// holding the owner token with a PX expiry; release and renew are Lua
// scripts that compare the owner before acting.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	locker := lock.NewLocker(redislock.New(client))
package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vasont/Foundatio"
	"github.com/vasont/Foundatio/lock"
)

// Compile-time check.
var _ lock.Backend = (*Backend)(nil)

const defaultPrefix = "foundatio:lock:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Option configures the Backend.
type Option func(*Backend)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithKeyPrefix sets the key namespace. Default "foundatio:lock:".
func WithKeyPrefix(p string) Option {
	return func(b *Backend) { b.prefix = p }
}

// Backend stores leases in Redis. The caller owns the client lifecycle.
type Backend struct {
	client redis.UniversalClient
	logger *slog.Logger
	prefix string
}

// New creates a Redis lock backend.
func New(client redis.UniversalClient, opts ...Option) *Backend {
	b := &Backend{client: client, logger: slog.Default(), prefix: defaultPrefix}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Key returns the Redis key for a lock name.
func (b *Backend) Key(name string) string { return b.prefix + name }

// TryAcquire implements lock.Backend with SET NX PX.
func (b *Backend) TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	ok, err := b.client.SetNX(ctx, b.Key(name), owner, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release implements lock.Backend.
func (b *Backend) Release(ctx context.Context, name, owner string) error {
	err := releaseScript.Run(ctx, b.client, []string{b.Key(name)}, owner).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// Renew implements lock.Backend.
func (b *Backend) Renew(ctx context.Context, name, owner string, ttl time.Duration) error {
	n, err := renewScript.Run(ctx, b.client, []string{b.Key(name)}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return foundatio.ErrLockNotHeld
	}
	return nil
}

// IsLocked implements lock.Backend.
func (b *Backend) IsLocked(ctx context.Context, name string) (bool, error) {
	n, err := b.client.Exists(ctx, b.Key(name)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
