package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vasont/Foundatio"
	"github.com/vasont/Foundatio/id"
	"github.com/vasont/Foundatio/internal/testutil"
	redislock "github.com/vasont/Foundatio/lock/redis"
)

func TestKey(t *testing.T) {
	b := redislock.New(goredis.NewClient(&goredis.Options{Addr: "localhost:0"}))
	if got := b.Key("item:1"); got != "foundatio:lock:item:1" {
		t.Errorf("Key() = %q", got)
	}
	b = redislock.New(goredis.NewClient(&goredis.Options{Addr: "localhost:0"}), redislock.WithKeyPrefix("x:"))
	if got := b.Key("item:1"); got != "x:item:1" {
		t.Errorf("Key() = %q", got)
	}
}

func newBackend(t *testing.T) *redislock.Backend {
	t.Helper()
	client := testutil.RedisClient(t)
	return redislock.New(client, redislock.WithKeyPrefix("foundatio:test:"+id.NewJobID().String()+":"))
}

func TestLeaseLifecycle(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	ok, err := b.TryAcquire(ctx, "x", "o1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryAcquire = %v, %v", ok, err)
	}
	ok, _ = b.TryAcquire(ctx, "x", "o2", time.Minute)
	if ok {
		t.Fatal("second owner acquired a held lease")
	}
	if err := b.Renew(ctx, "x", "o2", time.Minute); !errors.Is(err, foundatio.ErrLockNotHeld) {
		t.Fatalf("Renew by non-owner = %v", err)
	}
	if err := b.Renew(ctx, "x", "o1", time.Minute); err != nil {
		t.Fatalf("Renew: %v", err)
	}
	_ = b.Release(ctx, "x", "o2")
	if locked, _ := b.IsLocked(ctx, "x"); !locked {
		t.Fatal("non-owner release dropped the lease")
	}
	if err := b.Release(ctx, "x", "o1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if locked, _ := b.IsLocked(ctx, "x"); locked {
		t.Fatal("lease still present after release")
	}
}
