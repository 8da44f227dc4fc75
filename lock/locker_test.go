package lock_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vasont/Foundatio"
	"github.com/vasont/Foundatio/lock"
	"github.com/vasont/Foundatio/lock/memory"
)

// spyProvider counts provider calls made through a Handle.
type spyProvider struct {
	releases atomic.Int32
	mu       sync.Mutex
	renews   []time.Duration
}

func (s *spyProvider) Acquire(_ context.Context, name string, _ ...lock.AcquireOption) (*lock.Handle, error) {
	return lock.NewHandle(name, "id-"+name, s), nil
}

func (s *spyProvider) IsLocked(context.Context, string) (bool, error) { return false, nil }

func (s *spyProvider) Release(context.Context, string, string) error {
	s.releases.Add(1)
	return nil
}

func (s *spyProvider) Renew(_ context.Context, _, _ string, ext time.Duration) error {
	s.mu.Lock()
	s.renews = append(s.renews, ext)
	s.mu.Unlock()
	return nil
}

func TestHandleReleaseIsIdempotent(t *testing.T) {
	spy := &spyProvider{}
	h, _ := spy.Acquire(context.Background(), "a")

	for i := 0; i < 3; i++ {
		if err := h.Release(context.Background()); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}
	if n := spy.releases.Load(); n != 1 {
		t.Fatalf("provider releases = %d, want 1", n)
	}
	if !h.Released() {
		t.Error("Released() = false")
	}
}

func TestHandleConcurrentRelease(t *testing.T) {
	spy := &spyProvider{}
	h, _ := spy.Acquire(context.Background(), "a")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Release(context.Background())
		}()
	}
	wg.Wait()
	if n := spy.releases.Load(); n != 1 {
		t.Fatalf("provider releases = %d, want 1", n)
	}
}

func TestHandleRenewDelegates(t *testing.T) {
	spy := &spyProvider{}
	h, _ := spy.Acquire(context.Background(), "a")
	if err := h.Renew(context.Background(), 0); err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if err := h.Renew(context.Background(), time.Minute); err != nil {
		t.Fatalf("Renew: %v", err)
	}
	spy.mu.Lock()
	defer spy.mu.Unlock()
	if len(spy.renews) != 2 || spy.renews[0] != 0 || spy.renews[1] != time.Minute {
		t.Fatalf("renews = %v", spy.renews)
	}
}

func newLocker(t *testing.T, opts ...lock.Option) (*lock.Locker, *memory.Backend) {
	t.Helper()
	b := memory.New()
	t.Cleanup(func() { _ = b.Close() })
	return lock.NewLocker(b, opts...), b
}

func TestAcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	lk, _ := newLocker(t)

	h, err := lk.Acquire(ctx, "item:1")
	if err != nil || h == nil {
		t.Fatalf("Acquire = %v, %v", h, err)
	}
	if h.Name() != "item:1" {
		t.Errorf("Name() = %q", h.Name())
	}
	locked, _ := lk.IsLocked(ctx, "item:1")
	if !locked {
		t.Fatal("expected item:1 locked")
	}
	if err := h.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	locked, _ = lk.IsLocked(ctx, "item:1")
	if locked {
		t.Fatal("expected item:1 unlocked after release")
	}
}

func TestAcquireBusyReturnsNilHandle(t *testing.T) {
	ctx := context.Background()
	lk, _ := newLocker(t)

	h1, _ := lk.Acquire(ctx, "x")
	defer h1.Release(ctx)

	start := time.Now()
	h2, err := lk.Acquire(ctx, "x", lock.WithAcquireTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if h2 != nil {
		t.Fatal("expected nil handle for busy lock")
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Error("Acquire returned before the acquire timeout")
	}
}

func TestAcquireZeroTimeoutSingleAttempt(t *testing.T) {
	ctx := context.Background()
	lk, _ := newLocker(t)
	h1, _ := lk.Acquire(ctx, "x")
	defer h1.Release(ctx)

	start := time.Now()
	h2, err := lk.Acquire(ctx, "x", lock.WithAcquireTimeout(0))
	if err != nil || h2 != nil {
		t.Fatalf("Acquire = %v, %v; want nil, nil", h2, err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("zero timeout waited")
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	ctx := context.Background()
	lk, _ := newLocker(t)
	h1, _ := lk.Acquire(ctx, "x")

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = h1.Release(ctx)
	}()

	h2, err := lk.Acquire(ctx, "x", lock.WithAcquireTimeout(2*time.Second))
	if err != nil || h2 == nil {
		t.Fatalf("Acquire = %v, %v; want handle", h2, err)
	}
	_ = h2.Release(ctx)
}

func TestAcquireCanceledContext(t *testing.T) {
	lk, _ := newLocker(t)
	h1, _ := lk.Acquire(context.Background(), "x")
	defer h1.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	h2, err := lk.Acquire(ctx, "x", lock.WithAcquireTimeout(time.Minute))
	if err != nil || h2 != nil {
		t.Fatalf("Acquire = %v, %v; want nil, nil", h2, err)
	}
}

func TestExpiredLeaseCanBeTaken(t *testing.T) {
	ctx := context.Background()
	lk, _ := newLocker(t)

	h1, _ := lk.Acquire(ctx, "x", lock.WithTTL(30*time.Millisecond))
	if h1 == nil {
		t.Fatal("expected first handle")
	}
	h2, err := lk.Acquire(ctx, "x", lock.WithAcquireTimeout(time.Second))
	if err != nil || h2 == nil {
		t.Fatalf("Acquire after expiry = %v, %v", h2, err)
	}
}

func TestRenewLostLock(t *testing.T) {
	ctx := context.Background()
	lk, _ := newLocker(t)

	h, _ := lk.Acquire(ctx, "x", lock.WithTTL(20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	err := h.Renew(ctx, 0)
	if !errors.Is(err, foundatio.ErrLockNotHeld) {
		t.Fatalf("Renew = %v, want ErrLockNotHeld", err)
	}
}

func TestRenewAfterReleaseNotHeld(t *testing.T) {
	ctx := context.Background()
	lk, _ := newLocker(t)
	h, _ := lk.Acquire(ctx, "x")
	_ = h.Release(ctx)
	if err := h.Renew(ctx, time.Minute); !errors.Is(err, foundatio.ErrLockNotHeld) {
		t.Fatalf("Renew = %v, want ErrLockNotHeld", err)
	}
}

func TestRenewExtendsLease(t *testing.T) {
	ctx := context.Background()
	lk, _ := newLocker(t, lock.WithDefaultTTL(60*time.Millisecond))

	h, _ := lk.Acquire(ctx, "x")
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		if err := h.Renew(ctx, 0); err != nil {
			t.Fatalf("Renew %d: %v", i, err)
		}
	}
	locked, _ := lk.IsLocked(ctx, "x")
	if !locked {
		t.Fatal("expected lock still held after renewals")
	}
}

func TestStaleHandleCannotReleaseNewHolder(t *testing.T) {
	ctx := context.Background()
	lkA, b := newLocker(t)
	lkB := lock.NewLocker(b)

	hA, _ := lkA.Acquire(ctx, "x", lock.WithTTL(20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	hB, _ := lkB.Acquire(ctx, "x", lock.WithAcquireTimeout(0))
	if hB == nil {
		t.Fatal("expected B to take the expired lease")
	}

	_ = hA.Release(ctx)
	locked, _ := lkB.IsLocked(ctx, "x")
	if !locked {
		t.Fatal("stale release dropped the new holder's lease")
	}
}

func TestStaleHandleSameLocker(t *testing.T) {
	ctx := context.Background()
	lk, _ := newLocker(t)

	hA, _ := lk.Acquire(ctx, "x", lock.WithTTL(20*time.Millisecond))
	if hA == nil {
		t.Fatal("expected A to acquire")
	}
	time.Sleep(40 * time.Millisecond)
	hB, _ := lk.Acquire(ctx, "x", lock.WithAcquireTimeout(0))
	if hB == nil {
		t.Fatal("expected B to take the expired lease")
	}
	if hA.LockID() == hB.LockID() {
		t.Fatal("handles share a lock id")
	}

	if err := hA.Release(ctx); err != nil {
		t.Fatalf("stale Release: %v", err)
	}
	locked, _ := lk.IsLocked(ctx, "x")
	if !locked {
		t.Fatal("stale release dropped the new holder's lease")
	}
	if n := lk.Held(); n != 1 {
		t.Fatalf("Held() = %d, want 1", n)
	}
	if hC, _ := lk.Acquire(ctx, "x", lock.WithAcquireTimeout(0)); hC != nil {
		t.Fatal("third acquire succeeded while B holds the lease")
	}
	if err := hA.Renew(ctx, time.Minute); !errors.Is(err, foundatio.ErrLockNotHeld) {
		t.Fatalf("stale Renew = %v, want ErrLockNotHeld", err)
	}
	if err := hB.Renew(ctx, time.Minute); err != nil {
		t.Fatalf("holder Renew: %v", err)
	}

	if err := hB.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if n := lk.Held(); n != 0 {
		t.Fatalf("Held() after release = %d, want 0", n)
	}
	locked, _ = lk.IsLocked(ctx, "x")
	if locked {
		t.Fatal("expected x unlocked after holder release")
	}
}
