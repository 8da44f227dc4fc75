package queue

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// LimitConfig bounds how fast and how many entries a runner takes.
type LimitConfig struct {
	// RateLimit is the sustained dequeues per second. Zero disables rate
	// limiting.
	RateLimit float64

	// RateBurst is the token bucket size. Defaults to 1 when RateLimit is
	// set.
	RateBurst int

	// MaxInFlight caps entries being processed at once across every
	// runner sharing this Limiter. Zero means no cap.
	MaxInFlight int
}

// Limiter gates dequeues. It is safe for concurrent use and may be shared
// by all runners of a pool.
type Limiter struct {
	mu      sync.Mutex
	cfg     LimitConfig
	limiter *rate.Limiter
	active  int
	freed   chan struct{}
}

// NewLimiter creates a Limiter.
func NewLimiter(cfg LimitConfig) *Limiter {
	l := &Limiter{freed: make(chan struct{})}
	l.configure(cfg)
	return l
}

func (l *Limiter) configure(cfg LimitConfig) {
	l.cfg = cfg
	l.limiter = nil
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
}

// SetConfig replaces the limits, keeping the current in-flight count.
func (l *Limiter) SetConfig(cfg LimitConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configure(cfg)
	l.broadcast()
}

// Acquire blocks until both a rate token and an in-flight slot are
// available. The caller must call Release when the entry is processed.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.cfg.MaxInFlight <= 0 || l.active < l.cfg.MaxInFlight {
			l.active++
			lim := l.limiter
			l.mu.Unlock()

			if lim != nil {
				if err := lim.Wait(ctx); err != nil {
					l.Release()
					return err
				}
			}
			return nil
		}
		freed := l.freed
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-freed:
		}
	}
}

// TryAcquire is the non-blocking form of Acquire.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.MaxInFlight > 0 && l.active >= l.cfg.MaxInFlight {
		return false
	}
	if l.limiter != nil && !l.limiter.Allow() {
		return false
	}
	l.active++
	return true
}

// Release frees an in-flight slot.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active > 0 {
		l.active--
	}
	l.broadcast()
}

// Active returns the number of held slots.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// broadcast wakes every waiter. Callers hold mu.
func (l *Limiter) broadcast() {
	close(l.freed)
	l.freed = make(chan struct{})
}
