// Package maintenance provides a debounced timer that runs a periodic
// maintenance pass at the earliest requested deadline.
//
// A Scheduler holds a single pending deadline. Requests for later deadlines
// are ignored while an earlier one is pending; an earlier request replaces
// it. When the timer fires the pass runs and returns the next deadline it
// wants, which is fed back into ScheduleNext.
package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Never is the deadline that means "no pass needed".
var Never time.Time

// Func is a maintenance pass. It returns the time at which it wants to run
// again, or Never.
type Func func(ctx context.Context) (time.Time, error)

// Scheduler arms a single timer for the earliest requested deadline.
type Scheduler struct {
	fn     Func
	logger *slog.Logger
	now    func() time.Time
	name   string

	mu     sync.Mutex
	next   time.Time
	timer  *time.Timer
	closed bool

	// runMu serializes passes.
	runMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for pass errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithName labels log lines from this scheduler.
func WithName(name string) Option {
	return func(s *Scheduler) { s.name = name }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler that runs fn. Nothing runs until ScheduleNext is
// called with a non-zero deadline.
func New(fn Func, opts ...Option) *Scheduler {
	s := &Scheduler{
		fn:     fn,
		logger: slog.Default(),
		now:    time.Now,
		name:   "maintenance",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// ScheduleNext requests a pass at t. A zero t is a no-op. If a pending
// deadline is already in the past it is discarded first. A t not earlier
// than the pending deadline is ignored.
func (s *Scheduler) ScheduleNext(t time.Time) {
	if t.IsZero() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	now := s.now()
	if !s.next.IsZero() && s.next.Before(now) {
		s.next = Never
	}
	if !s.next.IsZero() && !t.Before(s.next) {
		return
	}

	s.next = t
	delay := max(t.Sub(now), 0)
	if s.timer == nil {
		s.timer = time.AfterFunc(delay, s.fire)
		return
	}
	s.timer.Reset(delay)
}

// Next returns the pending deadline, or Never.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// RunNow runs a pass immediately on the calling goroutine and schedules the
// deadline it returns.
func (s *Scheduler) RunNow(ctx context.Context) error {
	next, err := s.run(ctx)
	s.ScheduleNext(next)
	return err
}

// Close stops the timer. No pass starts after Close returns. A pass already
// running sees its context canceled. Close is idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.next = Never
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	s.cancel()
	return nil
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	// A reset to a later deadline may have raced this fire.
	if !s.next.After(s.now()) {
		s.next = Never
	}
	s.mu.Unlock()

	next, err := s.run(s.ctx)
	if err != nil {
		s.logger.Error("maintenance pass failed",
			slog.String("scheduler", s.name),
			slog.String("error", err.Error()),
		)
	}
	s.ScheduleNext(next)
}

func (s *Scheduler) run(ctx context.Context) (time.Time, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Never, nil
	}
	return s.fn(ctx)
}
