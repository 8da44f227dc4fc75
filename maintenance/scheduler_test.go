package maintenance_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vasont/Foundatio/maintenance"
)

type passSpy struct {
	mu    sync.Mutex
	fires []time.Time
	next  []time.Time
	err   error
	ch    chan struct{}
}

func newPassSpy() *passSpy {
	return &passSpy{ch: make(chan struct{}, 16)}
}

func (p *passSpy) fn(context.Context) (time.Time, error) {
	p.mu.Lock()
	p.fires = append(p.fires, time.Now())
	var n time.Time
	if len(p.next) > 0 {
		n, p.next = p.next[0], p.next[1:]
	}
	err := p.err
	p.mu.Unlock()
	p.ch <- struct{}{}
	return n, err
}

func (p *passSpy) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fires)
}

func waitFire(t *testing.T, ch <-chan struct{}, within time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(within):
		t.Fatal("maintenance pass did not run in time")
	}
}

func TestScheduleNextNeverIsNoop(t *testing.T) {
	spy := newPassSpy()
	s := maintenance.New(spy.fn)
	defer s.Close()

	s.ScheduleNext(maintenance.Never)
	if !s.Next().IsZero() {
		t.Fatalf("Next() = %v, want Never", s.Next())
	}
	time.Sleep(50 * time.Millisecond)
	if n := spy.count(); n != 0 {
		t.Fatalf("passes = %d, want 0", n)
	}
}

func TestEarlierDeadlineWins(t *testing.T) {
	spy := newPassSpy()
	s := maintenance.New(spy.fn)
	defer s.Close()

	start := time.Now()
	d1 := start.Add(50 * time.Millisecond)
	d2 := start.Add(300 * time.Millisecond)

	s.ScheduleNext(d2)
	s.ScheduleNext(d1)
	if got := s.Next(); !got.Equal(d1) {
		t.Fatalf("Next() = %v, want %v", got, d1)
	}

	waitFire(t, spy.ch, time.Second)
	time.Sleep(400 * time.Millisecond)
	if n := spy.count(); n != 1 {
		t.Fatalf("passes = %d, want exactly 1", n)
	}
}

func TestLaterDeadlineIgnored(t *testing.T) {
	spy := newPassSpy()
	s := maintenance.New(spy.fn)
	defer s.Close()

	d1 := time.Now().Add(50 * time.Millisecond)
	s.ScheduleNext(d1)
	s.ScheduleNext(d1.Add(time.Hour))
	if got := s.Next(); !got.Equal(d1) {
		t.Fatalf("Next() = %v, want %v", got, d1)
	}
	waitFire(t, spy.ch, time.Second)
}

func TestStaleDeadlineDiscarded(t *testing.T) {
	now := time.Now()
	var clock atomic.Int64
	clock.Store(now.UnixNano())
	s := maintenance.New(func(context.Context) (time.Time, error) { return maintenance.Never, nil },
		maintenance.WithClock(func() time.Time { return time.Unix(0, clock.Load()) }))
	defer s.Close()

	s.ScheduleNext(now.Add(time.Hour))
	// Pretend the pending deadline has passed without the timer firing.
	clock.Store(now.Add(2 * time.Hour).UnixNano())

	later := now.Add(3 * time.Hour)
	s.ScheduleNext(later)
	if got := s.Next(); !got.Equal(later) {
		t.Fatalf("Next() = %v, want %v", got, later)
	}
}

func TestPassReschedulesReturnedDeadline(t *testing.T) {
	spy := newPassSpy()
	spy.next = []time.Time{time.Now().Add(30 * time.Millisecond)}
	s := maintenance.New(spy.fn)
	defer s.Close()

	s.ScheduleNext(time.Now())
	waitFire(t, spy.ch, time.Second)
	waitFire(t, spy.ch, time.Second)
	if n := spy.count(); n != 2 {
		t.Fatalf("passes = %d, want 2", n)
	}
}

func TestPassErrorStillReschedules(t *testing.T) {
	spy := newPassSpy()
	spy.err = errors.New("boom")
	spy.next = []time.Time{time.Now().Add(20 * time.Millisecond)}
	s := maintenance.New(spy.fn)
	defer s.Close()

	s.ScheduleNext(time.Now())
	waitFire(t, spy.ch, time.Second)
	waitFire(t, spy.ch, time.Second)
}

func TestPastDeadlineFiresImmediately(t *testing.T) {
	spy := newPassSpy()
	s := maintenance.New(spy.fn)
	defer s.Close()

	s.ScheduleNext(time.Now().Add(-time.Minute))
	waitFire(t, spy.ch, 200*time.Millisecond)
}

func TestCloseStopsPasses(t *testing.T) {
	spy := newPassSpy()
	s := maintenance.New(spy.fn)

	s.ScheduleNext(time.Now().Add(50 * time.Millisecond))
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	s.ScheduleNext(time.Now())
	time.Sleep(150 * time.Millisecond)
	if n := spy.count(); n != 0 {
		t.Fatalf("passes = %d after Close, want 0", n)
	}
}

func TestCloseNeverScheduled(t *testing.T) {
	s := maintenance.New(func(context.Context) (time.Time, error) { return maintenance.Never, nil })
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPassesAreSerialized(t *testing.T) {
	var running, overlap atomic.Int32
	done := make(chan struct{}, 8)
	s := maintenance.New(func(context.Context) (time.Time, error) {
		if running.Add(1) > 1 {
			overlap.Store(1)
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		done <- struct{}{}
		return maintenance.Never, nil
	})
	defer s.Close()

	s.ScheduleNext(time.Now())
	go func() { _ = s.RunNow(context.Background()) }()
	waitFire(t, done, time.Second)
	waitFire(t, done, time.Second)
	if overlap.Load() != 0 {
		t.Fatal("maintenance passes overlapped")
	}
}
