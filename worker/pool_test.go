package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vasont/Foundatio/jobs"
	"github.com/vasont/Foundatio/lock"
	lockmem "github.com/vasont/Foundatio/lock/memory"
	"github.com/vasont/Foundatio/messaging"
	busmem "github.com/vasont/Foundatio/messaging/memory"
	"github.com/vasont/Foundatio/queue"
	queuemem "github.com/vasont/Foundatio/queue/memory"
	"github.com/vasont/Foundatio/serializer"
	"github.com/vasont/Foundatio/worker"
	"github.com/vasont/Foundatio/workitem"
)

type stack struct {
	queue    *queuemem.Queue[workitem.Data]
	bus      *busmem.Bus
	locker   *lock.Locker
	registry *workitem.Registry
}

func newStack(t *testing.T, opts ...queuemem.Option) *stack {
	t.Helper()
	backend := lockmem.New()
	q := queuemem.New[workitem.Data](opts...)
	t.Cleanup(func() {
		_ = q.Close()
		_ = backend.Close()
	})
	return &stack{
		queue:    q,
		bus:      busmem.New(),
		locker:   lock.NewLocker(backend, lock.WithDefaultAcquireTimeout(0)),
		registry: workitem.NewRegistry(),
	}
}

func (s *stack) enqueue(t *testing.T, to string, reports bool) {
	t.Helper()
	raw, _ := serializer.JSON{}.Marshal(emailPayload{To: to})
	d := workitem.Data{Type: "email", Data: raw, WorkItemID: "wi_" + to, SendProgressReports: reports}
	if _, err := s.queue.Enqueue(context.Background(), d); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func waitFor(t *testing.T, q queue.Queue[workitem.Data], cond func(queue.Stats) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s, err := q.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if cond(s) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	s, _ := q.Stats(context.Background())
	t.Fatalf("timed out waiting for queue condition, stats = %+v", s)
}

func stopPool(t *testing.T, p *worker.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestPool_StartStop(t *testing.T) {
	s := newStack(t)
	pool := worker.NewPool(worker.NewJob(s.queue, s.bus, s.registry), worker.WithConcurrency(2))

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("double Start: %v", err)
	}
	if !pool.Running() {
		t.Fatal("pool not running after Start")
	}

	stopPool(t, pool)
	stopPool(t, pool)
	if pool.Running() {
		t.Fatal("pool still running after Stop")
	}
}

func TestPool_ProcessesWorkItems(t *testing.T) {
	s := newStack(t)
	var handled atomic.Int32
	workitem.Register(s.registry, workitem.NewDefinition("email",
		func(context.Context, *workitem.Context, emailPayload) error {
			handled.Add(1)
			return nil
		},
	).WithLock(s.locker, func(p emailPayload) string { return "email:" + p.To }))

	var statuses atomic.Int32
	_, err := s.bus.Subscribe(context.Background(), workitem.StatusMessageType, func(context.Context, messaging.Message) {
		statuses.Add(1)
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for _, to := range []string{"a", "b", "c", "d"} {
		s.enqueue(t, to, true)
	}

	pool := worker.NewPool(worker.NewJob(s.queue, s.bus, s.registry),
		worker.WithConcurrency(3),
		worker.WithRunOptions(jobs.WithDequeueTimeout(50*time.Millisecond)),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, s.queue, func(st queue.Stats) bool { return st.Completed == 4 })
	stopPool(t, pool)

	if n := handled.Load(); n != 4 {
		t.Fatalf("handled = %d, want 4", n)
	}
	if s.locker.Held() != 0 {
		t.Fatalf("locks still held: %d", s.locker.Held())
	}
	deadline := time.Now().Add(time.Second)
	for statuses.Load() < 8 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := statuses.Load(); n != 8 {
		t.Fatalf("statuses = %d, want 8", n)
	}
}

func TestPool_FailedItemsDeadLetter(t *testing.T) {
	s := newStack(t, queuemem.WithRetries(1), queuemem.WithRetryDelay(0))
	var attempts atomic.Int32
	workitem.Register(s.registry, workitem.NewDefinition("email",
		func(context.Context, *workitem.Context, emailPayload) error {
			attempts.Add(1)
			return errors.New("smtp refused")
		},
	))
	s.enqueue(t, "a", false)

	pool := worker.NewPool(worker.NewJob(s.queue, s.bus, s.registry),
		worker.WithRunOptions(jobs.WithDequeueTimeout(20*time.Millisecond)),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, s.queue, func(st queue.Stats) bool { return st.Deadletter == 1 })
	stopPool(t, pool)

	if n := attempts.Load(); n != 2 {
		t.Fatalf("attempts = %d, want 2", n)
	}
}

func TestPool_StopWaitsForInFlightItem(t *testing.T) {
	s := newStack(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	workitem.Register(s.registry, workitem.NewDefinition("email",
		func(ctx context.Context, _ *workitem.Context, _ emailPayload) error {
			close(started)
			<-release
			finished.Store(true)
			return ctx.Err()
		},
	))
	s.enqueue(t, "a", false)

	pool := worker.NewPool(worker.NewJob(s.queue, s.bus, s.registry))
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	stopPool(t, pool)

	if !finished.Load() {
		t.Fatal("Stop returned before the in-flight item finished")
	}
	st, _ := s.queue.Stats(context.Background())
	if st.Completed != 1 {
		t.Fatalf("stats = %+v, want the item completed", st)
	}
}

func TestPool_StopTimeoutCancelsHandlers(t *testing.T) {
	s := newStack(t)
	started := make(chan struct{})
	workitem.Register(s.registry, workitem.NewDefinition("email",
		func(ctx context.Context, _ *workitem.Context, _ emailPayload) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	))
	s.enqueue(t, "a", false)

	pool := worker.NewPool(worker.NewJob(s.queue, s.bus, s.registry))
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	st, _ := s.queue.Stats(context.Background())
	if st.Abandoned != 1 {
		t.Fatalf("stats = %+v, want the cancelled item abandoned", st)
	}
}
