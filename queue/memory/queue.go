// Package memory provides an in-process queue.Queue. Entries that are not
// resolved within the work item timeout are abandoned automatically;
// abandoned entries are redelivered after a retry delay and dead-lettered
// once their retries are spent. Timeouts and delayed redeliveries are
// driven by a maintenance scheduler.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vasont/Foundatio"
	"github.com/vasont/Foundatio/backoff"
	"github.com/vasont/Foundatio/id"
	"github.com/vasont/Foundatio/maintenance"
	"github.com/vasont/Foundatio/queue"
	"github.com/vasont/Foundatio/serializer"
)

type item[T any] struct {
	id         string
	value      T
	attempts   int
	enqueuedAt time.Time
	readyAt    time.Time
	deadline   time.Time
}

// Queue is an in-memory queue.Queue.
type Queue[T any] struct {
	name        string
	retries     int
	retryDelay  time.Duration
	retryPolicy backoff.Strategy
	timeout     time.Duration
	ser         serializer.Serializer
	logger      *slog.Logger
	now         func() time.Time
	maint       *maintenance.Scheduler

	mu         sync.Mutex
	queued     []*item[T]
	delayed    []*item[T]
	working    map[string]*item[T]
	deadletter []*item[T]
	stats      queue.Stats
	signal     chan struct{}
	closed     bool
}

// Compile-time check.
var _ queue.Queue[string] = (*Queue[string])(nil)

// Option configures a Queue.
type Option func(*options)

type options struct {
	name       string
	retries    int
	retryDelay time.Duration
	timeout    time.Duration
	ser        serializer.Serializer
	logger     *slog.Logger
	now        func() time.Time
}

// WithName sets the queue name.
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithRetries sets how many redeliveries an entry gets before it is
// dead-lettered.
func WithRetries(n int) Option { return func(o *options) { o.retries = n } }

// WithRetryDelay sets the base redelivery delay. Later attempts wait a
// multiple of it. Zero redelivers immediately.
func WithRetryDelay(d time.Duration) Option { return func(o *options) { o.retryDelay = d } }

// WithWorkItemTimeout sets how long a dequeued entry may stay unresolved.
// Zero disables the timeout.
func WithWorkItemTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithSerializer sets the payload serializer.
func WithSerializer(s serializer.Serializer) Option { return func(o *options) { o.ser = s } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New creates an empty queue.
func New[T any](opts ...Option) *Queue[T] {
	o := options{
		name:       "workitems",
		retries:    2,
		retryDelay: time.Minute,
		timeout:    5 * time.Minute,
		ser:        serializer.Default,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	q := &Queue[T]{
		name:        o.name,
		retries:     o.retries,
		retryDelay:  o.retryDelay,
		retryPolicy: backoff.Retry(o.retryDelay),
		timeout:     o.timeout,
		ser:         o.ser,
		logger:      o.logger,
		now:         o.now,
		working:     make(map[string]*item[T]),
		signal:      make(chan struct{}),
	}
	q.maint = maintenance.New(q.maintain,
		maintenance.WithLogger(o.logger),
		maintenance.WithName("queue/memory:"+o.name),
	)
	return q
}

// Name implements queue.Queue.
func (q *Queue[T]) Name() string { return q.name }

// Serializer implements queue.Queue.
func (q *Queue[T]) Serializer() serializer.Serializer { return q.ser }

// Enqueue implements queue.Queue.
func (q *Queue[T]) Enqueue(_ context.Context, v T) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", foundatio.ErrQueueClosed
	}

	it := &item[T]{id: id.NewQueueEntryID().String(), value: v, enqueuedAt: q.now()}
	q.queued = append(q.queued, it)
	q.stats.Enqueued++
	q.wake()
	return it.id, nil
}

// Dequeue implements queue.Queue.
func (q *Queue[T]) Dequeue(ctx context.Context, timeout time.Duration) (queue.Entry[T], error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, foundatio.ErrQueueClosed
		}
		if len(q.queued) > 0 {
			e := q.take()
			deadline := e.item.deadline
			q.mu.Unlock()
			if !deadline.IsZero() {
				q.maint.ScheduleNext(deadline)
			}
			return e, nil
		}
		signal := q.signal
		q.mu.Unlock()

		if timeout <= 0 {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer:
			return nil, nil
		case <-signal:
		}
	}
}

// take pops the head of queued into working. Callers hold mu.
func (q *Queue[T]) take() *entry[T] {
	it := q.queued[0]
	q.queued[0] = nil
	q.queued = q.queued[1:]

	it.attempts++
	if q.timeout > 0 {
		it.deadline = q.now().Add(q.timeout)
	}
	q.working[it.id] = it
	q.stats.Dequeued++
	return &entry[T]{q: q, item: it, attempt: it.attempts}
}

// Stats implements queue.Queue.
func (q *Queue[T]) Stats(context.Context) (queue.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Queued = int64(len(q.queued) + len(q.delayed))
	s.Working = int64(len(q.working))
	s.Deadletter = int64(len(q.deadletter))
	return s, nil
}

// DeadLetters returns the values of dead-lettered entries, oldest first.
func (q *Queue[T]) DeadLetters() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.deadletter))
	for i, it := range q.deadletter {
		out[i] = it.value
	}
	return out
}

// Close stops maintenance and fails pending and future dequeues.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.wake()
	q.mu.Unlock()
	return q.maint.Close()
}

// delivery returns the working item for id if attempt is still its current
// delivery. Callers hold mu.
func (q *Queue[T]) delivery(id string, attempt int) (*item[T], bool) {
	it, ok := q.working[id]
	if !ok || it.attempts != attempt {
		return nil, false
	}
	return it, true
}

func (q *Queue[T]) complete(id string, attempt int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.delivery(id, attempt); !ok {
		return fmt.Errorf("foundatio/queue/memory: complete %s: %w", id, foundatio.ErrEntryNotFound)
	}
	delete(q.working, id)
	q.stats.Completed++
	return nil
}

func (q *Queue[T]) abandon(id string, attempt int) error {
	q.mu.Lock()
	it, ok := q.delivery(id, attempt)
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("foundatio/queue/memory: abandon %s: %w", id, foundatio.ErrEntryNotFound)
	}
	next := q.requeue(it)
	q.stats.Abandoned++
	q.mu.Unlock()

	q.maint.ScheduleNext(next)
	return nil
}

// requeue moves it out of working to deadletter, delayed or queued and
// returns the time maintenance must promote it, if any. Callers hold mu.
func (q *Queue[T]) requeue(it *item[T]) time.Time {
	delete(q.working, it.id)
	it.deadline = time.Time{}

	if it.attempts > q.retries {
		q.deadletter = append(q.deadletter, it)
		q.logger.Warn("queue entry dead-lettered",
			slog.String("queue", q.name),
			slog.String("entry_id", it.id),
			slog.Int("attempts", it.attempts),
		)
		return maintenance.Never
	}

	if q.retryDelay > 0 {
		it.readyAt = q.now().Add(q.retryPolicy.Delay(it.attempts))
		q.delayed = append(q.delayed, it)
		return it.readyAt
	}

	q.queued = append(q.queued, it)
	q.wake()
	return maintenance.Never
}

// maintain abandons timed out entries and promotes due retries. It returns
// the earliest pending deadline.
func (q *Queue[T]) maintain(context.Context) (time.Time, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	next := maintenance.Never
	earliest := func(t time.Time) {
		if !t.IsZero() && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}

	for _, it := range q.working {
		if it.deadline.IsZero() {
			continue
		}
		if it.deadline.After(now) {
			earliest(it.deadline)
			continue
		}
		q.logger.Debug("queue entry timed out",
			slog.String("queue", q.name),
			slog.String("entry_id", it.id),
		)
		q.stats.Timeouts++
		q.stats.Abandoned++
		earliest(q.requeue(it))
	}

	ready := q.delayed[:0]
	promoted := false
	for _, it := range q.delayed {
		if it.readyAt.After(now) {
			ready = append(ready, it)
			earliest(it.readyAt)
			continue
		}
		it.readyAt = time.Time{}
		q.queued = append(q.queued, it)
		promoted = true
	}
	clear(q.delayed[len(ready):])
	q.delayed = ready
	if promoted {
		q.wake()
	}
	return next, nil
}

// wake releases every Dequeue waiting on the current signal. Callers hold mu.
func (q *Queue[T]) wake() {
	close(q.signal)
	q.signal = make(chan struct{})
}
