// Package redis implements queue.Queue on Redis lists and sorted sets.
// Payloads are stored encoded with the queue's serializer, so any process
// sharing the key prefix and serializer can consume them.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	q := redisqueue.New[workitem.Data](client, redisqueue.WithName("workitems"))
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vasont/Foundatio"
	"github.com/vasont/Foundatio/backoff"
	"github.com/vasont/Foundatio/id"
	"github.com/vasont/Foundatio/maintenance"
	"github.com/vasont/Foundatio/queue"
	"github.com/vasont/Foundatio/serializer"
)

// Compile-time check.
var _ queue.Queue[string] = (*Queue[string])(nil)

// Option configures a Queue.
type Option func(*options)

type options struct {
	name       string
	prefix     string
	retries    int
	retryDelay time.Duration
	timeout    time.Duration
	poll       backoff.Strategy
	ser        serializer.Serializer
	logger     *slog.Logger
}

// WithName sets the queue name.
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithKeyPrefix sets the key namespace. Default "foundatio:queue:".
func WithKeyPrefix(p string) Option { return func(o *options) { o.prefix = p } }

// WithRetries sets the redelivery budget.
func WithRetries(n int) Option { return func(o *options) { o.retries = n } }

// WithRetryDelay sets the base redelivery delay.
func WithRetryDelay(d time.Duration) Option { return func(o *options) { o.retryDelay = d } }

// WithWorkItemTimeout sets the visibility timeout. Zero disables it.
func WithWorkItemTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithPolling sets the delay strategy between empty dequeue polls.
func WithPolling(s backoff.Strategy) Option { return func(o *options) { o.poll = s } }

// WithSerializer sets the payload serializer.
func WithSerializer(s serializer.Serializer) Option { return func(o *options) { o.ser = s } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// Queue is a Redis-backed queue.Queue. The caller owns the client.
type Queue[T any] struct {
	client      redis.UniversalClient
	name        string
	keys        keys
	retries     int
	retryDelay  time.Duration
	retryPolicy backoff.Strategy
	timeout     time.Duration
	poll        backoff.Strategy
	ser         serializer.Serializer
	logger      *slog.Logger
	maint       *maintenance.Scheduler
	closed      atomic.Bool
}

// New creates a queue on client and schedules an immediate maintenance
// pass to recover entries left behind by other processes.
func New[T any](client redis.UniversalClient, opts ...Option) *Queue[T] {
	o := options{
		name:       "workitems",
		prefix:     defaultPrefix,
		retries:    2,
		retryDelay: time.Minute,
		timeout:    5 * time.Minute,
		poll:       backoff.Exponential{Initial: 50 * time.Millisecond, Max: time.Second},
		ser:        serializer.Default,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	q := &Queue[T]{
		client:      client,
		name:        o.name,
		keys:        newKeys(o.prefix, o.name),
		retries:     o.retries,
		retryDelay:  o.retryDelay,
		retryPolicy: backoff.Retry(o.retryDelay),
		timeout:     o.timeout,
		poll:        o.poll,
		ser:         o.ser,
		logger:      o.logger,
	}
	q.maint = maintenance.New(q.maintain,
		maintenance.WithLogger(o.logger),
		maintenance.WithName("queue/redis:"+o.name),
	)
	q.maint.ScheduleNext(time.Now())
	return q
}

// Name implements queue.Queue.
func (q *Queue[T]) Name() string { return q.name }

// Serializer implements queue.Queue.
func (q *Queue[T]) Serializer() serializer.Serializer { return q.ser }

// Enqueue implements queue.Queue.
func (q *Queue[T]) Enqueue(ctx context.Context, v T) (string, error) {
	if q.closed.Load() {
		return "", foundatio.ErrQueueClosed
	}
	data, err := q.ser.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("foundatio/queue/redis: encode: %w", err)
	}

	entryID := id.NewQueueEntryID().String()
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.keys.item(entryID),
		"value", data,
		"attempts", 0,
		"enqueued_at", time.Now().UnixMilli(),
	)
	pipe.LPush(ctx, q.keys.queued(), entryID)
	pipe.HIncrBy(ctx, q.keys.stats(), "enqueued", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("foundatio/queue/redis: enqueue: %w", err)
	}
	return entryID, nil
}

// Dequeue implements queue.Queue. It polls with the configured backoff
// until timeout.
func (q *Queue[T]) Dequeue(ctx context.Context, timeout time.Duration) (queue.Entry[T], error) {
	deadline := time.Now().Add(timeout)
	for attempt := 1; ; attempt++ {
		if q.closed.Load() {
			return nil, foundatio.ErrQueueClosed
		}
		e, err := q.tryDequeue(ctx)
		if err != nil {
			return nil, err
		}
		if e != nil {
			return e, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		t := time.NewTimer(min(q.poll.Delay(attempt), remaining))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (q *Queue[T]) tryDequeue(ctx context.Context) (*entry[T], error) {
	var visibleUntil time.Time
	score := int64(1<<53 - 1)
	if q.timeout > 0 {
		visibleUntil = time.Now().Add(q.timeout)
		score = visibleUntil.UnixMilli()
	}

	res, err := dequeueScript.Run(ctx, q.client,
		[]string{q.keys.queued(), q.keys.working(), q.keys.stats()},
		score, q.keys.itemPrefix(),
	).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("foundatio/queue/redis: dequeue: %w", err)
	}

	e, err := q.decodeEntry(res)
	if err != nil {
		return nil, err
	}
	if !visibleUntil.IsZero() {
		q.maint.ScheduleNext(visibleUntil)
	}
	return e, nil
}

func (q *Queue[T]) decodeEntry(res []any) (*entry[T], error) {
	if len(res) != 4 {
		return nil, fmt.Errorf("foundatio/queue/redis: dequeue: unexpected reply length %d", len(res))
	}
	entryID, _ := res[0].(string)
	attempts, _ := res[1].(int64)
	raw, _ := res[2].(string)
	enqueuedMs, _ := strconv.ParseInt(fmt.Sprint(res[3]), 10, 64)

	e := &entry[T]{
		q:          q,
		id:         entryID,
		attempts:   int(attempts),
		enqueuedAt: time.UnixMilli(enqueuedMs),
	}
	if err := q.ser.Unmarshal([]byte(raw), &e.value); err != nil {
		// The entry is working now; hand it back so it is retried or
		// dead-lettered instead of sitting until its timeout.
		if aerr := q.abandon(context.Background(), entryID, int(attempts), "errors"); aerr != nil {
			q.logger.Error("hand back undecodable queue entry",
				slog.String("queue", q.name),
				slog.String("entry_id", entryID),
				slog.String("error", aerr.Error()),
			)
		}
		return nil, fmt.Errorf("foundatio/queue/redis: decode %s: %w", entryID, err)
	}
	return e, nil
}

// Stats implements queue.Queue.
func (q *Queue[T]) Stats(ctx context.Context) (queue.Stats, error) {
	pipe := q.client.Pipeline()
	queued := pipe.LLen(ctx, q.keys.queued())
	delayed := pipe.ZCard(ctx, q.keys.delayed())
	working := pipe.ZCard(ctx, q.keys.working())
	dead := pipe.LLen(ctx, q.keys.deadletter())
	counters := pipe.HGetAll(ctx, q.keys.stats())
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return queue.Stats{}, fmt.Errorf("foundatio/queue/redis: stats: %w", err)
	}

	c := counters.Val()
	return queue.Stats{
		Queued:     queued.Val() + delayed.Val(),
		Working:    working.Val(),
		Deadletter: dead.Val(),
		Enqueued:   counter(c, "enqueued"),
		Dequeued:   counter(c, "dequeued"),
		Completed:  counter(c, "completed"),
		Abandoned:  counter(c, "abandoned"),
		Errors:     counter(c, "errors"),
		Timeouts:   counter(c, "timeouts"),
	}, nil
}

// Close stops maintenance. The client is left open.
func (q *Queue[T]) Close() error {
	q.closed.Store(true)
	return q.maint.Close()
}

func (q *Queue[T]) complete(ctx context.Context, entryID string, attempts int) error {
	n, err := completeScript.Run(ctx, q.client,
		[]string{q.keys.working(), q.keys.item(entryID), q.keys.stats()},
		entryID, attempts,
	).Int64()
	if err != nil {
		return fmt.Errorf("foundatio/queue/redis: complete %s: %w", entryID, err)
	}
	if n == 0 {
		return fmt.Errorf("foundatio/queue/redis: complete %s: %w", entryID, foundatio.ErrEntryNotFound)
	}
	return nil
}

func (q *Queue[T]) abandon(ctx context.Context, entryID string, attempts int, counterName string) error {
	mode, ready := q.retryMode(attempts, time.Now())
	n, err := abandonScript.Run(ctx, q.client,
		[]string{
			q.keys.working(), q.keys.queued(), q.keys.delayed(),
			q.keys.deadletter(), q.keys.stats(), q.keys.item(entryID),
		},
		entryID, mode, ready.UnixMilli(), counterName, attempts,
	).Int64()
	if err != nil {
		return fmt.Errorf("foundatio/queue/redis: abandon %s: %w", entryID, err)
	}
	if n == 0 {
		return fmt.Errorf("foundatio/queue/redis: abandon %s: %w", entryID, foundatio.ErrEntryNotFound)
	}
	if mode == modeDelay {
		q.maint.ScheduleNext(ready)
	}
	if mode == modeDead {
		q.logger.Warn("queue entry dead-lettered",
			slog.String("queue", q.name),
			slog.String("entry_id", entryID),
			slog.Int("attempts", attempts),
		)
	}
	return nil
}

const (
	modeDead  = "dead"
	modeDelay = "delay"
	modeNow   = "now"
)

// retryMode decides where an abandoned entry with the given delivery count
// goes next.
func (q *Queue[T]) retryMode(attempts int, now time.Time) (string, time.Time) {
	if attempts > q.retries {
		return modeDead, now
	}
	if q.retryDelay > 0 {
		return modeDelay, now.Add(q.retryPolicy.Delay(attempts))
	}
	return modeNow, now
}

// maintain promotes due retries and abandons timed out entries.
func (q *Queue[T]) maintain(ctx context.Context) (time.Time, error) {
	now := time.Now()

	if err := promoteScript.Run(ctx, q.client,
		[]string{q.keys.delayed(), q.keys.queued()}, now.UnixMilli(),
	).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return now.Add(time.Second), fmt.Errorf("foundatio/queue/redis: promote: %w", err)
	}

	expired, err := q.client.ZRangeByScore(ctx, q.keys.working(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return now.Add(time.Second), fmt.Errorf("foundatio/queue/redis: scan working: %w", err)
	}
	for _, entryID := range expired {
		attempts, err := q.client.HGet(ctx, q.keys.item(entryID), "attempts").Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return now.Add(time.Second), fmt.Errorf("foundatio/queue/redis: read attempts: %w", err)
		}
		err = q.abandon(ctx, entryID, attempts, "timeouts")
		if err != nil && !errors.Is(err, foundatio.ErrEntryNotFound) {
			return now.Add(time.Second), err
		}
		q.logger.Debug("queue entry timed out",
			slog.String("queue", q.name),
			slog.String("entry_id", entryID),
		)
	}

	return q.nextDeadline(ctx)
}

func (q *Queue[T]) nextDeadline(ctx context.Context) (time.Time, error) {
	next := maintenance.Never
	for _, key := range []string{q.keys.delayed(), q.keys.working()} {
		zs, err := q.client.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err != nil {
			return time.Now().Add(time.Second), fmt.Errorf("foundatio/queue/redis: next deadline: %w", err)
		}
		if len(zs) == 0 {
			continue
		}
		t := time.UnixMilli(int64(zs[0].Score))
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next, nil
}

func counter(m map[string]string, key string) int64 {
	n, _ := strconv.ParseInt(m[key], 10, 64)
	return n
}
