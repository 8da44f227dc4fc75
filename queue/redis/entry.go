package redis

import (
	"context"
	"time"

	"github.com/vasont/Foundatio/queue"
)

// entry is one delivery of a stored item. attempts fences it: once the item
// is redelivered the old entry no longer resolves it.
type entry[T any] struct {
	queue.Resolution
	q          *Queue[T]
	id         string
	value      T
	attempts   int
	enqueuedAt time.Time
}

func (e *entry[T]) ID() string            { return e.id }
func (e *entry[T]) Value() T              { return e.value }
func (e *entry[T]) Attempts() int         { return e.attempts }
func (e *entry[T]) EnqueuedAt() time.Time { return e.enqueuedAt }

func (e *entry[T]) Complete(ctx context.Context) error {
	if err := e.Resolve(queue.StateCompleted); err != nil {
		return err
	}
	return e.q.complete(ctx, e.id, e.attempts)
}

func (e *entry[T]) Abandon(ctx context.Context) error {
	if err := e.Resolve(queue.StateAbandoned); err != nil {
		return err
	}
	return e.q.abandon(ctx, e.id, e.attempts, "")
}
