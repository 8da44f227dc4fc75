package memory

import (
	"context"
	"time"

	"github.com/vasont/Foundatio/queue"
)

// entry is one delivery of an item. attempt fences it: once the item is
// redelivered the old entry no longer resolves it.
type entry[T any] struct {
	queue.Resolution
	q       *Queue[T]
	item    *item[T]
	attempt int
}

func (e *entry[T]) ID() string            { return e.item.id }
func (e *entry[T]) Value() T              { return e.item.value }
func (e *entry[T]) Attempts() int         { return e.attempt }
func (e *entry[T]) EnqueuedAt() time.Time { return e.item.enqueuedAt }

func (e *entry[T]) Complete(context.Context) error {
	if err := e.Resolve(queue.StateCompleted); err != nil {
		return err
	}
	return e.q.complete(e.item.id, e.attempt)
}

func (e *entry[T]) Abandon(context.Context) error {
	if err := e.Resolve(queue.StateAbandoned); err != nil {
		return err
	}
	return e.q.abandon(e.item.id, e.attempt)
}
