package queue

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vasont/Foundatio"
	"github.com/vasont/Foundatio/serializer"
)

// Queue is a typed work queue.
type Queue[T any] interface {
	// Name identifies the queue in logs and stats.
	Name() string

	// Enqueue adds v and returns the new entry ID.
	Enqueue(ctx context.Context, v T) (string, error)

	// Dequeue waits up to timeout for an entry. It returns (nil, nil) when
	// nothing arrived in time, and ctx.Err() when ctx ends first.
	Dequeue(ctx context.Context, timeout time.Duration) (Entry[T], error)

	// Stats returns current counters.
	Stats(ctx context.Context) (Stats, error)

	// Serializer is the format payloads on this queue are encoded with.
	Serializer() serializer.Serializer
}

// Entry is one dequeued item.
type Entry[T any] interface {
	ID() string
	Value() T

	// Attempts counts deliveries including this one.
	Attempts() int
	EnqueuedAt() time.Time

	Complete(ctx context.Context) error
	Abandon(ctx context.Context) error
	IsCompleted() bool
	IsAbandoned() bool
}

// Stats reports queue depth and lifetime counters.
type Stats struct {
	Queued     int64 `json:"queued"`
	Working    int64 `json:"working"`
	Deadletter int64 `json:"deadletter"`
	Enqueued   int64 `json:"enqueued"`
	Dequeued   int64 `json:"dequeued"`
	Completed  int64 `json:"completed"`
	Abandoned  int64 `json:"abandoned"`
	Errors     int64 `json:"errors"`
	Timeouts   int64 `json:"timeouts"`
}

// State is the resolution state of an Entry.
type State int32

const (
	StateInFlight State = iota
	StateCompleted
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateInFlight:
		return "in_flight"
	case StateCompleted:
		return "completed"
	case StateAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Resolution tracks the single transition out of StateInFlight. The zero
// value is in flight. Queue implementations embed it in their entries.
type Resolution struct {
	state atomic.Int32
}

// Resolve moves to s. It returns foundatio.ErrEntryResolved if the entry
// already left StateInFlight.
func (r *Resolution) Resolve(s State) error {
	if !r.state.CompareAndSwap(int32(StateInFlight), int32(s)) {
		return foundatio.ErrEntryResolved
	}
	return nil
}

// State returns the current state.
func (r *Resolution) State() State { return State(r.state.Load()) }

// IsCompleted reports whether the entry was completed.
func (r *Resolution) IsCompleted() bool { return r.State() == StateCompleted }

// IsAbandoned reports whether the entry was abandoned.
func (r *Resolution) IsAbandoned() bool { return r.State() == StateAbandoned }
