package workitem

import (
	"context"

	"github.com/vasont/Foundatio/lock"
)

// ProgressFunc publishes a progress report for the current item.
type ProgressFunc func(ctx context.Context, progress int, message string) error

// Delivery describes how a work item reached its handler.
type Delivery struct {
	// JobID identifies the processing job instance.
	JobID string

	EntryID  string
	Attempts int

	// Lock is the work item lock held for the duration of the call.
	Lock *lock.Handle

	// OnProgress backs ReportProgress. Nil makes reports no-ops.
	OnProgress ProgressFunc
}

// Context is handed to a handler for one work item.
type Context struct {
	payload  any
	data     Data
	delivery Delivery
}

// NewContext builds a Context. The processor calls this; tests may too.
func NewContext(payload any, data Data, delivery Delivery) *Context {
	return &Context{payload: payload, data: data, delivery: delivery}
}

// Payload returns the decoded payload.
func (c *Context) Payload() any { return c.payload }

// Data returns the envelope.
func (c *Context) Data() Data { return c.data }

// WorkItemID returns the work item ID.
func (c *Context) WorkItemID() string { return c.data.WorkItemID }

// JobID returns the ID of the job processing the item.
func (c *Context) JobID() string { return c.delivery.JobID }

// EntryID returns the queue entry ID.
func (c *Context) EntryID() string { return c.delivery.EntryID }

// Attempts returns the delivery count of the queue entry.
func (c *Context) Attempts() int { return c.delivery.Attempts }

// Lock returns the held work item lock.
func (c *Context) Lock() *lock.Handle { return c.delivery.Lock }

// ReportProgress records progress in [0, 100]. Depending on handler and
// item settings it renews the lock and publishes a Status message. Errors
// from either are returned.
func (c *Context) ReportProgress(ctx context.Context, progress int, message string) error {
	if c.delivery.OnProgress == nil {
		return nil
	}
	return c.delivery.OnProgress(ctx, clamp(progress), message)
}

func clamp(p int) int {
	return min(max(p, 0), 100)
}
