package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vasont/Foundatio"
	"github.com/vasont/Foundatio/ext"
	"github.com/vasont/Foundatio/id"
	"github.com/vasont/Foundatio/jobs"
	"github.com/vasont/Foundatio/lock"
	"github.com/vasont/Foundatio/messaging"
	"github.com/vasont/Foundatio/middleware"
	"github.com/vasont/Foundatio/queue"
	"github.com/vasont/Foundatio/workitem"
)

// Result messages.
const (
	msgUnresolvedType = "could not resolve work item data type"
	msgDecodeFailed   = "failed to parse work item data"
	msgLockBusy       = "unable to acquire work item lock"
	msgLockFailed     = "failed to acquire work item lock"
	msgCompleteFailed = "failed to complete queue entry"
)

// Registry resolves envelope types and their handlers.
// *workitem.Registry satisfies it.
type Registry interface {
	workitem.TypeResolver
	workitem.HandlerLookup
}

// Job processes work item envelopes from one queue.
type Job struct {
	id         id.ID
	queue      queue.Queue[workitem.Data]
	bus        messaging.Publisher
	registry   Registry
	extensions *ext.Registry
	mws        []middleware.Middleware
	mw         middleware.Middleware
	logger     *slog.Logger
}

// Compile-time check.
var _ jobs.QueueJob[workitem.Data] = (*Job)(nil)

// Option configures a Job.
type Option func(*Job)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Job) { j.logger = l }
}

// WithMiddleware appends middleware around every handler call. Panic
// recovery is always installed outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(j *Job) { j.mws = append(j.mws, mws...) }
}

// WithExtensions notifies r of lifecycle events.
func WithExtensions(r *ext.Registry) Option {
	return func(j *Job) { j.extensions = r }
}

// NewJob creates a Job. bus may be nil, in which case status messages are
// dropped.
func NewJob(q queue.Queue[workitem.Data], bus messaging.Publisher, registry Registry, opts ...Option) *Job {
	j := &Job{
		id:       id.NewJobID(),
		queue:    q,
		bus:      bus,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.extensions == nil {
		j.extensions = ext.NewRegistry(j.logger)
	}
	j.mw = middleware.Chain(append([]middleware.Middleware{middleware.Recover(j.logger)}, j.mws...)...)
	return j
}

// ID returns the job instance ID.
func (j *Job) ID() string { return j.id.String() }

// Queue implements jobs.QueueJob.
func (j *Job) Queue() queue.Queue[workitem.Data] { return j.queue }

// Run dequeues at most one entry, waiting up to timeout, and processes it.
// An empty queue yields a success result.
func (j *Job) Run(ctx context.Context, timeout time.Duration) (jobs.Result, error) {
	entry, err := j.queue.Dequeue(ctx, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return jobs.Cancelled(), nil
		}
		return jobs.FromError(err, "failed to dequeue work item"), err
	}
	if entry == nil {
		return jobs.Success(), nil
	}
	return j.Process(ctx, entry)
}

// Process implements jobs.QueueJob. The returned error is non-nil only
// when a start or completion status could not be published.
func (j *Job) Process(ctx context.Context, entry queue.Entry[workitem.Data]) (jobs.Result, error) {
	d := entry.Value()

	pt, ok := j.registry.ResolveType(d.Type)
	if !ok {
		j.extensions.EmitWorkItemRejected(ctx, d, msgUnresolvedType)
		err := fmt.Errorf("foundatio/worker: type %q: %w", d.Type, foundatio.ErrTypeNotRegistered)
		return jobs.FromError(err, msgUnresolvedType), nil
	}

	payload, err := pt.Decode(j.queue.Serializer(), d.Data)
	if err != nil {
		j.extensions.EmitWorkItemRejected(ctx, d, msgDecodeFailed)
		return jobs.FromError(err, msgDecodeFailed), nil
	}

	h, ok := j.registry.GetHandler(pt)
	if !ok {
		msg := fmt.Sprintf("handler for type %s not registered", pt.Name())
		j.extensions.EmitWorkItemRejected(ctx, d, msg)
		err := fmt.Errorf("foundatio/worker: type %s: %w", pt.Name(), foundatio.ErrHandlerNotFound)
		return jobs.FromError(err, msg), nil
	}

	if d.SendProgressReports {
		if err := j.publish(ctx, d, 0, ""); err != nil {
			return jobs.FromError(err, "failed to publish start status"), err
		}
	}

	lh, err := h.GetWorkItemLock(ctx, payload)
	if err != nil {
		return jobs.FromError(err, msgLockFailed), nil
	}
	if lh == nil {
		j.extensions.EmitWorkItemSkipped(ctx, d, h.Name())
		return jobs.SuccessWithMessage(msgLockBusy), nil
	}
	defer j.release(ctx, lh)

	return j.handle(ctx, entry, pt, h, payload, lh)
}

func (j *Job) handle(
	ctx context.Context,
	entry queue.Entry[workitem.Data],
	pt *workitem.PayloadType,
	h workitem.Handler,
	payload any,
	lh *lock.Handle,
) (jobs.Result, error) {
	d := entry.Value()
	opts := h.Options()
	logger := j.logger.With(
		slog.String("type", pt.Name()),
		slog.String("entry_id", entry.ID()),
	)

	var wc *workitem.Context
	wc = workitem.NewContext(payload, d, workitem.Delivery{
		JobID:    j.id.String(),
		EntryID:  entry.ID(),
		Attempts: entry.Attempts(),
		Lock:     lh,
		OnProgress: func(ctx context.Context, progress int, message string) error {
			if opts.AutoRenewLockOnProgress {
				if err := lh.Renew(ctx, 0); err != nil {
					return fmt.Errorf("foundatio/worker: renew work item lock %q: %w", lh.Name(), err)
				}
			}
			j.extensions.EmitWorkItemProgress(ctx, wc, progress, message)
			if !d.SendProgressReports {
				return nil
			}
			return j.publish(ctx, d, progress, message)
		},
	})

	if opts.EnableLogging {
		logger.Info("processing work item queue entry")
	}
	j.extensions.EmitWorkItemStarted(ctx, wc)

	start := time.Now()
	err := j.mw(ctx, h, wc, func(ctx context.Context) error {
		return h.HandleItem(ctx, wc)
	})
	elapsed := time.Since(start)

	// Resolution must land even when the handler gave up on a cancelled ctx.
	rctx := context.WithoutCancel(ctx)

	if err != nil {
		if abErr := entry.Abandon(rctx); abErr != nil {
			logger.Error("failed to abandon queue entry", slog.String("error", abErr.Error()))
		}
		if opts.EnableLogging {
			logger.Error("error processing work item queue entry",
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		}
		j.extensions.EmitWorkItemFailed(ctx, wc, err)
		return jobs.FromError(err, fmt.Sprintf("error in handler %s", pt.Name())), nil
	}

	if err := entry.Complete(rctx); err != nil {
		logger.Error("failed to complete queue entry", slog.String("error", err.Error()))
		return jobs.FromError(err, msgCompleteFailed), nil
	}
	if opts.EnableLogging {
		logger.Info("completed work item queue entry", slog.Duration("elapsed", elapsed))
	}
	j.extensions.EmitWorkItemCompleted(ctx, wc, elapsed)

	if d.SendProgressReports {
		if err := j.publish(ctx, d, 100, ""); err != nil {
			return jobs.FromError(err, "failed to publish completion status"), err
		}
	}
	return jobs.Success(), nil
}

func (j *Job) publish(ctx context.Context, d workitem.Data, progress int, message string) error {
	if j.bus == nil {
		return nil
	}
	err := j.bus.Publish(ctx, messaging.Message{
		Type: workitem.StatusMessageType,
		Data: workitem.Status{
			WorkItemID: d.WorkItemID,
			Progress:   progress,
			Message:    message,
			Type:       d.Type,
		},
		CorrelationID: d.WorkItemID,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("foundatio/worker: publish status for %s: %w", d.WorkItemID, err)
	}
	return nil
}

func (j *Job) release(ctx context.Context, lh *lock.Handle) {
	if err := lh.Release(context.WithoutCancel(ctx)); err != nil {
		j.logger.Warn("failed to release work item lock",
			slog.String("lock", lh.Name()),
			slog.String("error", err.Error()),
		)
	}
}
