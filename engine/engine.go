package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/vasont/Foundatio"
	"github.com/vasont/Foundatio/cron"
	"github.com/vasont/Foundatio/ext"
	"github.com/vasont/Foundatio/id"
	"github.com/vasont/Foundatio/jobs"
	"github.com/vasont/Foundatio/lock"
	lockmem "github.com/vasont/Foundatio/lock/memory"
	"github.com/vasont/Foundatio/messaging"
	busmem "github.com/vasont/Foundatio/messaging/memory"
	mw "github.com/vasont/Foundatio/middleware"
	"github.com/vasont/Foundatio/observability"
	"github.com/vasont/Foundatio/queue"
	queuemem "github.com/vasont/Foundatio/queue/memory"
	"github.com/vasont/Foundatio/scope"
	"github.com/vasont/Foundatio/worker"
	"github.com/vasont/Foundatio/workitem"
)

const instrumentationName = "github.com/vasont/Foundatio"

// Engine owns the work item queue, the handler registry, the worker pool
// and the cron scheduler. Use Build to create one.
type Engine struct {
	cfg        foundatio.Config
	queue      queue.Queue[workitem.Data]
	bus        messaging.Publisher
	locks      lock.Provider
	limiter    *queue.Limiter
	registry   *workitem.Registry
	extensions *ext.Registry
	job        *worker.Job
	pool       *worker.Pool
	scheduler  *cron.Scheduler
	mws        []mw.Middleware
	exts       []ext.Extension
	logger     *slog.Logger

	// requestLogging logs every handler call regardless of the handler's
	// EnableLogging option.
	requestLogging bool

	// owned are defaults created by Build and closed on Stop.
	owned []io.Closer

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithQueue sets the work item queue. Defaults to an in-memory queue.
func WithQueue(q queue.Queue[workitem.Data]) Option {
	return func(eng *Engine) { eng.queue = q }
}

// WithBus sets the status message publisher. Defaults to an in-memory bus.
func WithBus(b messaging.Publisher) Option {
	return func(eng *Engine) { eng.bus = b }
}

// WithLockProvider sets the provider for cron occurrence locks, also
// returned by Locks for handler definitions. Defaults to a Locker over the
// in-memory backend.
func WithLockProvider(p lock.Provider) Option {
	return func(eng *Engine) { eng.locks = p }
}

// WithLimiter bounds the dequeue rate and in-flight count of the pool.
func WithLimiter(l *queue.Limiter) Option {
	return func(eng *Engine) { eng.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.exts = append(eng.exts, e) }
}

// WithMiddleware adds middleware after the default stack.
func WithMiddleware(m ...mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m...) }
}

// WithRequestLogging logs the start and end of every handler call at Info.
// Without it only handlers defined with EnableLogging are logged.
func WithRequestLogging() Option {
	return func(eng *Engine) { eng.requestLogging = true }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware. If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// Build creates an Engine from cfg.
func Build(cfg foundatio.Config, opts ...Option) (*Engine, error) {
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("foundatio/engine: empty queue name: %w", foundatio.ErrInvalidArgument)
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("foundatio/engine: concurrency must be positive, got %d: %w", cfg.Concurrency, foundatio.ErrInvalidArgument)
	}

	eng := &Engine{
		cfg:      cfg,
		registry: workitem.NewRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	logger := eng.logger
	eng.extensions = ext.NewRegistry(logger)
	eng.extensions.Register(observability.NewMetricsExtension())
	for _, e := range eng.exts {
		eng.extensions.Register(e)
	}

	if eng.queue == nil {
		q := queuemem.New[workitem.Data](
			queuemem.WithName(cfg.QueueName),
			queuemem.WithRetries(cfg.Retries),
			queuemem.WithRetryDelay(cfg.RetryDelay),
			queuemem.WithWorkItemTimeout(cfg.WorkItemTimeout),
			queuemem.WithLogger(logger),
		)
		eng.queue = q
		eng.owned = append(eng.owned, q)
	}
	if eng.bus == nil {
		eng.bus = busmem.New(busmem.WithLogger(logger))
	}
	if eng.locks == nil {
		backend := lockmem.New(lockmem.WithLogger(logger))
		eng.locks = lock.NewLocker(backend,
			lock.WithLogger(logger),
			lock.WithDefaultTTL(cfg.LockTTL),
			lock.WithDefaultAcquireTimeout(cfg.LockAcquireTimeout),
		)
		eng.owned = append(eng.owned, backend)
	}

	// Tracing and metrics use the custom providers when given.
	tracingMw := mw.Tracing()
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	}
	metricsMw := mw.Metrics()
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	}

	// Default stack: tracing → metrics → [logging] → scope → timeout. The
	// job installs recover outermost.
	allMws := make([]mw.Middleware, 0, 5+len(eng.mws))
	allMws = append(allMws, tracingMw, metricsMw)
	if eng.requestLogging {
		allMws = append(allMws, mw.Logging(logger))
	}
	allMws = append(allMws, mw.Scope(), mw.Timeout(logger))
	allMws = append(allMws, eng.mws...)

	eng.job = worker.NewJob(eng.queue, eng.bus, eng.registry,
		worker.WithLogger(logger),
		worker.WithExtensions(eng.extensions),
		worker.WithMiddleware(allMws...),
	)

	eng.pool = worker.NewPool(eng.job,
		worker.WithConcurrency(cfg.Concurrency),
		worker.WithPoolLogger(logger),
		worker.WithRunOptions(eng.runOptions()...),
	)

	eng.scheduler = cron.NewScheduler(eng.EnqueueData, eng.locks,
		cron.WithLogger(logger),
		cron.WithEmitter(eng.extensions),
		cron.WithSerializer(eng.queue.Serializer()),
		cron.WithLockTTL(cfg.LockTTL),
	)

	return eng, nil
}

func (eng *Engine) runOptions() []jobs.Option {
	opts := []jobs.Option{
		jobs.WithLogger(eng.logger),
		jobs.WithDequeueTimeout(eng.cfg.DequeueTimeout),
	}
	if eng.limiter != nil {
		opts = append(opts, jobs.WithLimiter(eng.limiter))
	}
	return opts
}

// Register registers a typed work item definition with the engine. The
// definition's name is the work item type.
func Register[T any](eng *Engine, def *workitem.Definition[T]) {
	workitem.Register(eng.registry, def)
	eng.logger.Debug("work item handler registered", slog.String("type", def.Name()))
}

// RegisterCron registers a typed cron definition with the engine.
func RegisterCron[T any](eng *Engine, def cron.Definition[T]) error {
	if err := cron.Register(eng.scheduler, def); err != nil {
		return err
	}
	eng.logger.Info("cron registered",
		slog.String("name", def.Name),
		slog.String("schedule", def.Schedule),
		slog.String("type", def.Type),
	)
	return nil
}

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*workitem.Data)

// WithProgressReports publishes status messages while the item runs.
func WithProgressReports() EnqueueOption {
	return func(d *workitem.Data) { d.SendProgressReports = true }
}

// WithWorkItemID sets the work item ID instead of generating one.
func WithWorkItemID(workItemID string) EnqueueOption {
	return func(d *workitem.Data) { d.WorkItemID = workItemID }
}

// Enqueue encodes payload with the queue's serializer and enqueues it as
// a work item of type typeName. It returns the work item ID.
func Enqueue[T any](ctx context.Context, eng *Engine, typeName string, payload T, opts ...EnqueueOption) (string, error) {
	data, err := eng.queue.Serializer().Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("foundatio/engine: encode payload for %q: %w", typeName, err)
	}

	d := workitem.Data{Type: typeName, Data: data}
	for _, opt := range opts {
		opt(&d)
	}
	return eng.EnqueueData(ctx, d)
}

// EnqueueData enqueues a pre-encoded envelope. A missing WorkItemID,
// CreatedAt or scope is filled in; scope comes from ctx.
func (eng *Engine) EnqueueData(ctx context.Context, d workitem.Data) (string, error) {
	if d.Type == "" {
		eng.extensions.EmitWorkItemRejected(ctx, d, "missing work item type")
		return "", fmt.Errorf("foundatio/engine: enqueue: missing type: %w", foundatio.ErrInvalidArgument)
	}

	if d.WorkItemID == "" {
		d.WorkItemID = id.NewWorkItemID().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.ScopeAppID == "" && d.ScopeOrgID == "" {
		d.ScopeAppID, d.ScopeOrgID = scope.Capture(ctx)
	}

	entryID, err := eng.queue.Enqueue(ctx, d)
	if err != nil {
		eng.extensions.EmitWorkItemRejected(ctx, d, err.Error())
		return "", fmt.Errorf("foundatio/engine: enqueue %q: %w", d.Type, err)
	}

	eng.logger.Debug("work item enqueued",
		slog.String("type", d.Type),
		slog.String("work_item_id", d.WorkItemID),
		slog.String("entry_id", entryID),
	)
	eng.extensions.EmitWorkItemEnqueued(ctx, d)
	return d.WorkItemID, nil
}

// RunUntilEmpty processes work items on the calling goroutine until the
// queue has nothing queued or in flight.
func (eng *Engine) RunUntilEmpty(ctx context.Context) error {
	opts := []jobs.Option{jobs.WithLogger(eng.logger)}
	if eng.limiter != nil {
		opts = append(opts, jobs.WithLimiter(eng.limiter))
	}
	return jobs.RunUntilEmpty(ctx, eng.job, opts...)
}

// Start launches the cron scheduler and the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("foundatio/engine: start cron scheduler: %w", err)
	}
	if err := eng.pool.Start(ctx); err != nil {
		return fmt.Errorf("foundatio/engine: start worker pool: %w", err)
	}
	eng.logger.Info("engine started",
		slog.String("queue", eng.queue.Name()),
		slog.Int("concurrency", eng.cfg.Concurrency),
	)
	return nil
}

// Stop gracefully shuts down the engine. In-flight work items get up to
// Config.ShutdownTimeout, or until ctx ends, to finish.
func (eng *Engine) Stop(ctx context.Context) error {
	stopCtx := ctx
	if eng.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if err := eng.scheduler.Stop(stopCtx); err != nil {
		eng.logger.Error("cron scheduler stop error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := eng.pool.Stop(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("foundatio/engine: stop worker pool: %w", err))
	}

	eng.extensions.EmitShutdown(context.WithoutCancel(ctx))

	for _, c := range eng.owned {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	eng.owned = nil

	eng.logger.Info("engine stopped")
	return errors.Join(errs...)
}

// Config returns the engine configuration.
func (eng *Engine) Config() foundatio.Config { return eng.cfg }

// Queue returns the work item queue.
func (eng *Engine) Queue() queue.Queue[workitem.Data] { return eng.queue }

// Bus returns the status message publisher.
func (eng *Engine) Bus() messaging.Publisher { return eng.bus }

// Locks returns the lock provider.
func (eng *Engine) Locks() lock.Provider { return eng.locks }

// Registry returns the work item registry.
func (eng *Engine) Registry() *workitem.Registry { return eng.registry }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Job returns the work item job the pool runs.
func (eng *Engine) Job() *worker.Job { return eng.job }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Scheduler returns the cron scheduler.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }
