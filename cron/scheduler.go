package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/vasont/Foundatio"
	"github.com/vasont/Foundatio/lock"
	"github.com/vasont/Foundatio/maintenance"
	"github.com/vasont/Foundatio/serializer"
	"github.com/vasont/Foundatio/workitem"
)

// EnqueueFunc enqueues an envelope and returns its work item ID. The
// engine provides the implementation.
type EnqueueFunc func(ctx context.Context, d workitem.Data) (string, error)

// Emitter emits cron lifecycle events.
// ext.Registry satisfies this interface via EmitCronFired.
type Emitter interface {
	EmitCronFired(ctx context.Context, entryName, workItemID string)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLockTTL sets how long an occurrence lock is held.
func WithLockTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.lockTTL = d }
}

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) SchedulerOption {
	return func(s *Scheduler) { s.emitter = e }
}

// WithSerializer sets the serializer Register encodes payloads with.
func WithSerializer(ser serializer.Serializer) SchedulerOption {
	return func(s *Scheduler) { s.ser = ser }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// hold is an occurrence lock kept until its TTL passes.
type hold struct {
	handle *lock.Handle
	until  time.Time
}

// Scheduler fires cron entries.
type Scheduler struct {
	enqueue EnqueueFunc
	locks   lock.Provider
	emitter Emitter
	ser     serializer.Serializer
	logger  *slog.Logger
	lockTTL time.Duration
	now     func() time.Time
	maint   *maintenance.Scheduler

	mu      sync.Mutex
	entries map[string]*Entry
	holds   []hold
	started bool
	stopped bool
}

// NewScheduler creates a Scheduler. Occurrence locks are taken from locks.
func NewScheduler(enqueue EnqueueFunc, locks lock.Provider, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		enqueue: enqueue,
		locks:   locks,
		ser:     serializer.Default,
		logger:  slog.Default(),
		lockTTL: time.Minute,
		now:     time.Now,
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.maint = maintenance.New(s.FireDue,
		maintenance.WithLogger(s.logger),
		maintenance.WithName("cron"),
		maintenance.WithClock(s.now),
	)
	return s
}

// Register adds a typed entry, encoding its payload.
func Register[T any](s *Scheduler, def Definition[T]) error {
	payload, err := s.ser.Marshal(def.Payload)
	if err != nil {
		return fmt.Errorf("foundatio/cron: encode payload for %q: %w", def.Name, err)
	}
	return s.Add(Entry{
		Name:                def.Name,
		Schedule:            def.Schedule,
		Type:                def.Type,
		Payload:             payload,
		SendProgressReports: def.SendProgressReports,
		ScopeAppID:          def.ScopeAppID,
		ScopeOrgID:          def.ScopeOrgID,
	})
}

// Add registers e and computes its first NextRunAt. Names are unique.
func (s *Scheduler) Add(e Entry) error {
	if e.Name == "" || e.Type == "" {
		return fmt.Errorf("foundatio/cron: entry needs a name and a type: %w", foundatio.ErrInvalidArgument)
	}
	sched, err := ParseSchedule(e.Schedule)
	if err != nil {
		return fmt.Errorf("foundatio/cron: entry %q: schedule %q: %v: %w", e.Name, e.Schedule, err, foundatio.ErrInvalidArgument)
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("foundatio/cron: add %q: %w", e.Name, foundatio.ErrSchedulerClosed)
	}
	if _, ok := s.entries[e.Name]; ok {
		s.mu.Unlock()
		return fmt.Errorf("foundatio/cron: add %q: %w", e.Name, foundatio.ErrDuplicateCron)
	}
	e.schedule = sched
	e.NextRunAt = sched.Next(s.now())
	s.entries[e.Name] = &e
	started := s.started
	next := e.NextRunAt
	s.mu.Unlock()

	if started {
		s.maint.ScheduleNext(next)
	}
	return nil
}

// Remove deletes the named entry. It reports whether the entry existed.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	delete(s.entries, name)
	return ok
}

// Entries returns a snapshot of all entries sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start arms the timer for the earliest entry.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("foundatio/cron: start: %w", foundatio.ErrSchedulerClosed)
	}
	s.started = true
	next := s.earliestLocked()
	n := len(s.entries)
	s.mu.Unlock()

	s.maint.ScheduleNext(next)
	s.logger.Info("cron scheduler started", slog.Int("entries", n))
	return nil
}

// Stop disarms the timer and releases every occurrence lock still held.
// A stopped scheduler cannot be restarted.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	err := s.maint.Close()

	s.mu.Lock()
	holds := s.holds
	s.holds = nil
	s.mu.Unlock()
	for _, h := range holds {
		s.release(ctx, h.handle)
	}

	s.logger.Info("cron scheduler stopped")
	return err
}

// FireDue releases expired occurrence locks, fires every entry whose
// NextRunAt has passed and returns the earliest upcoming NextRunAt or lock
// expiry. Start runs it on that schedule.
func (s *Scheduler) FireDue(ctx context.Context) (time.Time, error) {
	now := s.now()

	type occurrence struct {
		entry Entry
		at    time.Time
	}
	var due []occurrence
	var expired []hold

	s.mu.Lock()
	for _, e := range s.entries {
		if e.NextRunAt.After(now) {
			continue
		}
		due = append(due, occurrence{entry: *e, at: e.NextRunAt})
		e.LastRunAt = now
		e.NextRunAt = e.schedule.Next(now)
	}
	kept := s.holds[:0]
	for _, h := range s.holds {
		if h.until.After(now) {
			kept = append(kept, h)
		} else {
			expired = append(expired, h)
		}
	}
	clear(s.holds[len(kept):])
	s.holds = kept
	s.mu.Unlock()

	for _, h := range expired {
		s.release(ctx, h.handle)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].entry.Name < due[j].entry.Name })
	for _, o := range due {
		s.fire(ctx, &o.entry, o.at)
	}

	s.mu.Lock()
	next := s.earliestLocked()
	s.mu.Unlock()
	return next, nil
}

func (s *Scheduler) fire(ctx context.Context, e *Entry, at time.Time) {
	logger := s.logger.With(
		slog.String("cron_name", e.Name),
		slog.Time("occurrence", at),
	)

	name := e.LockName(at)
	h, err := s.locks.Acquire(ctx, name, lock.WithAcquireTimeout(0), lock.WithTTL(s.lockTTL))
	if err != nil {
		logger.Error("acquire cron lock error", slog.String("error", err.Error()))
		return
	}
	if h == nil {
		logger.Debug("cron occurrence fired elsewhere")
		return
	}

	workItemID, err := s.enqueue(ctx, workitem.Data{
		Type:                e.Type,
		Data:                e.Payload,
		SendProgressReports: e.SendProgressReports,
		ScopeAppID:          e.ScopeAppID,
		ScopeOrgID:          e.ScopeOrgID,
	})
	if err != nil {
		logger.Error("cron enqueue error",
			slog.String("type", e.Type),
			slog.String("error", err.Error()),
		)
		s.release(ctx, h)
		return
	}

	s.mu.Lock()
	s.holds = append(s.holds, hold{handle: h, until: at.Add(s.lockTTL)})
	s.mu.Unlock()

	if s.emitter != nil {
		s.emitter.EmitCronFired(ctx, e.Name, workItemID)
	}
	logger.Info("cron fired",
		slog.String("type", e.Type),
		slog.String("work_item_id", workItemID),
	)
}

func (s *Scheduler) release(ctx context.Context, h *lock.Handle) {
	if err := h.Release(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("release cron lock error",
			slog.String("lock", h.Name()),
			slog.String("error", err.Error()),
		)
	}
}

// earliestLocked returns the earliest NextRunAt or occurrence lock expiry.
// Callers hold mu.
func (s *Scheduler) earliestLocked() time.Time {
	next := maintenance.Never
	for _, e := range s.entries {
		if next.IsZero() || e.NextRunAt.Before(next) {
			next = e.NextRunAt
		}
	}
	for _, h := range s.holds {
		if next.IsZero() || h.until.Before(next) {
			next = h.until
		}
	}
	return next
}

func formatUnix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
