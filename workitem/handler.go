package workitem

import (
	"context"
	"fmt"
	"time"

	"github.com/vasont/Foundatio/lock"
)

// Handler processes one payload type.
type Handler interface {
	Name() string
	Options() HandlerOptions

	// GetWorkItemLock acquires the lock the item runs under. A nil handle
	// with a nil error means the lock is busy and the item is skipped.
	GetWorkItemLock(ctx context.Context, payload any) (*lock.Handle, error)

	HandleItem(ctx context.Context, wc *Context) error
}

// HandlerOptions configures processing of one handler's items.
type HandlerOptions struct {
	// AutoRenewLockOnProgress renews the work item lock on every progress
	// report.
	AutoRenewLockOnProgress bool

	// EnableLogging emits per-item processing logs.
	EnableLogging bool

	// Timeout bounds HandleItem when the timeout middleware is installed.
	// Zero means no bound.
	Timeout time.Duration
}

// Option configures HandlerOptions.
type Option func(*HandlerOptions)

// WithAutoRenewLock renews the work item lock on every progress report.
func WithAutoRenewLock() Option {
	return func(o *HandlerOptions) { o.AutoRenewLockOnProgress = true }
}

// WithLogging enables per-item processing logs.
func WithLogging() Option {
	return func(o *HandlerOptions) { o.EnableLogging = true }
}

// WithTimeout bounds each HandleItem call.
func WithTimeout(d time.Duration) Option {
	return func(o *HandlerOptions) { o.Timeout = d }
}

// Definition is a typed Handler built from a function.
type Definition[T any] struct {
	name    string
	handler func(ctx context.Context, wc *Context, payload T) error
	lockFn  func(ctx context.Context, payload T) (*lock.Handle, error)
	opts    HandlerOptions
}

// Compile-time check.
var _ Handler = (*Definition[struct{}])(nil)

// NewDefinition creates a typed handler. Without WithLock the item runs
// under an uncontended empty lock.
func NewDefinition[T any](name string, handler func(ctx context.Context, wc *Context, payload T) error, opts ...Option) *Definition[T] {
	d := &Definition[T]{name: name, handler: handler}
	for _, opt := range opts {
		opt(&d.opts)
	}
	return d
}

// WithLock locks each item on p under the name key returns.
func (d *Definition[T]) WithLock(p lock.Provider, key func(T) string, opts ...lock.AcquireOption) *Definition[T] {
	d.lockFn = func(ctx context.Context, payload T) (*lock.Handle, error) {
		return p.Acquire(ctx, key(payload), opts...)
	}
	return d
}

// WithLockFunc sets a custom lock acquisition.
func (d *Definition[T]) WithLockFunc(fn func(ctx context.Context, payload T) (*lock.Handle, error)) *Definition[T] {
	d.lockFn = fn
	return d
}

// Name implements Handler.
func (d *Definition[T]) Name() string { return d.name }

// Options implements Handler.
func (d *Definition[T]) Options() HandlerOptions { return d.opts }

// GetWorkItemLock implements Handler.
func (d *Definition[T]) GetWorkItemLock(ctx context.Context, payload any) (*lock.Handle, error) {
	if d.lockFn == nil {
		return lock.EmptyHandle(d.name), nil
	}
	p, err := d.cast(payload)
	if err != nil {
		return nil, err
	}
	return d.lockFn(ctx, p)
}

// HandleItem implements Handler.
func (d *Definition[T]) HandleItem(ctx context.Context, wc *Context) error {
	p, err := d.cast(wc.Payload())
	if err != nil {
		return err
	}
	return d.handler(ctx, wc, p)
}

func (d *Definition[T]) cast(payload any) (T, error) {
	p, ok := payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("foundatio/workitem: handler %q expects %T, got %T", d.name, zero, payload)
	}
	return p, nil
}
