package middleware

import (
	"context"

	"github.com/vasont/Foundatio/workitem"
)

// Handler is the terminal function that runs the work item handler.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// handler descriptor and the work item context for the call in flight.
type Middleware func(ctx context.Context, h workitem.Handler, wc *workitem.Context, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, scope) executes as:
//
//	logging → recover → scope → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, h workitem.Handler, wc *workitem.Context, next Handler) error {
		// Build the chain from the end backwards.
		call := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := call
			call = func(ctx context.Context) error {
				return mw(ctx, h, wc, prev)
			}
		}
		return call(ctx)
	}
}
