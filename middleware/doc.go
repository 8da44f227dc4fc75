// Package middleware provides composable middleware around work item
// handler calls.
//
// A [Middleware] wraps the call to a handler's HandleItem. Middleware are
// composed with [Chain] and applied right-to-left: the first middleware in
// the slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs handler name, work item, duration and outcome
//   - [Recover] converts panics into errors
//   - [Timeout] bounds the call by the handler's configured timeout
//   - [Tracing] wraps the call in an OpenTelemetry span
//   - [Metrics] records per-handler duration and outcome counters
//   - [Scope] restores the enqueuing app/org scope into the context
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, h workitem.Handler, wc *workitem.Context, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
