package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/vasont/Foundatio/workitem"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, h workitem.Handler, wc *workitem.Context, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("work item handler panicked",
					slog.String("handler", h.Name()),
					slog.String("work_item_id", wc.WorkItemID()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in handler %s: %v", h.Name(), r)
			}
		}()
		return next(ctx)
	}
}
