package middleware

import (
	"context"
	"log/slog"

	"github.com/vasont/Foundatio/workitem"
)

// Timeout returns middleware that enforces the handler's Timeout option.
// When the deadline passes the context is cancelled and the handler should
// return context.DeadlineExceeded.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, h workitem.Handler, wc *workitem.Context, next Handler) error {
		if d := h.Options().Timeout; d > 0 {
			logger.Debug("work item timeout set",
				slog.String("work_item_id", wc.WorkItemID()),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
