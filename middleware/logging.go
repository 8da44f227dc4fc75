package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/vasont/Foundatio/workitem"
)

// Logging returns middleware that logs every handler call, independent of
// the handler's EnableLogging option.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, h workitem.Handler, wc *workitem.Context, next Handler) error {
		logger.Info("work item started",
			slog.String("handler", h.Name()),
			slog.String("work_item_id", wc.WorkItemID()),
			slog.String("entry_id", wc.EntryID()),
			slog.Int("attempts", wc.Attempts()),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("work item failed",
				slog.String("handler", h.Name()),
				slog.String("work_item_id", wc.WorkItemID()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("work item completed",
				slog.String("handler", h.Name()),
				slog.String("work_item_id", wc.WorkItemID()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
