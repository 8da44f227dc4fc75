package middleware

import (
	"context"

	"github.com/vasont/Foundatio/scope"
	"github.com/vasont/Foundatio/workitem"
)

// Scope returns middleware that restores the app and org scope captured at
// enqueue time, so handlers see the same forge.Scope as the producer.
func Scope() Middleware {
	return func(ctx context.Context, _ workitem.Handler, wc *workitem.Context, next Handler) error {
		d := wc.Data()
		return next(scope.Restore(ctx, d.ScopeAppID, d.ScopeOrgID))
	}
}
