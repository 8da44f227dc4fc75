// Package audithook is an extension that bridges work item lifecycle
// events to an audit trail backend.
//
// Every enqueue, rejection, skip, start, completion, failure and cron
// firing becomes a structured [AuditEvent] delivered through the
// [Recorder] interface. Rejections and failures are recorded with warning
// severity; everything else is info.
//
// # Usage
//
//	rec := audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return auditLog.Write(ctx, evt)
//	})
//	eng, err := engine.Build(cfg, engine.WithExtension(audithook.New(rec)))
//
// # Selective filtering
//
//	audithook.New(rec,
//	    audithook.WithActions(
//	        audithook.ActionWorkItemFailed,
//	        audithook.ActionWorkItemRejected,
//	    ),
//	)
package audithook
