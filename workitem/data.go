// Package workitem defines the work item envelope, its status message, and
// the handler registry the processor resolves envelopes through.
//
// A work item is a typed payload wrapped in a Data envelope whose Type
// field names a registered definition:
//
//	def := workitem.NewDefinition("resize-image",
//	    func(ctx context.Context, wc *workitem.Context, p ResizeImage) error {
//	        ...
//	        return wc.ReportProgress(ctx, 50, "resized")
//	    },
//	    workitem.WithAutoRenewLock(),
//	).WithLock(locker, func(p ResizeImage) string { return "image:" + p.ID })
//	workitem.Register(registry, def)
package workitem

import "time"

// StatusMessageType is the bus message type of Status.
const StatusMessageType = "workitem.status"

// Data is the envelope stored on the queue.
type Data struct {
	// Type names the registered payload type.
	Type string `json:"type"`

	// Data is the payload encoded with the queue's serializer.
	Data []byte `json:"data"`

	WorkItemID string `json:"work_item_id"`

	// SendProgressReports enables Status messages for this item.
	SendProgressReports bool `json:"send_progress_reports,omitempty"`

	// Scope fields restore the enqueuing tenant around the handler.
	ScopeAppID string `json:"scope_app_id,omitempty"`
	ScopeOrgID string `json:"scope_org_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Status reports work item progress on the message bus.
type Status struct {
	WorkItemID string `json:"work_item_id"`
	Progress   int    `json:"progress"`
	Message    string `json:"message,omitempty"`
	Type       string `json:"type"`
}
