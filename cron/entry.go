package cron

import (
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Entry is a scheduled work item.
type Entry struct {
	Name                string    `json:"name"`
	Schedule            string    `json:"schedule"`
	Type                string    `json:"type"`
	Payload             []byte    `json:"payload,omitempty"`
	SendProgressReports bool      `json:"send_progress_reports,omitempty"`
	ScopeAppID          string    `json:"scope_app_id,omitempty"`
	ScopeOrgID          string    `json:"scope_org_id,omitempty"`
	LastRunAt           time.Time `json:"last_run_at,omitzero"`
	NextRunAt           time.Time `json:"next_run_at"`

	schedule cronlib.Schedule
}

// LockName returns the lock guarding the occurrence at t.
func (e *Entry) LockName(t time.Time) string {
	return "cron:" + e.Name + ":" + formatUnix(t)
}
