package models

import "time"

// RunFailure captures a failed watch run for the DLQ.
type RunFailure struct {
	RunID     string    `json:"run_id"`
	WatchName string    `json:"watch_name"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
}
