package models

import "time"

// WatchJob is a unit of work telling a watcher to run one watch now.
type WatchJob struct {
	RunID      string    `json:"run_id"`
	Watch      Watch     `json:"watch"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
