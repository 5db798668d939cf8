package models

import "time"

// WatchStatus tracks the state of a watch's most recent run.
// Status moves through queued, running, skipped, ok and failed.
type WatchStatus struct {
	WatchName   string    `json:"watch_name"`
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	NewListings int       `json:"new_listings"`
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
