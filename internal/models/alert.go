package models

import (
	"fmt"
	"time"
)

// Alert is the payload written to the alerts topic for one watch run.
type Alert struct {
	RunID      string    `json:"run_id"`
	WatchName  string    `json:"watch_name"`
	AreaCode   string    `json:"area_code"`
	Listings   []Listing `json:"listings"`
	Recipients []string  `json:"recipients"`
	CreatedAt  time.Time `json:"created_at"`
}

// Subject renders the notification subject line for the alert.
func (a Alert) Subject() string {
	return fmt.Sprintf("(%d) Hakuvahti '%s'", len(a.Listings), a.WatchName)
}
