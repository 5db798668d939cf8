package models

import "time"

// AlertFailure captures an alert that could not be delivered.
type AlertFailure struct {
	Alert    Alert     `json:"alert"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}
