// Package notify renders watch alerts and delivers them by email.
package notify

import (
	"context"

	"tori-vahti/internal/models"
)

// Notifier delivers an alert to its recipients and reports the message id
// it was sent under.
type Notifier interface {
	Send(ctx context.Context, alert models.Alert) (string, error)
}
