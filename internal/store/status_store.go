package store

import (
	"context"

	"tori-vahti/internal/models"
)

// StatusStore persists the latest run status per watch.
type StatusStore interface {
	SetStatus(ctx context.Context, status models.WatchStatus) error
	GetStatus(ctx context.Context, watchName string) (models.WatchStatus, bool, error)
}
