package store

import (
	"context"

	"tori-vahti/internal/models"
)

// WatchStore persists watch definitions.
type WatchStore interface {
	SaveWatch(ctx context.Context, w models.Watch) error
	GetWatch(ctx context.Context, name string) (models.Watch, bool, error)
	ListWatches(ctx context.Context) ([]models.Watch, error)
}
