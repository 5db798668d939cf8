package store

import "context"

// SeenStore persists the set of listing ids already alerted, per watch.
// A watch that has never run owns an empty set.
type SeenStore interface {
	Seen(ctx context.Context, watchName string, ids []uint64) (map[uint64]bool, error)
	Merge(ctx context.Context, watchName string, ids []uint64) error
}
