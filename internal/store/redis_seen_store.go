package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSeenStore keeps per-watch seen ids in a Redis set. A missing key
// reads as an empty set, so first runs and expired sets never fail the
// query path.
type RedisSeenStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSeenStore initializes a Redis-backed SeenStore. ttl > 0 bounds
// retention of each watch's set; the clock restarts on every merge.
func NewRedisSeenStore(addr, prefix string, ttl time.Duration) *RedisSeenStore {
	return &RedisSeenStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Close closes the Redis client.
func (s *RedisSeenStore) Close() error {
	return s.client.Close()
}

// Seen reports which of the given ids were already alerted for the watch.
func (s *RedisSeenStore) Seen(ctx context.Context, watchName string, ids []uint64) (map[uint64]bool, error) {
	seen := make(map[uint64]bool, len(ids))
	if len(ids) == 0 {
		return seen, nil
	}

	flags, err := s.client.SMIsMember(ctx, s.prefix+watchName, encodeIDs(ids)...).Result()
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		if i < len(flags) {
			seen[id] = flags[i]
		}
	}
	return seen, nil
}

// Merge adds the given ids to the watch's seen set. Ids already present
// stay put, so merging the same run twice changes nothing.
func (s *RedisSeenStore) Merge(ctx context.Context, watchName string, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	key := s.prefix + watchName
	if err := s.client.SAdd(ctx, key, encodeIDs(ids)...).Err(); err != nil {
		return err
	}
	if s.ttl > 0 {
		return s.client.Expire(ctx, key, s.ttl).Err()
	}
	return nil
}

// Listing ids cross the Redis boundary as decimal strings.
func encodeIDs(ids []uint64) []any {
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = strconv.FormatUint(id, 10)
	}
	return members
}
