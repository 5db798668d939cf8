package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"tori-vahti/internal/models"
)

// RedisWatchStore stores watch definitions in Redis. Definitions live as
// JSON under prefix+"def:"+name; prefix+"names" indexes them for listing.
type RedisWatchStore struct {
	client *redis.Client
	prefix string
}

// NewRedisWatchStore initializes a Redis-backed WatchStore.
func NewRedisWatchStore(addr, prefix string) *RedisWatchStore {
	return &RedisWatchStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

// Close closes the Redis client.
func (s *RedisWatchStore) Close() error {
	return s.client.Close()
}

// SaveWatch upserts a watch definition and indexes its name.
func (s *RedisWatchStore) SaveWatch(ctx context.Context, w models.Watch) error {
	payload, err := json.Marshal(w)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.defKey(w.Name), payload, 0).Err(); err != nil {
		return err
	}
	return s.client.SAdd(ctx, s.namesKey(), w.Name).Err()
}

// GetWatch reads a watch definition by name.
func (s *RedisWatchStore) GetWatch(ctx context.Context, name string) (models.Watch, bool, error) {
	val, err := s.client.Get(ctx, s.defKey(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Watch{}, false, nil
		}
		return models.Watch{}, false, err
	}

	var w models.Watch
	if err := json.Unmarshal([]byte(val), &w); err != nil {
		return models.Watch{}, false, err
	}
	return w, true, nil
}

// ListWatches returns every stored watch definition. Names whose definition
// is gone are skipped.
func (s *RedisWatchStore) ListWatches(ctx context.Context) ([]models.Watch, error) {
	names, err := s.client.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, err
	}

	var watches []models.Watch
	for _, name := range names {
		w, ok, err := s.GetWatch(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			watches = append(watches, w)
		}
	}
	return watches, nil
}

func (s *RedisWatchStore) defKey(name string) string {
	return s.prefix + "def:" + name
}

func (s *RedisWatchStore) namesKey() string {
	return s.prefix + "names"
}
