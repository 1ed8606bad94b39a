package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Store.Get when the key does not exist.
var ErrMiss = errors.New("cache: key not found")

// Store is the string key-value contract the billing core builds on.
// Values never expire: entries are replaced, not aged out.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// SetIfAbsent writes value only when key does not exist yet and reports
	// whether the write happened.
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)
}

// RedisStore implements Store on top of a go-redis client.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// Set replaces the whole value in a single SET, so readers see either the
// previous or the new value, never a mix.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	return s.client.SetNX(ctx, key, value, 0).Result()
}

// Client exposes the underlying client for components that need list or
// scan commands (job queue, reconciliation).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}
