package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lms-auth/internal/client"
)

const scanBatchSize = 1000

// Redis adapts the shared Redis client to the Store contract. It owns no
// business logic; it only maps go-redis errors into the store taxonomy so
// "key not found" and "service unreachable" stay distinct.
type Redis struct {
	client *client.RedisClient
}

func NewRedis(c *client.RedisClient) *Redis {
	return &Redis{client: c}
}

func (r *Redis) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl); err != nil {
		return unavailable("put", key, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", unavailable("get", key, err)
	}
	return val, nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...); err != nil {
		return unavailable("delete", keys[0], err)
	}
	return nil
}

func (r *Redis) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := r.client.IncrWithExpire(ctx, key, ttl)
	if err != nil {
		return 0, unavailable("incr", key, err)
	}
	return count, nil
}

func (r *Redis) Scan(ctx context.Context, pattern string) ([]string, error) {
	keys, err := r.client.Scan(ctx, pattern, scanBatchSize)
	if err != nil {
		return nil, unavailable("scan", pattern, err)
	}
	return keys, nil
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, op, key, err)
}
