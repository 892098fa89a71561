package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"usiverify/internal/evidence/usi/models"
	"usiverify/pkg/platform/sentinel"
)

const outcomeKeyPrefix = "usi:outcome:"

// RedisCache shares outcomes across instances. Redis enforces the TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (models.Outcome, error) {
	data, err := c.client.Get(ctx, outcomeKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Outcome{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Outcome{}, fmt.Errorf("%w: redis get: %w", sentinel.ErrUnavailable, err)
	}
	return decode(data)
}

func (c *RedisCache) Set(ctx context.Context, key string, outcome models.Outcome) error {
	if c.ttl <= 0 {
		return nil
	}
	data, err := encode(outcome)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, outcomeKeyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}
