package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "lms_ai:response:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisResponseCache shares inference outputs across instances. Cache traffic
// is best-effort: a Redis error behaves like a miss.
type RedisResponseCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisResponseCache(ctx context.Context, config RedisConfig) (*RedisResponseCache, error) {
	if config.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if config.TTL <= 0 {
		config.TTL = 15 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisResponseCache{client: client, ttl: config.TTL}, nil
}

func (c *RedisResponseCache) Close() error {
	return c.client.Close()
}

func (c *RedisResponseCache) Get(ctx context.Context, signature string) (Entry, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+signature).Bytes()
	if err != nil {
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false
	}
	if time.Now().UTC().After(entry.ExpiresAt) {
		return Entry{}, false
	}
	return entry, true
}

func (c *RedisResponseCache) Set(ctx context.Context, signature string, entry Entry) {
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.ExpiresAt = now.Add(c.ttl)

	encoded, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, redisKeyPrefix+signature, encoded, c.ttl).Err()
}
