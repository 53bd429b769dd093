package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "comandero:reports"
	generationKey = keyPrefix + ":generation"
)

// RedisReportCache namespaces entries under a generation counter; bumping
// the counter orphans old entries, which then expire by TTL.
type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisReportCache) entry(ctx context.Context, key string) (Entry, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return "", err
	}
	return Entry(fmt.Sprintf("%s:%d:%s", keyPrefix, gen, key)), nil
}

// Get resolves key against the current generation once. The returned Entry
// stays bound to that generation, so a Set after a concurrent Invalidate
// writes into an orphaned slot.
func (c *RedisReportCache) Get(ctx context.Context, key string, dest any) (Entry, bool, error) {
	entry, err := c.entry(ctx, key)
	if err != nil {
		return "", false, err
	}
	val, err := c.client.Get(ctx, string(entry)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return entry, false, err
	}
	return entry, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, entry Entry, value any, ttl time.Duration) error {
	if value == nil || entry == "" {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, string(entry), payload, ttl).Err()
}

func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, generationKey).Err()
}
