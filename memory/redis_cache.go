package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisCacheKeyPrefix = "tripmesh:cache:"

// RedisResultCache shares fingerprinted results across processes.
type RedisResultCache struct {
	client *redis.Client
}

var _ ResultCache = (*RedisResultCache)(nil)

// NewRedisResultCache connects to Redis using a redis:// URL and
// verifies the connection.
func NewRedisResultCache(ctx context.Context, redisURL string) (*RedisResultCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisResultCache{client: client}, nil
}

// Save stores the payload as JSON under the fingerprint key with the
// given TTL.
func (c *RedisResultCache) Save(ctx context.Context, fingerprint string, payload map[string]interface{}, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cached result: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultCacheMaxAge
	}
	return c.client.Set(ctx, redisCacheKeyPrefix+fingerprint, data, ttl).Err()
}

// Load fetches the payload for the fingerprint. A missing key is not
// an error.
func (c *RedisResultCache) Load(ctx context.Context, fingerprint string) (map[string]interface{}, bool, error) {
	data, err := c.client.Get(ctx, redisCacheKeyPrefix+fingerprint).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached result: %w", err)
	}
	return payload, true, nil
}

// Close releases the underlying connection pool.
func (c *RedisResultCache) Close() error {
	return c.client.Close()
}
