package proxy

import (
	"context"
	"errors"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisClient is the subset of the redis client used by RedisCache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redisv9.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redisv9.StatusCmd
}

// RedisCache stores upstream payloads in redis with a fixed TTL.
// Cache errors are logged and treated as misses.
type RedisCache struct {
	client RedisClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient connects to addr.
func NewRedisClient(addr, password string, db int) *redisv9.Client {
	return redisv9.NewClient(&redisv9.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisCache(client RedisClient, ttl time.Duration, logger *zap.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redisv9.Nil) {
			c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, payload []byte) {
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
