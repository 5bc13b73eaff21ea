package tenant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const tenantKeyPrefix = "tenantctx:"

// RedisCache shares resolved tenant contexts across instances. The cache is
// best-effort: Redis failures degrade to a resolver lookup, they never fail
// the request.
type RedisCache struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisCache creates a Redis-backed tenant cache.
func NewRedisCache(client *redis.Client, log *zap.Logger) *RedisCache {
	return &RedisCache{client: client, log: log}
}

// Get returns a cached context if present.
func (c *RedisCache) Get(ctx context.Context, host string) (*Context, bool) {
	raw, err := c.client.Get(ctx, tenantKeyPrefix+host).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("tenant cache read failed", zap.String("host", host), zap.Error(err))
		}
		return nil, false
	}

	var tc Context
	if err := json.Unmarshal(raw, &tc); err != nil {
		c.log.Warn("tenant cache entry corrupt", zap.String("host", host), zap.Error(err))
		return nil, false
	}
	return &tc, true
}

// Set stores a context with the given TTL.
func (c *RedisCache) Set(ctx context.Context, host string, value *Context, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("tenant cache encode failed", zap.String("host", host), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, tenantKeyPrefix+host, raw, ttl).Err(); err != nil {
		c.log.Warn("tenant cache write failed", zap.String("host", host), zap.Error(err))
	}
}
