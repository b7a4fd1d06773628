// Package idempotency caches committed transaction results in Redis so
// replays of an idempotency key can be served without touching the durable
// store. The store remains the source of truth; every cache failure
// degrades to a database read.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Karunakar20/dino-ventures/internal/ledger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "ledger:result"

// Cache implements ledger.ResultCache on top of Redis.
type Cache struct {
	redis redis.Cmdable
	ttl   time.Duration
}

func NewCache(redis redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{redis: redis, ttl: ttl}
}

// Get returns the cached committed result, or (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, key string) (*ledger.TransactionResult, error) {
	if c.redis == nil {
		return nil, nil
	}
	val, err := c.redis.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		zap.L().Warn("redis result lookup failed", zap.Error(err))
		return nil, nil
	}

	var res ledger.TransactionResult
	if err := json.Unmarshal([]byte(val), &res); err != nil {
		zap.L().Warn("corrupt cached result", zap.Error(err), zap.String("key", key))
		return nil, nil
	}
	return &res, nil
}

// Set stores a committed result. Failures are logged and swallowed.
func (c *Cache) Set(ctx context.Context, key string, res *ledger.TransactionResult) {
	if c.redis == nil || res == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		zap.L().Warn("marshal result cache entry", zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, redisKey(key), payload, c.ttl).Err(); err != nil {
		zap.L().Warn("redis result cache set failed", zap.Error(err))
	}
}

func redisKey(key string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, key)
}
