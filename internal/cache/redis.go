package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const redisScanBatch = 200

// RedisCache stores entries in Redis with native key expiry.
type RedisCache struct {
	client *redis.Client
	now    func() time.Time
}

var _ Cache = (*RedisCache)(nil)

// NewRedis connects to Redis and verifies the connection with a PING.
func NewRedis(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "redis: ping %s", addr)
	}

	return &RedisCache{client: client, now: time.Now}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		zap.L().Warn("redis: get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	e, err := decodeEntry(data)
	if err != nil {
		zap.L().Warn("redis: corrupt entry treated as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return e.Payload, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	data, err := encodeEntry(value, c.now())
	if err != nil {
		zap.L().Warn("redis: encode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		zap.L().Warn("redis: set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *RedisCache) Delete(ctx context.Context, key string) bool {
	n, err := c.client.Del(ctx, key).Result()
	if err != nil {
		zap.L().Warn("redis: delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return n > 0
}

// DeleteByPrefix walks matching keys with SCAN so large keyspaces are never
// blocked by KEYS.
func (c *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) int {
	iter := c.client.Scan(ctx, 0, escapeGlob(prefix)+"*", redisScanBatch).Iterator()

	var (
		deleted int
		batch   []string
	)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		n, err := c.client.Del(ctx, batch...).Result()
		if err != nil {
			zap.L().Warn("redis: batch delete failed", zap.String("prefix", prefix), zap.Error(err))
		}
		deleted += int(n)
		batch = batch[:0]
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= redisScanBatch {
			flush()
		}
	}
	flush()

	if err := iter.Err(); err != nil {
		zap.L().Warn("redis: scan failed", zap.String("prefix", prefix), zap.Error(err))
	}
	return deleted
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// escapeGlob escapes Redis MATCH metacharacters so prefix is matched literally.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
