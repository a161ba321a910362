// Package cache provides the TTL key/value cache shared by discovery and
// review collection. A missing or broken backend only costs performance:
// Open falls back to NullCache and every read becomes a miss.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/config"
)

// Cache is a TTL key/value store. Implementations never return errors to
// callers: failures degrade to a miss, false or zero.
type Cache interface {
	// Get returns the JSON payload stored under key.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set JSON-encodes value and stores it for ttl.
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool
	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) bool
	// DeleteByPrefix removes every key starting with prefix.
	DeleteByPrefix(ctx context.Context, prefix string) int
	Close() error
}

// Purger is implemented by backends without native expiry.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Entry is the stored wire format: the JSON payload plus when it was written.
// Expiry is left to the backend.
type Entry struct {
	Payload  json.RawMessage `json:"payload"`
	StoredAt time.Time       `json:"stored_at"`
}

func encodeEntry(value any, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, eris.Wrap(err, "cache: marshal payload")
	}
	data, err := json.Marshal(Entry{Payload: payload, StoredAt: now.UTC()})
	if err != nil {
		return nil, eris.Wrap(err, "cache: marshal entry")
	}
	return data, nil
}

func decodeEntry(data []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, eris.Wrap(err, "cache: unmarshal entry")
	}
	if len(e.Payload) == 0 {
		return Entry{}, eris.New("cache: entry has no payload")
	}
	return e, nil
}

// Lookup reads key and decodes its payload into T. A payload that does not
// decode is reported as a miss.
func Lookup[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var zero T
	raw, ok := c.Get(ctx, key)
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		zap.L().Warn("cache: discarding undecodable payload",
			zap.String("key", key),
			zap.Error(err),
		)
		return zero, false
	}
	return v, true
}

// CompetitorsKey is the discovery cache key for a location and category.
func CompetitorsKey(location, category string) string {
	return "competitors:" + normalizeKeyPart(location) + ":" + normalizeKeyPart(category)
}

// ReviewsKey is the review cache key for one competitor, calendar day (UTC)
// and tier.
func ReviewsKey(competitorID string, day time.Time, tier string) string {
	return "reviews:" + competitorID + ":" + day.UTC().Format(time.DateOnly) + ":" + tier
}

func normalizeKeyPart(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Open builds the cache selected by cfg.Driver. Any backend failure at
// construction is logged and yields a NullCache.
func Open(ctx context.Context, cfg config.CacheConfig) Cache {
	log := zap.L().With(zap.String("component", "cache"), zap.String("driver", cfg.Driver))

	timeout := time.Duration(cfg.ConnectTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		c   Cache
		err error
	)
	switch cfg.Driver {
	case "redis":
		c, err = NewRedis(connectCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "postgres":
		c, err = NewPostgres(connectCtx, cfg.DatabaseURL)
	case "sqlite":
		c, err = NewSQLite(connectCtx, cfg.SQLitePath)
	case "none", "":
		log.Info("cache disabled by configuration")
		return NullCache{}
	default:
		err = eris.Errorf("cache: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		log.Warn("cache unavailable, running without cache", zap.Error(err))
		return NullCache{}
	}

	log.Info("cache connected")
	return c
}
