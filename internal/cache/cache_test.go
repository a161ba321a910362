package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/competitor-intel/internal/config"
)

type samplePayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// memCache is a map-backed Cache for exercising Lookup.
type memCache map[string][]byte

func (m memCache) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := m[key]
	return v, ok
}

func (m memCache) Set(_ context.Context, key string, value any, _ time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		return false
	}
	m[key] = data
	return true
}

func (m memCache) Delete(_ context.Context, key string) bool {
	_, ok := m[key]
	delete(m, key)
	return ok
}

func (m memCache) DeleteByPrefix(context.Context, string) int { return 0 }
func (m memCache) Close() error                               { return nil }

func TestCompetitorsKey_Normalizes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "competitors:woonsocket, ri:pizza", CompetitorsKey("  Woonsocket,   RI ", "Pizza"))
	assert.Equal(t, CompetitorsKey("woonsocket, ri", "pizza"), CompetitorsKey("WOONSOCKET, RI", "PIZZA"))
}

func TestReviewsKey(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 10, 19, 23, 30, 0, 0, time.FixedZone("PDT", -7*3600))
	assert.Equal(t, "reviews:ChIJ123:2026-10-20:free", ReviewsKey("ChIJ123", day, "free"))
}

func TestEntryRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	data, err := encodeEntry(samplePayload{Name: "a", Count: 2}, now)
	require.NoError(t, err)

	e, err := decodeEntry(data)
	require.NoError(t, err)
	assert.True(t, e.StoredAt.Equal(now))
	assert.JSONEq(t, `{"name":"a","count":2}`, string(e.Payload))
}

func TestDecodeEntry_Invalid(t *testing.T) {
	t.Parallel()

	_, err := decodeEntry([]byte("not json"))
	assert.Error(t, err)

	_, err = decodeEntry([]byte(`{"stored_at":"2026-01-01T00:00:00Z"}`))
	assert.Error(t, err)
}

func TestLookup_HitAndMiss(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := memCache{}
	require.True(t, c.Set(ctx, "k", samplePayload{Name: "x", Count: 1}, time.Hour))

	v, ok := Lookup[samplePayload](ctx, c, "k")
	require.True(t, ok)
	assert.Equal(t, samplePayload{Name: "x", Count: 1}, v)

	_, ok = Lookup[samplePayload](ctx, c, "missing")
	assert.False(t, ok)
}

func TestLookup_DecodeFailureIsMiss(t *testing.T) {
	t.Parallel()

	c := memCache{"k": []byte(`"a string, not an object"`)}
	_, ok := Lookup[samplePayload](context.Background(), c, "k")
	assert.False(t, ok)
}

func TestNullCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var c Cache = NullCache{}
	assert.False(t, c.Set(ctx, "k", 1, time.Hour))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.False(t, c.Delete(ctx, "k"))
	assert.Equal(t, 0, c.DeleteByPrefix(ctx, "k"))
	assert.NoError(t, c.Close())
}

func TestOpen_DisabledDriver(t *testing.T) {
	t.Parallel()

	c := Open(context.Background(), config.CacheConfig{Driver: "none"})
	assert.IsType(t, NullCache{}, c)
}

func TestOpen_UnknownDriverFallsBack(t *testing.T) {
	t.Parallel()

	c := Open(context.Background(), config.CacheConfig{Driver: "memcached"})
	assert.IsType(t, NullCache{}, c)
}

func TestOpen_UnreachableRedisFallsBack(t *testing.T) {
	t.Parallel()

	c := Open(context.Background(), config.CacheConfig{
		Driver:             "redis",
		RedisAddr:          "127.0.0.1:1",
		ConnectTimeoutSecs: 1,
	})
	assert.IsType(t, NullCache{}, c)
}

func TestOpen_PostgresWithoutURLFallsBack(t *testing.T) {
	t.Parallel()

	c := Open(context.Background(), config.CacheConfig{Driver: "postgres"})
	assert.IsType(t, NullCache{}, c)
}

func TestOpen_SQLite(t *testing.T) {
	t.Parallel()

	c := Open(context.Background(), config.CacheConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	t.Cleanup(func() { _ = c.Close() })
	assert.IsType(t, &SQLiteCache{}, c)
}
