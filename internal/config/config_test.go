package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://serpapi.com", cfg.SerpAPI.BaseURL)
	assert.Equal(t, 30, cfg.SerpAPI.TimeoutSecs)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 24, cfg.Cache.CompetitorsTTLHours)
	assert.Equal(t, 24, cfg.Cache.ReviewsTTLHours)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 8000, cfg.Retry.MaxBackoffMs)
	assert.InDelta(t, 2.0, cfg.Retry.Multiplier, 0.001)
	assert.Equal(t, 1000, cfg.Collector.PolitenessDelayMs)
	assert.Equal(t, 5, cfg.Collector.MaxWorkers)
	assert.Equal(t, TierPageSizes{Recent: 4, FiveStar: 4, LowRated: 4}, cfg.Collector.Tiers["free"])
	assert.Equal(t, TierPageSizes{Recent: 20, FiveStar: 10, LowRated: 10}, cfg.Collector.Tiers["premium"])
	assert.Equal(t, 10, cfg.Sampler.Quota)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
cache:
  driver: sqlite
  sqlite_path: /tmp/cache.db
log:
  level: debug
  format: console
collector:
  max_workers: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Cache.Driver)
	assert.Equal(t, "/tmp/cache.db", cfg.Cache.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Collector.MaxWorkers)
	// Defaults still apply for unset values
	assert.Equal(t, 1000, cfg.Collector.PolitenessDelayMs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
cache:
  driver: sqlite
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("COMPINTEL_CACHE_DRIVER", "postgres")
	t.Setenv("COMPINTEL_SERPAPI_KEY", "serp-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Cache.Driver)
	assert.Equal(t, "serp-key", cfg.SerpAPI.Key)
}

func TestLoadSecretsFromEnvOnly(t *testing.T) {
	chdirTemp(t)

	t.Setenv("COMPINTEL_SERPAPI_KEY", "serp-key")
	t.Setenv("COMPINTEL_CACHE_DATABASE_URL", "postgres://cache@localhost/compintel")
	t.Setenv("COMPINTEL_CACHE_REDIS_PASSWORD", "pw")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "serp-key", cfg.SerpAPI.Key)
	assert.Equal(t, "postgres://cache@localhost/compintel", cfg.Cache.DatabaseURL)
	assert.Equal(t, "pw", cfg.Cache.RedisPassword)
	require.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("COMPINTEL_SAMPLER_QUOTA=14\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("COMPINTEL_SAMPLER_QUOTA") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Sampler.Quota)
}

func TestValidate(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serpapi.key is required")

	cfg.SerpAPI.Key = "k"
	assert.NoError(t, cfg.Validate())

	cfg.Cache.Driver = "memcached"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.driver")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
