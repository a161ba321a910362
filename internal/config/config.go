package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	SerpAPI   SerpAPIConfig   `yaml:"serpapi" mapstructure:"serpapi"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Collector CollectorConfig `yaml:"collector" mapstructure:"collector"`
	Sampler   SamplerConfig   `yaml:"sampler" mapstructure:"sampler"`
	Scorer    ScorerConfig    `yaml:"scorer" mapstructure:"scorer"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SerpAPIConfig holds review provider credentials and transport settings.
type SerpAPIConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests/sec, 0 = unlimited
	Language    string  `yaml:"language" mapstructure:"language"`
}

// CacheConfig selects and configures the cache backend.
type CacheConfig struct {
	Driver              string `yaml:"driver" mapstructure:"driver"` // redis, postgres, sqlite, none
	RedisAddr           string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword       string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB             int    `yaml:"redis_db" mapstructure:"redis_db"`
	DatabaseURL         string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath          string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	ConnectTimeoutSecs  int    `yaml:"connect_timeout_secs" mapstructure:"connect_timeout_secs"`
	CompetitorsTTLHours int    `yaml:"competitors_ttl_hours" mapstructure:"competitors_ttl_hours"`
	ReviewsTTLHours     int    `yaml:"reviews_ttl_hours" mapstructure:"reviews_ttl_hours"`
}

// RetryConfig configures provider retries.
type RetryConfig struct {
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs   int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs       int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier         float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction     float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	RequestTimeoutSecs int     `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// CircuitConfig configures the provider circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// DiscoveryConfig configures competitor discovery.
type DiscoveryConfig struct {
	DefaultMaxResults int `yaml:"default_max_results" mapstructure:"default_max_results"`
}

// TierPageSizes holds per-strategy page sizes for one tier.
type TierPageSizes struct {
	Recent   int `yaml:"recent" mapstructure:"recent"`
	FiveStar int `yaml:"five_star" mapstructure:"five_star"`
	LowRated int `yaml:"low_rated" mapstructure:"low_rated"`
}

// CollectorConfig configures review collection and the competitor fan-out.
type CollectorConfig struct {
	PolitenessDelayMs int                      `yaml:"politeness_delay_ms" mapstructure:"politeness_delay_ms"`
	MaxWorkers        int                      `yaml:"max_workers" mapstructure:"max_workers"`
	Tiers             map[string]TierPageSizes `yaml:"tiers" mapstructure:"tiers"`
}

// SamplerConfig configures strategic sampling.
type SamplerConfig struct {
	Quota int `yaml:"quota" mapstructure:"quota"`
}

// ScorerConfig configures review quality scoring.
type ScorerConfig struct {
	LexiconPath string `yaml:"lexicon_path" mapstructure:"lexicon_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COMPINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets have empty defaults so AutomaticEnv picks them up on Unmarshal.
	v.SetDefault("serpapi.key", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.database_url", "")

	v.SetDefault("serpapi.base_url", "https://serpapi.com")
	v.SetDefault("serpapi.timeout_secs", 30)
	v.SetDefault("serpapi.rate_limit", 5)
	v.SetDefault("serpapi.language", "en")
	v.SetDefault("cache.driver", "redis")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.sqlite_path", "compintel-cache.db")
	v.SetDefault("cache.connect_timeout_secs", 5)
	v.SetDefault("cache.competitors_ttl_hours", 24)
	v.SetDefault("cache.reviews_ttl_hours", 24)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 8000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("retry.request_timeout_secs", 30)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("discovery.default_max_results", 5)
	v.SetDefault("collector.politeness_delay_ms", 1000)
	v.SetDefault("collector.max_workers", 5)
	v.SetDefault("collector.tiers.free.recent", 4)
	v.SetDefault("collector.tiers.free.five_star", 4)
	v.SetDefault("collector.tiers.free.low_rated", 4)
	v.SetDefault("collector.tiers.premium.recent", 20)
	v.SetDefault("collector.tiers.premium.five_star", 10)
	v.SetDefault("collector.tiers.premium.low_rated", 10)
	v.SetDefault("sampler.quota", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	var errs []string
	if c.SerpAPI.Key == "" {
		errs = append(errs, "serpapi.key is required")
	}
	switch c.Cache.Driver {
	case "redis", "postgres", "sqlite", "none", "":
	default:
		errs = append(errs, "cache.driver must be one of redis, postgres, sqlite, none")
	}
	for _, tier := range []string{"free", "premium"} {
		if _, ok := c.Collector.Tiers[tier]; !ok {
			errs = append(errs, "collector.tiers."+tier+" is required")
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
