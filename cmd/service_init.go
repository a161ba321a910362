package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/competitor-intel/internal/analysis"
	"github.com/sells-group/competitor-intel/internal/cache"
	"github.com/sells-group/competitor-intel/internal/collector"
	"github.com/sells-group/competitor-intel/internal/config"
	"github.com/sells-group/competitor-intel/internal/discovery"
	"github.com/sells-group/competitor-intel/internal/gateway"
	"github.com/sells-group/competitor-intel/internal/sampler"
	"github.com/sells-group/competitor-intel/internal/scorer"
	"github.com/sells-group/competitor-intel/pkg/serpapi"
)

// serviceEnv holds the cache and the wired analysis service.
type serviceEnv struct {
	Cache   cache.Cache
	Gateway *gateway.Gateway
	Service *analysis.Service
}

// Close releases the cache connection.
func (se *serviceEnv) Close() {
	if se.Cache != nil {
		_ = se.Cache.Close()
	}
}

// initService validates config and wires provider, gateway, cache,
// discovery, collector and sampler. Callers should defer env.Close().
func initService(ctx context.Context, cfg *config.Config) (*serviceEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lex, err := scorer.LoadLexicon(cfg.Scorer.LexiconPath)
	if err != nil {
		return nil, eris.Wrap(err, "load scorer lexicon")
	}

	client := serpapi.NewClient(cfg.SerpAPI.Key,
		serpapi.WithBaseURL(cfg.SerpAPI.BaseURL),
		serpapi.WithLanguage(cfg.SerpAPI.Language),
		serpapi.WithRateLimit(cfg.SerpAPI.RateLimit),
		serpapi.WithHTTPClient(&http.Client{Timeout: secs(cfg.SerpAPI.TimeoutSecs)}),
	)
	gw := gateway.NewFromConfig(client, cfg)

	c := cache.Open(ctx, cfg.Cache)

	engine := discovery.New(gw, c,
		discovery.WithTTL(hours(cfg.Cache.CompetitorsTTLHours)),
		discovery.WithDefaultMaxResults(cfg.Discovery.DefaultMaxResults),
	)
	col := collector.New(gw, c, scorer.New(lex),
		collector.WithPolitenessDelay(time.Duration(cfg.Collector.PolitenessDelayMs)*time.Millisecond),
		collector.WithTTL(hours(cfg.Cache.ReviewsTTLHours)),
	)
	svc := analysis.New(engine, col, sampler.New(),
		analysis.WithTiers(analysis.TiersFromConfig(cfg.Collector)),
		analysis.WithMaxWorkers(cfg.Collector.MaxWorkers),
	)

	return &serviceEnv{Cache: c, Gateway: gw, Service: svc}, nil
}

func secs(n int) time.Duration  { return time.Duration(n) * time.Second }
func hours(n int) time.Duration { return time.Duration(n) * time.Hour }
