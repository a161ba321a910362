// Package gateway wraps the review provider client with bounded retries,
// per-attempt timeouts and circuit breakers.
package gateway

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/competitor-intel/internal/config"
	"github.com/sells-group/competitor-intel/internal/resilience"
	"github.com/sells-group/competitor-intel/pkg/serpapi"
)

const (
	service = "serpapi"

	opSearch  = "search_businesses"
	opReviews = "fetch_reviews"

	defaultRequestTimeout = 30 * time.Second
)

// Gateway implements serpapi.Client on top of another client. Transient
// failures are retried with capped exponential backoff; permanent failures
// return after one attempt.
type Gateway struct {
	next    serpapi.Client
	retry   resilience.RetryConfig
	timeout time.Duration
	search  *resilience.CircuitBreaker
	reviews *resilience.CircuitBreaker
}

var _ serpapi.Client = (*Gateway)(nil)

// Option configures a Gateway.
type Option func(*Gateway)

// WithRetry sets the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(g *Gateway) {
		g.retry = cfg
	}
}

// WithRequestTimeout bounds each individual attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithCircuitBreaker installs one breaker per provider operation.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(g *Gateway) {
		searchCfg, reviewsCfg := cfg, cfg
		searchCfg.Name = service + "." + opSearch
		reviewsCfg.Name = service + "." + opReviews
		g.search = resilience.NewCircuitBreaker(searchCfg)
		g.reviews = resilience.NewCircuitBreaker(reviewsCfg)
	}
}

// New wraps next. Without options it uses the default retry policy, a 30s
// attempt timeout and no circuit breakers.
func New(next serpapi.Client, opts ...Option) *Gateway {
	g := &Gateway{
		next:    next,
		retry:   resilience.DefaultRetryConfig(),
		timeout: defaultRequestTimeout,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// NewFromConfig wraps next using the retry and circuit sections of cfg.
func NewFromConfig(next serpapi.Client, cfg *config.Config) *Gateway {
	return New(next,
		WithRetry(resilience.RetryFromConfig(cfg.Retry)),
		WithRequestTimeout(resilience.AttemptTimeout(cfg.Retry)),
		WithCircuitBreaker(resilience.CircuitFromConfig(service, cfg.Circuit)),
	)
}

func (g *Gateway) SearchBusinesses(ctx context.Context, req serpapi.SearchRequest) (*serpapi.SearchResponse, error) {
	return call(ctx, g, g.search, opSearch, func(ctx context.Context) (*serpapi.SearchResponse, error) {
		return g.next.SearchBusinesses(ctx, req)
	})
}

func (g *Gateway) FetchReviews(ctx context.Context, req serpapi.ReviewsRequest) (*serpapi.ReviewsResponse, error) {
	return call(ctx, g, g.reviews, opReviews, func(ctx context.Context) (*serpapi.ReviewsResponse, error) {
		return g.next.FetchReviews(ctx, req)
	})
}

// BreakerStates reports the circuit state per operation. Operations without
// a breaker are omitted.
func (g *Gateway) BreakerStates() map[string]resilience.CircuitState {
	out := make(map[string]resilience.CircuitState, 2)
	if g.search != nil {
		out[opSearch] = g.search.State()
	}
	if g.reviews != nil {
		out[opReviews] = g.reviews.State()
	}
	return out
}

func call[T any](ctx context.Context, g *Gateway, cb *resilience.CircuitBreaker, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	rc := g.retry
	if rc.OnRetry == nil {
		rc.OnRetry = resilience.RetryLogger(service, op)
	}

	val, err := resilience.DoVal(ctx, rc, func(ctx context.Context) (T, error) {
		return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (T, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			return fn(attemptCtx)
		})
	})
	if err != nil {
		var zero T
		return zero, eris.Wrapf(err, "gateway: %s", op)
	}
	return val, nil
}
