// Package collector fetches one competitor's reviews with three concurrent,
// strategy-tagged queries and merges them into a scored, deduplicated pool.
package collector

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/cache"
	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/parallel"
	"github.com/sells-group/competitor-intel/internal/resilience"
	"github.com/sells-group/competitor-intel/internal/scorer"
	"github.com/sells-group/competitor-intel/pkg/serpapi"
)

const (
	// DefaultPolitenessDelay spaces out strategy queries: the n-th active
	// strategy (from zero) waits n times this delay before calling.
	DefaultPolitenessDelay = time.Second

	// DefaultTTL is how long a competitor's review pool is cached.
	DefaultTTL = 24 * time.Hour
)

// query is the provider request shape for one strategy.
type query struct {
	sort      serpapi.SortOrder
	minRating int
	maxRating int
}

var queries = map[model.Strategy]query{
	model.StrategyRecent:   {sort: serpapi.SortNewest},
	model.StrategyFiveStar: {sort: serpapi.SortRatingHigh, minRating: 5},
	model.StrategyLowRated: {sort: serpapi.SortRatingLow, maxRating: 2},
}

// Collector gathers reviews for one competitor at a time. It is safe for
// concurrent use across competitors.
type Collector struct {
	client serpapi.Client
	cache  cache.Cache
	scorer *scorer.Scorer
	delay  time.Duration
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithPolitenessDelay overrides DefaultPolitenessDelay. Zero disables it.
func WithPolitenessDelay(d time.Duration) Option {
	return func(c *Collector) {
		if d >= 0 {
			c.delay = d
		}
	}
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Collector) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the clock used for the cache day bucket.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// New creates a Collector. client is expected to be the retrying gateway. A
// nil cache disables caching; a nil scorer uses the default lexicon.
func New(client serpapi.Client, c cache.Cache, sc *scorer.Scorer, opts ...Option) *Collector {
	if c == nil {
		c = cache.NullCache{}
	}
	if sc == nil {
		sc = scorer.New(scorer.DefaultLexicon())
	}
	col := &Collector{
		client: client,
		cache:  c,
		scorer: sc,
		delay:  DefaultPolitenessDelay,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, o := range opts {
		o(col)
	}
	return col
}

// strategyResult is what one strategy task contributes.
type strategyResult struct {
	reviews   []model.RawReview
	discarded int
}

// Collect returns the scored review pool for competitor. The three strategy
// queries run concurrently; a strategy that fails after retries contributes
// nothing and never fails the call. Page sizes of zero skip that strategy.
// The pool is cached per (competitor, UTC day, tier) once at least one
// strategy has succeeded.
func (c *Collector) Collect(ctx context.Context, competitor model.Competitor, tier model.Tier, sizes model.PageSizes) ([]model.ScoredReview, error) {
	id := strings.TrimSpace(competitor.ExternalID)
	if id == "" {
		return nil, eris.New("collector: competitor external id is required")
	}

	log := zap.L().With(
		zap.String("component", "collector"),
		zap.String("competitor_id", id),
		zap.String("tier", string(tier)),
	)
	key := cache.ReviewsKey(id, c.now(), string(tier))

	if cached, ok := cache.Lookup[[]model.ScoredReview](ctx, c.cache, key); ok {
		log.Debug("review cache hit", zap.Int("reviews", len(cached)))
		return cached, nil
	}

	var (
		strategies []model.Strategy
		tasks      []parallel.Task[strategyResult]
	)
	for _, s := range model.Strategies {
		n := sizes.For(s)
		if n <= 0 {
			continue
		}
		wait := c.delay * time.Duration(len(tasks))
		strategies = append(strategies, s)
		tasks = append(tasks, c.strategyTask(id, s, n, wait))
	}
	if len(tasks) == 0 {
		return []model.ScoredReview{}, nil
	}

	results := parallel.RunBounded(ctx, tasks, len(tasks))

	var (
		raw       []model.RawReview
		succeeded int
		discarded int
	)
	for i, res := range results {
		if res.Err != nil {
			log.Warn("review strategy failed, continuing without it",
				zap.String("strategy", string(strategies[i])),
				zap.String("error_type", resilience.ClassifyError(res.Err)),
				zap.Error(res.Err),
			)
			continue
		}
		succeeded++
		discarded += res.Value.discarded
		raw = append(raw, res.Value.reviews...)
	}

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "collector: collect reviews")
	}

	unique := model.Dedupe(raw)
	scored := c.scorer.ScoreAll(unique)

	if succeeded > 0 {
		c.cache.Set(ctx, key, scored, c.ttl)
	}

	log.Info("reviews collected",
		zap.Int("strategies_ok", succeeded),
		zap.Int("strategies_total", len(tasks)),
		zap.Int("fetched", len(raw)+discarded),
		zap.Int("discarded_short", discarded),
		zap.Int("duplicates", len(raw)-len(unique)),
		zap.Int("reviews", len(scored)),
	)
	return scored, nil
}

func (c *Collector) strategyTask(competitorID string, s model.Strategy, pageSize int, wait time.Duration) parallel.Task[strategyResult] {
	q := queries[s]
	return func(ctx context.Context) (strategyResult, error) {
		if wait > 0 {
			if err := resilience.Sleep(ctx, wait); err != nil {
				return strategyResult{}, eris.Wrapf(err, "collector: %s politeness delay", s)
			}
		}

		resp, err := c.client.FetchReviews(ctx, serpapi.ReviewsRequest{
			PlaceID:   competitorID,
			SortBy:    q.sort,
			Num:       pageSize,
			MinRating: q.minRating,
			MaxRating: q.maxRating,
		})
		if err != nil {
			return strategyResult{}, eris.Wrapf(err, "collector: fetch %s reviews", s)
		}

		var out strategyResult
		for _, r := range resp.Reviews {
			if len(out.reviews) >= pageSize {
				break
			}
			review, err := model.NewRawReview(competitorID, r.User.Name, r.Stars(), r.Text(), r.PostedAt(), r.Likes.Int(), s)
			if errors.Is(err, model.ErrTextTooShort) {
				out.discarded++
				continue
			}
			if err != nil {
				return strategyResult{}, eris.Wrapf(err, "collector: convert %s review", s)
			}
			out.reviews = append(out.reviews, review)
		}
		return out, nil
	}
}
