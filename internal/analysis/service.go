// Package analysis runs competitor discovery once and fans review collection
// out across every discovered competitor.
package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/competitor-intel/internal/config"
	"github.com/sells-group/competitor-intel/internal/discovery"
	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/parallel"
	"github.com/sells-group/competitor-intel/internal/sampler"
)

// DefaultMaxWorkers caps the competitor fan-out.
const DefaultMaxWorkers = 5

// Discoverer finds competitors.
type Discoverer interface {
	Discover(ctx context.Context, req discovery.Request) ([]model.Competitor, error)
}

// ReviewCollector gathers one competitor's scored reviews.
type ReviewCollector interface {
	Collect(ctx context.Context, competitor model.Competitor, tier model.Tier, sizes model.PageSizes) ([]model.ScoredReview, error)
}

// ReviewSampler picks a bounded sample from a review pool.
type ReviewSampler interface {
	Sample(reviews []model.ScoredReview, quota int) []model.ScoredReview
}

// Request is the inbound collect call.
type Request struct {
	Location       string
	SeedName       string
	Category       string
	MaxCompetitors int
	Tier           model.Tier
	ForceRefresh   bool
	// Latitude/Longitude optionally set the centre competitor distances are
	// measured from.
	Latitude  *float64
	Longitude *float64
}

// DefaultTiers returns the free (4/4/4) and premium (20/10/10) page sizes.
func DefaultTiers() map[model.Tier]model.PageSizes {
	return map[model.Tier]model.PageSizes{
		model.TierFree:    {Recent: 4, FiveStar: 4, LowRated: 4},
		model.TierPremium: {Recent: 20, FiveStar: 10, LowRated: 10},
	}
}

// TiersFromConfig converts configured page sizes, ignoring unknown tier names.
func TiersFromConfig(cfg config.CollectorConfig) map[model.Tier]model.PageSizes {
	tiers := DefaultTiers()
	for name, sizes := range cfg.Tiers {
		tier, err := model.ParseTier(name)
		if err != nil {
			zap.L().Warn("ignoring unknown collector tier", zap.String("tier", name))
			continue
		}
		tiers[tier] = model.PageSizes{Recent: sizes.Recent, FiveStar: sizes.FiveStar, LowRated: sizes.LowRated}
	}
	return tiers
}

// Service coordinates discovery, collection and sampling.
type Service struct {
	discovery  Discoverer
	collector  ReviewCollector
	sampler    ReviewSampler
	tiers      map[model.Tier]model.PageSizes
	maxWorkers int
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTiers overrides DefaultTiers.
func WithTiers(tiers map[model.Tier]model.PageSizes) Option {
	return func(s *Service) {
		if len(tiers) > 0 {
			s.tiers = tiers
		}
	}
}

// WithMaxWorkers caps concurrent competitor collections.
func WithMaxWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

// WithClock overrides the clock used for run timing.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service. A nil sampler uses sampler.New().
func New(d Discoverer, c ReviewCollector, smp ReviewSampler, opts ...Option) *Service {
	if smp == nil {
		smp = sampler.New()
	}
	s := &Service{
		discovery:  d,
		collector:  c,
		sampler:    smp,
		tiers:      DefaultTiers(),
		maxWorkers: DefaultMaxWorkers,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Collect discovers competitors once, then collects each competitor's
// reviews on a bounded worker pool. Discovery errors fail the call; a
// collection error for one competitor yields an empty list for it and an
// entry in Failed.
func (s *Service) Collect(ctx context.Context, req Request) (*model.CollectionResult, error) {
	tier := req.Tier
	if tier == "" {
		tier = model.TierFree
	}
	if _, err := model.ParseTier(string(tier)); err != nil {
		return nil, eris.Wrap(err, "analysis: collect")
	}
	sizes, ok := s.tiers[tier]
	if !ok {
		return nil, eris.Errorf("analysis: no page sizes configured for tier %q", tier)
	}

	runID := uuid.NewString()
	log := zap.L().With(
		zap.String("component", "analysis"),
		zap.String("run_id", runID),
		zap.String("tier", string(tier)),
	)
	start := s.now()

	competitors, err := s.discovery.Discover(ctx, discovery.Request{
		Location:     req.Location,
		SeedName:     req.SeedName,
		Category:     req.Category,
		MaxResults:   req.MaxCompetitors,
		ForceRefresh: req.ForceRefresh,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: discover competitors")
	}

	tasks := make([]parallel.Task[[]model.ScoredReview], len(competitors))
	for i, c := range competitors {
		tasks[i] = func(ctx context.Context) ([]model.ScoredReview, error) {
			return s.collector.Collect(ctx, c, tier, sizes)
		}
	}
	workers := min(len(competitors), s.maxWorkers)
	results := parallel.RunBounded(ctx, tasks, workers)

	result := &model.CollectionResult{
		RunID:               runID,
		Competitors:         competitors,
		ReviewsByCompetitor: make(map[string][]model.ScoredReview, len(competitors)),
	}
	total := 0
	for i, res := range results {
		id := competitors[i].ExternalID
		if res.Err != nil {
			log.Warn("competitor collection failed",
				zap.String("competitor_id", id),
				zap.Error(res.Err),
			)
			if result.Failed == nil {
				result.Failed = make(map[string]string)
			}
			result.Failed[id] = res.Err.Error()
			result.ReviewsByCompetitor[id] = []model.ScoredReview{}
			continue
		}
		reviews := res.Value
		if reviews == nil {
			reviews = []model.ScoredReview{}
		}
		result.ReviewsByCompetitor[id] = reviews
		total += len(reviews)
	}

	result.Timing = model.Timing{
		TotalSeconds:    s.now().Sub(start).Seconds(),
		CompetitorCount: len(competitors),
		ReviewCount:     total,
	}

	log.Info("collection complete",
		zap.Int("competitors", len(competitors)),
		zap.Int("workers", workers),
		zap.Int("reviews", total),
		zap.Int("failed", len(result.Failed)),
		zap.Float64("seconds", result.Timing.TotalSeconds),
	)
	return result, nil
}

// Sample applies strategic sampling to each competitor's pool. Competitors
// with no reviews map to an empty sample.
func (s *Service) Sample(result *model.CollectionResult, quota int) map[string][]model.ScoredReview {
	if result == nil {
		return map[string][]model.ScoredReview{}
	}
	out := make(map[string][]model.ScoredReview, len(result.ReviewsByCompetitor))
	for id, reviews := range result.ReviewsByCompetitor {
		out[id] = s.sampler.Sample(reviews, quota)
	}
	return out
}
