// Package discovery finds competitor businesses near a location through the
// review provider's business search.
package discovery

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/competitor-intel/internal/cache"
	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/pkg/serpapi"
)

const (
	// DefaultTTL is how long a discovery result is cached.
	DefaultTTL = 24 * time.Hour

	defaultMaxResults = 5
	earthRadiusKM     = 6371.0
)

// Request describes one discovery call.
type Request struct {
	Location     string
	SeedName     string // excluded from results
	Category     string
	MaxResults   int
	ForceRefresh bool
	// Latitude/Longitude optionally pin the search centre; when set,
	// competitors carry a distance from it. Distances are computed per call
	// and never cached.
	Latitude  *float64
	Longitude *float64
}

// Engine finds competitor businesses around a location.
type Engine struct {
	client     serpapi.Client
	cache      cache.Cache
	ttl        time.Duration
	maxResults int
}

// Option configures an Engine.
type Option func(*Engine)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithDefaultMaxResults sets the cap used when a request has none.
func WithDefaultMaxResults(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxResults = n
		}
	}
}

// New creates an Engine. A nil cache disables caching.
func New(client serpapi.Client, c cache.Cache, opts ...Option) *Engine {
	if c == nil {
		c = cache.NullCache{}
	}
	e := &Engine{
		client:     client,
		cache:      c,
		ttl:        DefaultTTL,
		maxResults: defaultMaxResults,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Discover returns up to MaxResults competitors in provider rank order, with
// the seed business removed. The full provider result is cached per
// (location, category), so the seed filter and cap apply on every read.
// Search failures are returned as-is; there is no fallback.
func (e *Engine) Discover(ctx context.Context, req Request) ([]model.Competitor, error) {
	if strings.TrimSpace(req.Location) == "" {
		return nil, eris.New("discovery: location is required")
	}
	if strings.TrimSpace(req.Category) == "" {
		return nil, eris.New("discovery: category is required")
	}
	limit := req.MaxResults
	if limit <= 0 {
		limit = e.maxResults
	}

	log := zap.L().With(
		zap.String("component", "discovery"),
		zap.String("location", req.Location),
		zap.String("category", req.Category),
	)
	key := cache.CompetitorsKey(req.Location, req.Category)

	if !req.ForceRefresh {
		if cached, ok := cache.Lookup[[]model.Competitor](ctx, e.cache, key); ok {
			log.Debug("competitor cache hit", zap.Int("cached", len(cached)))
			out := selectCompetitors(cached, req.SeedName, limit)
			return withDistance(out, req.Latitude, req.Longitude), nil
		}
	}

	resp, err := e.client.SearchBusinesses(ctx, serpapi.SearchRequest{
		Query:     req.Category,
		Location:  req.Location,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		return nil, eris.Wrap(err, "discovery: search businesses")
	}

	all := toCompetitors(resp.Results())
	if !e.cache.Set(ctx, key, all, e.ttl) {
		log.Debug("competitor cache write skipped")
	}

	out := withDistance(selectCompetitors(all, req.SeedName, limit), req.Latitude, req.Longitude)
	log.Info("competitors discovered",
		zap.Int("found", len(all)),
		zap.Int("returned", len(out)),
		zap.Bool("force_refresh", req.ForceRefresh),
	)
	return out, nil
}

// toCompetitors converts provider places, dropping entries without an id or
// name and repeated ids.
func toCompetitors(places []serpapi.Place) []model.Competitor {
	seen := make(map[string]struct{}, len(places))
	out := make([]model.Competitor, 0, len(places))
	for _, p := range places {
		id := p.ExternalID()
		name := strings.TrimSpace(p.Title)
		if id == "" || name == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		c := model.Competitor{
			ExternalID:  id,
			Name:        name,
			Address:     strings.TrimSpace(p.Address),
			Rating:      p.RatingValue(),
			RatingCount: p.ReviewCount(),
			PriceLevel:  p.PriceLevel(),
			Categories:  p.Categories(),
		}
		if p.GPSCoordinates != nil {
			c.Latitude = p.GPSCoordinates.Latitude.Float()
			c.Longitude = p.GPSCoordinates.Longitude.Float()
		}
		out = append(out, c)
	}
	return out
}

// withDistance sets each competitor's distance from the centre, or clears it
// when there is no centre or no position. cs must not be shared.
func withDistance(cs []model.Competitor, lat, lng *float64) []model.Competitor {
	for i := range cs {
		cs[i].Distance = nil
		if lat == nil || lng == nil || !cs[i].HasCoordinates() {
			continue
		}
		d := haversineKM(*lat, *lng, cs[i].Latitude, cs[i].Longitude)
		cs[i].Distance = &d
	}
	return cs
}

// selectCompetitors drops any competitor whose name contains the seed name
// (case-folded) and caps the result at limit.
func selectCompetitors(all []model.Competitor, seed string, limit int) []model.Competitor {
	fold := cases.Fold()
	seed = strings.TrimSpace(fold.String(seed))

	out := make([]model.Competitor, 0, min(limit, len(all)))
	for _, c := range all {
		if len(out) >= limit {
			break
		}
		if seed != "" && strings.Contains(fold.String(c.Name), seed) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// haversineKM returns the great-circle distance between two points in km.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
