package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/competitor-intel/internal/collector"
	"github.com/sells-group/competitor-intel/internal/config"
	"github.com/sells-group/competitor-intel/internal/discovery"
	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/resilience"
	"github.com/sells-group/competitor-intel/internal/sampler"
	"github.com/sells-group/competitor-intel/pkg/serpapi"
	"github.com/sells-group/competitor-intel/pkg/serpapi/mocks"
)

func competitors(n int) []model.Competitor {
	out := make([]model.Competitor, n)
	for i := range out {
		out[i] = model.Competitor{ExternalID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Shop %d", i)}
	}
	return out
}

func scored(id string, n int) []model.ScoredReview {
	out := make([]model.ScoredReview, n)
	for i := range out {
		out[i] = model.ScoredReview{RawReview: model.RawReview{ReviewID: fmt.Sprintf("%s-r%d", id, i), CompetitorID: id}, QualityScore: 0.5}
	}
	return out
}

func TestCollect_AggregatesResults(t *testing.T) {
	d := &fakeDiscoverer{competitors: competitors(3)}
	c := &fakeCollector{reviews: map[string][]model.ScoredReview{
		"p0": scored("p0", 5),
		"p1": scored("p1", 2),
	}}

	ticks := []time.Time{time.Unix(100, 0), time.Unix(103, 500_000_000)}
	svc := New(d, c, nil, WithClock(func() time.Time {
		t := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return t
	}))

	res, err := svc.Collect(context.Background(), Request{
		Location: "Woonsocket, RI", SeedName: "Tony's", Category: "pizza", MaxCompetitors: 3, Tier: model.TierPremium, ForceRefresh: true,
	})
	require.NoError(t, err)

	assert.Equal(t, discovery.Request{
		Location: "Woonsocket, RI", SeedName: "Tony's", Category: "pizza", MaxResults: 3, ForceRefresh: true,
	}, d.lastReq)
	assert.Equal(t, 1, d.calls)

	_, err = uuid.Parse(res.RunID)
	assert.NoError(t, err)
	assert.Len(t, res.Competitors, 3)
	assert.Len(t, res.ReviewsByCompetitor["p0"], 5)
	assert.Len(t, res.ReviewsByCompetitor["p1"], 2)
	assert.NotNil(t, res.ReviewsByCompetitor["p2"])
	assert.Empty(t, res.ReviewsByCompetitor["p2"])
	assert.Empty(t, res.Failed)
	assert.Equal(t, model.Timing{TotalSeconds: 3.5, CompetitorCount: 3, ReviewCount: 7}, res.Timing)

	for _, sizes := range c.sizes {
		assert.Equal(t, DefaultTiers()[model.TierPremium], sizes)
	}
}

func TestCollect_PassesSearchCentreToDiscovery(t *testing.T) {
	d := &fakeDiscoverer{}
	lat, lng := 42.0029, -71.5148

	_, err := New(d, &fakeCollector{}, nil).Collect(context.Background(), Request{
		Location: "Woonsocket, RI", Category: "pizza", Latitude: &lat, Longitude: &lng,
	})
	require.NoError(t, err)

	require.NotNil(t, d.lastReq.Latitude)
	require.NotNil(t, d.lastReq.Longitude)
	assert.InDelta(t, lat, *d.lastReq.Latitude, 1e-9)
	assert.InDelta(t, lng, *d.lastReq.Longitude, 1e-9)
}

func TestCollect_DiscoveryFailureIsFatal(t *testing.T) {
	d := &fakeDiscoverer{err: resilience.NewPermanentError(errors.New("invalid api key"), 401)}
	c := &fakeCollector{}

	_, err := New(d, c, nil).Collect(context.Background(), Request{Location: "x", Category: "pizza"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis: discover competitors")
	assert.True(t, resilience.IsPermanent(err))
	assert.Empty(t, c.sizes)
}

func TestCollect_ZeroCompetitorsIsValid(t *testing.T) {
	res, err := New(&fakeDiscoverer{}, &fakeCollector{}, nil).Collect(context.Background(), Request{Location: "x", Category: "pizza"})
	require.NoError(t, err)
	assert.Empty(t, res.Competitors)
	assert.Empty(t, res.ReviewsByCompetitor)
	assert.Equal(t, 0, res.Timing.CompetitorCount)
}

func TestCollect_PartialFailureIsolated(t *testing.T) {
	d := &fakeDiscoverer{competitors: competitors(3)}
	c := &fakeCollector{
		reviews: map[string][]model.ScoredReview{"p0": scored("p0", 3), "p2": scored("p2", 1)},
		errs:    map[string]error{"p1": errors.New("collector: boom")},
		panics:  map[string]bool{"p2": true},
	}

	res, err := New(d, c, nil).Collect(context.Background(), Request{Location: "x", Category: "pizza"})
	require.NoError(t, err)

	assert.Len(t, res.ReviewsByCompetitor["p0"], 3)
	assert.Empty(t, res.ReviewsByCompetitor["p1"])
	assert.Empty(t, res.ReviewsByCompetitor["p2"])
	require.Len(t, res.Failed, 2)
	assert.Contains(t, res.Failed["p1"], "boom")
	assert.Contains(t, res.Failed["p2"], "panicked")
	assert.Equal(t, 3, res.Timing.ReviewCount)
}

func TestCollect_BoundedWorkers(t *testing.T) {
	d := &fakeDiscoverer{competitors: competitors(8)}
	c := &fakeCollector{delay: 20 * time.Millisecond}

	_, err := New(d, c, nil, WithMaxWorkers(3)).Collect(context.Background(), Request{Location: "x", Category: "pizza"})
	require.NoError(t, err)
	assert.LessOrEqual(t, c.peak.Load(), int32(3))
	assert.Len(t, c.sizes, 8)
}

func TestCollect_TierValidation(t *testing.T) {
	svc := New(&fakeDiscoverer{}, &fakeCollector{}, nil)

	_, err := svc.Collect(context.Background(), Request{Location: "x", Category: "pizza", Tier: "gold"})
	assert.ErrorContains(t, err, "unknown tier")

	svc = New(&fakeDiscoverer{}, &fakeCollector{}, nil, WithTiers(map[model.Tier]model.PageSizes{
		model.TierFree: {Recent: 1},
	}))
	_, err = svc.Collect(context.Background(), Request{Location: "x", Category: "pizza", Tier: model.TierPremium})
	assert.ErrorContains(t, err, "no page sizes configured")
}

func TestTiersFromConfig(t *testing.T) {
	tiers := TiersFromConfig(config.CollectorConfig{Tiers: map[string]config.TierPageSizes{
		"free":   {Recent: 2, FiveStar: 2, LowRated: 2},
		"bronze": {Recent: 9},
	}})

	assert.Equal(t, model.PageSizes{Recent: 2, FiveStar: 2, LowRated: 2}, tiers[model.TierFree])
	assert.Equal(t, DefaultTiers()[model.TierPremium], tiers[model.TierPremium])
	assert.Len(t, tiers, 2)
}

func TestSample_PerCompetitor(t *testing.T) {
	res := &model.CollectionResult{ReviewsByCompetitor: map[string][]model.ScoredReview{
		"p0": scored("p0", 15),
		"p1": scored("p1", 3),
		"p2": {},
	}}

	out := New(&fakeDiscoverer{}, &fakeCollector{}, nil).Sample(res, 10)
	assert.Len(t, out["p0"], 10)
	assert.Len(t, out["p1"], 3)
	assert.Empty(t, out["p2"])
	assert.Empty(t, New(&fakeDiscoverer{}, &fakeCollector{}, nil).Sample(nil, 10))
}

// TestWoonsocketScenario runs discovery, collection and sampling end to end
// against a mocked provider.
func TestWoonsocketScenario(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchBusinesses", mock.Anything, mock.Anything).Return(&serpapi.SearchResponse{Places: []serpapi.Place{
		{PlaceID: "p1", Title: "Sal's Pizza"},
		{PlaceID: "p2", Title: "Mama Rosa"},
		{PlaceID: "p3", Title: "Pizza Palace"},
	}}, nil).Once()

	page := func(prefix string, stars float64) *serpapi.ReviewsResponse {
		var reviews []serpapi.Review
		for i := 0; i < 4; i++ {
			reviews = append(reviews, serpapi.Review{
				User:    serpapi.ReviewUser{Name: fmt.Sprintf("%s-%d", prefix, i)},
				Rating:  serpapi.NewNumber(stars),
				Snippet: fmt.Sprintf("Review %d about the crust, sauce and service at this place.", i),
				ISODate: "2026-10-01T12:00:00Z",
			})
		}
		return &serpapi.ReviewsResponse{Reviews: reviews}
	}
	client.On("FetchReviews", mock.Anything, mock.MatchedBy(func(r serpapi.ReviewsRequest) bool { return r.SortBy == serpapi.SortNewest })).
		Return(page("recent", 4), nil).Times(2)
	client.On("FetchReviews", mock.Anything, mock.MatchedBy(func(r serpapi.ReviewsRequest) bool { return r.SortBy == serpapi.SortRatingHigh })).
		Return(page("five", 5), nil).Times(2)
	client.On("FetchReviews", mock.Anything, mock.MatchedBy(func(r serpapi.ReviewsRequest) bool { return r.SortBy == serpapi.SortRatingLow })).
		Return(nil, resilience.NewPermanentError(errors.New("quota exceeded"), 403)).Times(2)

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	svc := New(
		discovery.New(client, nil),
		collector.New(client, nil, nil, collector.WithPolitenessDelay(0)),
		sampler.New(sampler.WithClock(func() time.Time { return now })),
	)

	res, err := svc.Collect(context.Background(), Request{
		Location: "Woonsocket, RI", SeedName: "Pizza Palace", Category: "pizza", MaxCompetitors: 2, Tier: model.TierFree,
	})
	require.NoError(t, err)
	require.LessOrEqual(t, len(res.Competitors), 2)
	require.Len(t, res.Competitors, 2)

	samples := svc.Sample(res, 10)
	for _, comp := range res.Competitors {
		pool := res.ReviewsByCompetitor[comp.ExternalID]
		assert.Len(t, pool, 8, "low_rated failed, other two strategies kept")
		assert.LessOrEqual(t, len(pool), DefaultTiers()[model.TierFree].Target())
		assert.Len(t, samples[comp.ExternalID], min(10, len(pool)))
	}
	assert.Empty(t, res.Failed, "strategy failures are absorbed by the collector")
}
