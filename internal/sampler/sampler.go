// Package sampler selects a small, rating-stratified subset of scored
// reviews so downstream analysis sees both praise and complaints.
package sampler

import (
	"sort"
	"time"

	"github.com/sells-group/competitor-intel/internal/model"
)

// DefaultQuota is used when Sample is called with a non-positive quota.
const DefaultQuota = 10

const day = 24 * time.Hour

// Band is a rating stratum.
type Band string

const (
	BandNegative Band = "negative" // rating <= 2
	BandPositive Band = "positive" // rating == 5
	BandNeutral  Band = "neutral"  // rating 3..4 or unrated
)

// BandOf returns the stratum for r.
func BandOf(r model.ScoredReview) Band {
	if r.Rating == nil {
		return BandNeutral
	}
	switch rating := *r.Rating; {
	case rating <= 2:
		return BandNegative
	case rating == 5:
		return BandPositive
	default:
		return BandNeutral
	}
}

// RecencyBoost returns the additive boost for a review posted at posted.
// Undated reviews get no boost; future dates count as fresh.
func RecencyBoost(posted, now time.Time) float64 {
	if posted.IsZero() {
		return 0
	}
	switch age := now.Sub(posted); {
	case age <= 30*day:
		return 0.3
	case age <= 90*day:
		return 0.2
	case age <= 180*day:
		return 0.1
	default:
		return 0
	}
}

// Quotas splits quota into per-band targets: 40% negative, 40% positive,
// the remainder neutral. A quota of 10 yields 4/4/2.
func Quotas(quota int) (negative, positive, neutral int) {
	if quota <= 0 {
		quota = DefaultQuota
	}
	negative = quota * 4 / 10
	positive = quota * 4 / 10
	neutral = quota - negative - positive
	return negative, positive, neutral
}

// Sampler performs strategic sampling. The zero value is not usable; call New.
type Sampler struct {
	now func() time.Time
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithClock overrides the clock used for recency boosts.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) {
		s.now = now
	}
}

// New creates a Sampler.
func New(opts ...Option) *Sampler {
	s := &Sampler{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sample returns at most quota reviews, and at least min(quota, unique
// input size). Each band contributes up to its Quotas share; shortfalls are
// filled from the best remaining reviews of any band. The input is not
// modified and the output is ordered by FinalScore desc, ReviewID asc.
func (s *Sampler) Sample(reviews []model.ScoredReview, quota int) []model.ScoredReview {
	if quota <= 0 {
		quota = DefaultQuota
	}
	now := s.now()

	bands := map[Band][]model.ScoredReview{}
	seen := make(map[string]struct{}, len(reviews))
	for _, r := range reviews {
		if _, dup := seen[r.ReviewID]; dup {
			continue
		}
		seen[r.ReviewID] = struct{}{}

		r.FinalScore = r.QualityScore + RecencyBoost(r.PostedAt, now)
		b := BandOf(r)
		bands[b] = append(bands[b], r)
	}

	negQ, posQ, neuQ := Quotas(quota)
	targets := []struct {
		band  Band
		quota int
	}{
		{BandNegative, negQ},
		{BandPositive, posQ},
		{BandNeutral, neuQ},
	}

	selected := make([]model.ScoredReview, 0, quota)
	var leftovers []model.ScoredReview
	for _, t := range targets {
		pool := bands[t.band]
		sortByScore(pool)
		n := min(t.quota, len(pool))
		selected = append(selected, pool[:n]...)
		leftovers = append(leftovers, pool[n:]...)
	}

	if short := quota - len(selected); short > 0 && len(leftovers) > 0 {
		sortByScore(leftovers)
		selected = append(selected, leftovers[:min(short, len(leftovers))]...)
	}

	sortByScore(selected)
	return selected
}

func sortByScore(rs []model.ScoredReview) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].FinalScore != rs[j].FinalScore {
			return rs[i].FinalScore > rs[j].FinalScore
		}
		return rs[i].ReviewID < rs[j].ReviewID
	})
}
