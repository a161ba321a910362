package model

import (
	"github.com/rotisserie/eris"
)

// Tier selects per-strategy page sizes for review collection.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree, TierPremium:
		return Tier(s), nil
	default:
		return "", eris.Errorf("model: unknown tier %q", s)
	}
}

// PageSizes is the number of reviews requested per strategy.
type PageSizes struct {
	Recent   int `json:"recent" yaml:"recent" mapstructure:"recent"`
	FiveStar int `json:"five_star" yaml:"five_star" mapstructure:"five_star"`
	LowRated int `json:"low_rated" yaml:"low_rated" mapstructure:"low_rated"`
}

// For returns the page size for a strategy.
func (p PageSizes) For(s Strategy) int {
	switch s {
	case StrategyRecent:
		return p.Recent
	case StrategyFiveStar:
		return p.FiveStar
	case StrategyLowRated:
		return p.LowRated
	default:
		return 0
	}
}

// Target is the total number of raw reviews requested per competitor.
func (p PageSizes) Target() int {
	return p.Recent + p.FiveStar + p.LowRated
}

// Timing summarizes a collection run.
type Timing struct {
	TotalSeconds    float64 `json:"total_seconds"`
	CompetitorCount int     `json:"competitor_count"`
	ReviewCount     int     `json:"review_count"`
}

// CollectionResult is the output of one fan-out collection.
type CollectionResult struct {
	RunID               string                    `json:"run_id"`
	Competitors         []Competitor              `json:"competitors"`
	ReviewsByCompetitor map[string][]ScoredReview `json:"reviews_by_competitor"`
	Timing              Timing                    `json:"timing"`
	// Failed maps competitor ids whose collection errored to the error text.
	Failed map[string]string `json:"failed,omitempty"`
}
