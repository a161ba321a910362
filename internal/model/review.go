package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// Strategy identifies which provider query produced a review.
type Strategy string

const (
	StrategyRecent   Strategy = "recent"
	StrategyFiveStar Strategy = "five_star"
	StrategyLowRated Strategy = "low_rated"
)

// Strategies lists every fetch strategy in collection order.
var Strategies = []Strategy{StrategyRecent, StrategyFiveStar, StrategyLowRated}

// MinReviewTextLength is the shortest trimmed text (in runes) kept at ingestion.
const MinReviewTextLength = 10

// reviewIDTextPrefix is the number of text runes mixed into a review id.
const reviewIDTextPrefix = 50

// ErrTextTooShort is returned by NewRawReview for reviews with too little text.
var ErrTextTooShort = eris.New("model: review text shorter than minimum length")

// RawReview is a single review as fetched from the provider.
type RawReview struct {
	ReviewID     string    `json:"review_id"`
	CompetitorID string    `json:"competitor_id"`
	Author       string    `json:"author"`
	Rating       *int      `json:"rating,omitempty"` // 1..5
	Text         string    `json:"text"`
	PostedAt     time.Time `json:"posted_at"`
	Likes        int       `json:"likes"`
	Strategy     Strategy  `json:"fetch_strategy"`
}

// ScoredReview is a RawReview with its quality score. FinalScore is only set
// by the sampler.
type ScoredReview struct {
	RawReview
	QualityScore float64 `json:"quality_score"`
	FinalScore   float64 `json:"final_score,omitempty"`
}

// NewRawReview normalizes provider fields into a RawReview and derives its
// ReviewID. Ratings outside 1..5 are dropped to nil.
func NewRawReview(competitorID, author string, rating *int, text string, postedAt time.Time, likes int, strategy Strategy) (RawReview, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinReviewTextLength {
		return RawReview{}, ErrTextTooShort
	}

	if rating != nil && (*rating < 1 || *rating > 5) {
		rating = nil
	}
	if likes < 0 {
		likes = 0
	}
	author = strings.TrimSpace(author)

	return RawReview{
		ReviewID:     ReviewID(competitorID, author, postedAt, text),
		CompetitorID: competitorID,
		Author:       author,
		Rating:       rating,
		Text:         text,
		PostedAt:     postedAt.UTC(),
		Likes:        likes,
		Strategy:     strategy,
	}, nil
}

// ReviewID hashes the identifying fields of a review. The same review fetched
// by two strategies hashes to the same id.
func ReviewID(competitorID, author string, postedAt time.Time, text string) string {
	prefix := text
	if utf8.RuneCountInString(prefix) > reviewIDTextPrefix {
		prefix = string([]rune(prefix)[:reviewIDTextPrefix])
	}

	ts := ""
	if !postedAt.IsZero() {
		ts = postedAt.UTC().Format(time.RFC3339)
	}

	sum := sha256.Sum256([]byte(competitorID + "|" + author + "|" + ts + "|" + prefix))
	return hex.EncodeToString(sum[:16])
}

// RatingValue returns the rating or 0 when unrated.
func (r RawReview) RatingValue() int {
	if r.Rating == nil {
		return 0
	}
	return *r.Rating
}

// TextLength returns the review text length in runes.
func (r RawReview) TextLength() int {
	return utf8.RuneCountInString(r.Text)
}

// Dedupe drops reviews whose ReviewID was already seen, keeping the first
// occurrence and the input order.
func Dedupe(reviews []RawReview) []RawReview {
	seen := make(map[string]struct{}, len(reviews))
	out := make([]RawReview, 0, len(reviews))
	for _, r := range reviews {
		if _, ok := seen[r.ReviewID]; ok {
			continue
		}
		seen[r.ReviewID] = struct{}{}
		out = append(out, r)
	}
	return out
}
