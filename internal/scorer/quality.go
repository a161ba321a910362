package scorer

import (
	"math"
	"strings"
	"unicode"

	"github.com/sells-group/competitor-intel/internal/model"
)

const (
	baseScore = 0.5

	keywordWeight = 0.05
	maxKeywordHit = 4

	spamPenalty    = 0.3
	extremePenalty = 0.1

	// extremeShortLen is the text length below which a 1 or 5 star review is
	// treated as low effort.
	extremeShortLen = 30
)

// Scorer computes review quality scores. It is safe for concurrent use.
type Scorer struct {
	words   map[string]struct{}
	phrases []string
	spam    []string
}

// New builds a Scorer for lex.
func New(lex Lexicon) *Scorer {
	s := &Scorer{words: make(map[string]struct{}, len(lex.Keywords))}
	for _, k := range lex.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		switch {
		case k == "":
		case strings.ContainsFunc(k, unicode.IsSpace):
			s.phrases = append(s.phrases, k)
		default:
			s.words[k] = struct{}{}
		}
	}
	for _, m := range lex.SpamMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			s.spam = append(s.spam, m)
		}
	}
	return s
}

// Score returns the quality of r in [0, 1].
func (s *Scorer) Score(r model.RawReview) float64 {
	score := baseScore
	n := r.TextLength()

	switch {
	case n > 500:
		score -= 0.1
	case n >= 50 && n <= 300:
		score += 0.2
	case n >= 20 && n < 50:
		score += 0.1
	}

	lower := strings.ToLower(r.Text)
	score += float64(min(s.keywordHits(lower), maxKeywordHit)) * keywordWeight

	switch {
	case r.Likes > 10:
		score += 0.15
	case r.Likes > 5:
		score += 0.10
	case r.Likes > 0:
		score += 0.05
	}

	if s.isSpam(lower) {
		score -= spamPenalty
	}

	if rating := r.RatingValue(); (rating == 1 || rating == 5) && n < extremeShortLen {
		score -= extremePenalty
	}

	return math.Max(0, math.Min(1, score))
}

// ScoreAll scores reviews in order. FinalScore is left unset.
func (s *Scorer) ScoreAll(reviews []model.RawReview) []model.ScoredReview {
	out := make([]model.ScoredReview, len(reviews))
	for i, r := range reviews {
		out[i] = model.ScoredReview{RawReview: r, QualityScore: s.Score(r)}
	}
	return out
}

// keywordHits counts distinct keywords present in lower.
func (s *Scorer) keywordHits(lower string) int {
	hits := 0
	seen := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if _, ok := s.words[tok]; !ok {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		hits++
	}
	for _, p := range s.phrases {
		if strings.Contains(lower, p) {
			hits++
		}
	}
	return hits
}

func (s *Scorer) isSpam(lower string) bool {
	for _, m := range s.spam {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
