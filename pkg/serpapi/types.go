package serpapi

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// SortOrder is a google_maps_reviews sort_by value.
type SortOrder string

const (
	SortNewest     SortOrder = "newestFirst"
	SortRatingHigh SortOrder = "ratingHigh"
	SortRatingLow  SortOrder = "ratingLow"
	SortRelevance  SortOrder = "qualityScore"
)

// SearchRequest asks for businesses matching Query near Location.
type SearchRequest struct {
	Query    string
	Location string
	// Latitude/Longitude optionally pin the map centre ("@lat,lng,14z").
	Latitude  *float64
	Longitude *float64
	Language  string
	Start     int
}

// SearchResponse holds the businesses found by a google_maps search.
type SearchResponse struct {
	Places []Place `json:"local_results"`
	// Place is set instead of Places when the query resolves to a single business.
	Place *Place `json:"place_results,omitempty"`
	Error string `json:"error,omitempty"`
}

// Results returns the local results, falling back to the single place result.
func (r *SearchResponse) Results() []Place {
	if r == nil {
		return nil
	}
	if len(r.Places) == 0 && r.Place != nil {
		return []Place{*r.Place}
	}
	return r.Places
}

// Place is one business from a google_maps search.
type Place struct {
	PlaceID        string       `json:"place_id"`
	DataID         string       `json:"data_id"`
	Title          string       `json:"title"`
	Address        string       `json:"address"`
	GPSCoordinates *Coordinates `json:"gps_coordinates,omitempty"`
	Rating         *Number      `json:"rating,omitempty"`
	Reviews        *Number      `json:"reviews,omitempty"`
	Price          string       `json:"price,omitempty"`
	Type           string       `json:"type,omitempty"`
	Types          []string     `json:"types,omitempty"`
}

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Latitude  Number `json:"latitude"`
	Longitude Number `json:"longitude"`
}

// ExternalID returns the stable place id, or the data id when absent.
func (p Place) ExternalID() string {
	if p.PlaceID != "" {
		return p.PlaceID
	}
	return p.DataID
}

// RatingValue returns the average rating clamped to 0..5, or nil.
func (p Place) RatingValue() *float64 {
	if p.Rating == nil {
		return nil
	}
	v := math.Min(math.Max(p.Rating.Float(), 0), 5)
	return &v
}

// ReviewCount returns the provider's total review count, or nil.
func (p Place) ReviewCount() *int {
	if p.Reviews == nil || p.Reviews.Float() < 0 {
		return nil
	}
	v := p.Reviews.Int()
	return &v
}

// PriceLevel converts "$".."$$$$" (or a digit) into 1..4.
func (p Place) PriceLevel() *int {
	s := strings.TrimSpace(p.Price)
	if s == "" {
		return nil
	}
	n := strings.Count(s, "$")
	if n == 0 {
		parsed, err := strconv.Atoi(s)
		if err != nil {
			return nil
		}
		n = parsed
	}
	if n < 1 || n > 4 {
		return nil
	}
	return &n
}

// Categories returns Types plus Type, deduplicated, in provider order.
func (p Place) Categories() []string {
	seen := make(map[string]struct{}, len(p.Types)+1)
	var out []string
	for _, t := range append(append([]string{}, p.Types...), p.Type) {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ReviewsRequest asks for one page set of reviews for a business.
type ReviewsRequest struct {
	PlaceID  string
	SortBy   SortOrder
	Num      int
	Language string
	// MinRating/MaxRating bound the star rating (0 = unbounded). The provider
	// has no rating filter, so the client applies it.
	MinRating int
	MaxRating int
}

// ReviewsResponse holds reviews after rating bounds are applied.
type ReviewsResponse struct {
	Reviews []Review `json:"reviews"`
	// Pages is how many provider pages were read.
	Pages int `json:"-"`
}

type reviewsPage struct {
	Reviews    []Review `json:"reviews"`
	Pagination struct {
		NextPageToken string `json:"next_page_token"`
	} `json:"serpapi_pagination"`
	Error string `json:"error,omitempty"`
}

// Review is one review from google_maps_reviews.
type Review struct {
	User             ReviewUser `json:"user"`
	Rating           *Number    `json:"rating,omitempty"`
	Snippet          string     `json:"snippet"`
	ExtractedSnippet *struct {
		Original string `json:"original"`
	} `json:"extracted_snippet,omitempty"`
	ISODate string `json:"iso_date"`
	Date    string `json:"date,omitempty"`
	Likes   Number `json:"likes"`
}

// ReviewUser identifies a review author.
type ReviewUser struct {
	Name string `json:"name"`
}

// Text returns the snippet, falling back to the extracted original.
func (r Review) Text() string {
	if strings.TrimSpace(r.Snippet) != "" {
		return r.Snippet
	}
	if r.ExtractedSnippet != nil {
		return r.ExtractedSnippet.Original
	}
	return ""
}

// Stars returns the rating rounded to a whole star, or nil.
func (r Review) Stars() *int {
	if r.Rating == nil {
		return nil
	}
	v := int(math.Round(r.Rating.Float()))
	return &v
}

// PostedAt parses iso_date. A missing or malformed date yields the zero time.
func (r Review) PostedAt() time.Time {
	if r.ISODate == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, r.ISODate); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (r Review) withinBounds(minRating, maxRating int) bool {
	if minRating <= 0 && maxRating <= 0 {
		return true
	}
	stars := r.Stars()
	if stars == nil {
		return false
	}
	if minRating > 0 && *stars < minRating {
		return false
	}
	if maxRating > 0 && *stars > maxRating {
		return false
	}
	return true
}

// Number decodes a JSON number, a numeric string ("1,204", "4.5"), or null.
// Anything unparseable decodes as 0.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = Number(v)
	return nil
}

// Float returns n as a float64.
func (n Number) Float() float64 { return float64(n) }

// Int returns n rounded to the nearest integer.
func (n Number) Int() int { return int(math.Round(float64(n))) }

// NewNumber returns a pointer to v as a Number.
func NewNumber(v float64) *Number {
	n := Number(v)
	return &n
}
