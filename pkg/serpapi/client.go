// Package serpapi is a thin client for SerpApi's Google Maps search and
// review engines. Response shapes are provider-owned, so every optional
// field is decoded leniently.
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/competitor-intel/internal/resilience"
)

const (
	defaultBaseURL = "https://serpapi.com"

	// maxReviewPages bounds pagination when rating bounds filter out most of
	// a page.
	maxReviewPages = 3

	// reviewPageSize is the largest num accepted on follow-up review pages.
	reviewPageSize = 20

	noResultsMarker = "hasn't returned any results"
)

// Client performs SerpApi operations.
type Client interface {
	SearchBusinesses(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	FetchReviews(ctx context.Context, req ReviewsRequest) (*ReviewsResponse, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second. Zero or negative disables
// the limiter.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLanguage sets the default hl parameter.
func WithLanguage(lang string) Option {
	return func(c *httpClient) {
		c.language = lang
	}
}

type httpClient struct {
	apiKey   string
	baseURL  string
	language string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a SerpApi client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		language: "en",
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchBusinesses(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, resilience.NewPermanentError(eris.New("serpapi: search query is empty"), 0)
	}

	params := url.Values{}
	params.Set("engine", "google_maps")
	params.Set("type", "search")
	if req.Latitude != nil && req.Longitude != nil {
		params.Set("q", query)
		params.Set("ll", fmt.Sprintf("@%f,%f,14z", *req.Latitude, *req.Longitude))
	} else {
		params.Set("q", strings.TrimSpace(query+" "+req.Location))
	}
	params.Set("hl", c.lang(req.Language))
	if req.Start > 0 {
		params.Set("start", strconv.Itoa(req.Start))
	}

	var result SearchResponse
	if err := c.get(ctx, params, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		if strings.Contains(result.Error, noResultsMarker) {
			return &SearchResponse{}, nil
		}
		return nil, resilience.NewPermanentError(eris.Errorf("serpapi: search error: %s", result.Error), 0)
	}

	return &result, nil
}

// FetchReviews reads up to req.Num reviews matching the rating bounds,
// following next_page_token for at most maxReviewPages pages.
func (c *httpClient) FetchReviews(ctx context.Context, req ReviewsRequest) (*ReviewsResponse, error) {
	if req.PlaceID == "" {
		return nil, resilience.NewPermanentError(eris.New("serpapi: place id is empty"), 0)
	}
	out := &ReviewsResponse{}
	if req.Num <= 0 {
		return out, nil
	}

	token := ""
	for out.Pages < maxReviewPages {
		params := url.Values{}
		params.Set("engine", "google_maps_reviews")
		params.Set("place_id", req.PlaceID)
		params.Set("hl", c.lang(req.Language))
		if req.SortBy != "" {
			params.Set("sort_by", string(req.SortBy))
		}
		// num is rejected on the first page.
		if token != "" {
			params.Set("next_page_token", token)
			params.Set("num", strconv.Itoa(reviewPageSize))
		}

		var page reviewsPage
		if err := c.get(ctx, params, &page); err != nil {
			return nil, err
		}
		out.Pages++
		if page.Error != "" {
			if strings.Contains(page.Error, noResultsMarker) {
				break
			}
			return nil, resilience.NewPermanentError(eris.Errorf("serpapi: reviews error: %s", page.Error), 0)
		}

		for _, r := range page.Reviews {
			if !r.withinBounds(req.MinRating, req.MaxRating) {
				continue
			}
			out.Reviews = append(out.Reviews, r)
			if len(out.Reviews) >= req.Num {
				return out, nil
			}
		}

		token = page.Pagination.NextPageToken
		if token == "" || len(page.Reviews) == 0 {
			break
		}
	}

	return out, nil
}

func (c *httpClient) get(ctx context.Context, params url.Values, dest any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "serpapi: rate limit wait")
		}
	}

	params.Set("api_key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "serpapi: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "serpapi: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "serpapi: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return resilience.FromHTTPStatus(
			eris.Errorf("serpapi: unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200)),
			resp.StatusCode,
		)
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return resilience.NewPermanentError(eris.Wrap(err, "serpapi: unmarshal response"), resp.StatusCode)
	}
	return nil
}

func (c *httpClient) lang(override string) string {
	if override != "" {
		return override
	}
	return c.language
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
