// Package places is a client for the Google Places Nearby Search API.
package places

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Places API root.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// Client searches for places around a coordinate.
type Client interface {
	// Nearby returns places within radiusM meters of (lat, lon).
	Nearby(ctx context.Context, lat, lon, radiusM float64) ([]Result, error)
}

// Result is one place from a Nearby Search response.
type Result struct {
	PlaceID string
	Name    string
	Types   []string
	Lat     float64
	Lon     float64
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps > 0 {
			burst := int(rps)
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

type client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	limiter    *rate.Limiter
}

// NewClient creates a Nearby Search client. Requests are not retried.
func NewClient(apiKey string, opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type nearbyResponse struct {
	Results []nearbyResult `json:"results"`
	Status  string         `json:"status"`
}

type nearbyResult struct {
	PlaceID  string   `json:"place_id"`
	Name     string   `json:"name"`
	Types    []string `json:"types"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

func (c *client) Nearby(ctx context.Context, lat, lon, radiusM float64) ([]Result, error) {
	if c.apiKey == "" {
		return nil, eris.New("places: google api key not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "places: rate limit")
	}

	params := url.Values{
		"location": {strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)},
		"radius":   {strconv.FormatFloat(radiusM, 'f', -1, 64)},
		"key":      {c.apiKey},
	}

	reqURL := c.baseURL + "/nearbysearch/json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "places: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "places: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("places: returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "places: read body")
	}

	var nr nearbyResponse
	if err := json.Unmarshal(body, &nr); err != nil {
		return nil, eris.Wrap(err, "places: parse response")
	}

	// ZERO_RESULTS and quota statuses are reported as an empty list.
	if nr.Status != "OK" {
		return []Result{}, nil
	}

	out := make([]Result, 0, len(nr.Results))
	for _, r := range nr.Results {
		out = append(out, Result{
			PlaceID: r.PlaceID,
			Name:    r.Name,
			Types:   r.Types,
			Lat:     r.Geometry.Location.Lat,
			Lon:     r.Geometry.Location.Lng,
		})
	}
	return out, nil
}
