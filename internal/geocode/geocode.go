// Package geocode resolves free-text place names to coordinates through a
// Nominatim-compatible search endpoint. It exists only to help a user locate
// coordinates for the prayer-time calculation; failures here never affect
// schedule expansion.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	appLog "github.com/zakhtar8/aamalcalendar/internal/log"
)

// MinQueryLen is the shortest query the client will forward upstream.
const MinQueryLen = 2

const (
	maxResults = 5
	cacheTTL   = 10 * time.Minute
	userAgent  = "aamalcalendar/1.0 (self-hosted hijri calendar)"
)

// ErrQueryTooShort is returned for queries under MinQueryLen runes.
var ErrQueryTooShort = errors.New("geocode: query must be at least 2 characters")

// ErrUpstream wraps any upstream service failure so handlers can map it to a
// gateway error.
var ErrUpstream = errors.New("geocode: upstream search failed")

// Result is one geocoding candidate.
type Result struct {
	DisplayName string  `json:"display_name"`
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lon"`
}

// nominatimResult matches the upstream JSON shape, which encodes coordinates
// as strings.
type nominatimResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Client queries an upstream search endpoint with a short per-query cache so
// repeated lookups while the user types do not hammer the service.
type Client struct {
	endpoint string
	client   *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	results   []Result
	updatedAt time.Time
}

// NewClient creates a geocoding client for the given search endpoint
// (e.g. "https://nominatim.openstreetmap.org/search").
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cache: make(map[string]cacheEntry),
	}
}

// Search returns up to 5 candidates for the query.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinQueryLen {
		return nil, ErrQueryTooShort
	}

	key := strings.ToLower(query)
	now := time.Now()

	c.mu.Lock()
	if ce, ok := c.cache[key]; ok && now.Sub(ce.updatedAt) < cacheTTL {
		results := ce.results
		c.mu.Unlock()
		return results, nil
	}
	c.mu.Unlock()

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: bad endpoint: %v", ErrUpstream, err)
	}
	q := u.Query()
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(maxResults))
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("User-Agent", userAgent)

	appLog.Info("geocode lookup", "endpoint", redactEndpoint(c.endpoint), "query_len", len(query))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrUpstream, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	var raw []nominatimResult
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		if len(results) == maxResults {
			break
		}
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		results = append(results, Result{
			DisplayName: r.DisplayName,
			Latitude:    lat,
			Longitude:   lon,
		})
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{results: results, updatedAt: time.Now()}
	c.mu.Unlock()

	return results, nil
}

// redactEndpoint strips path and query from the endpoint for logging; some
// deployments put API keys in the query string.
func redactEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host
}
