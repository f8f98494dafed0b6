// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package geocode resolves cafe addresses to coordinates and a place ID
// through the Google Geocoding API. Found results are cached for the
// geocoding tier TTL; an unresolvable address is a valid result, not an error.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/time/rate"

	"github.com/pdiddy/cafe-collector/internal/cache"
	"github.com/pdiddy/cafe-collector/internal/httputil"
	"github.com/pdiddy/cafe-collector/internal/metrics"
	"github.com/pdiddy/cafe-collector/internal/retry"
	"github.com/pdiddy/cafe-collector/pkg/types"
)

// geocodeURL is the Geocoding API endpoint. Package-level var for test substitution.
var geocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

const serviceName = "geocoding"

// Result is the outcome of resolving one address. Found is false when the
// service has no match or geocoding is disabled.
type Result struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	PlaceID string  `json:"place_id"`
	Found   bool    `json:"found"`
}

// Client resolves addresses. A Client with no API key is disabled and
// reports every address as not found.
type Client struct {
	apiKey    string
	userAgent string
	endpoint  string
	http      *http.Client
	store     cache.Store
	ttl       time.Duration
	policy    retry.Policy
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	warnOnce  sync.Once
}

// NewClient builds a Client from configuration. store may be nil.
func NewClient(cfg types.GeocodeConfig, store cache.Store, ttl time.Duration, policy retry.Policy, m *metrics.Metrics) *Client {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60)
	}
	return &Client{
		apiKey:    cfg.APIKey,
		userAgent: cfg.UserAgent,
		endpoint:  cfg.Endpoint,
		http:      &http.Client{Timeout: cfg.Timeout},
		store:     store,
		ttl:       ttl,
		policy:    policy,
		limiter:   rate.NewLimiter(limit, 1),
		metrics:   m,
	}
}

// Enabled reports whether the client has an API key.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// Resolve returns the location of address in city. The city is part of
// both the query and the cache key. Transient failures are retried by the
// policy; a denied or invalid request is returned as an error.
func (c *Client) Resolve(ctx context.Context, address, city string) (Result, error) {
	if !c.Enabled() {
		c.warnOnce.Do(func() {
			slog.Warn("geocoding disabled: no Google Maps API key configured")
		})
		return Result{}, nil
	}

	query := Query(address, city)
	key := NormalizeAddress(query)
	if key == "" {
		return Result{}, nil
	}
	if c.store != nil {
		hit, ok := cache.GetJSON[Result](ctx, c.store, cache.TierGeocoding, key)
		c.metrics.CacheLookup(string(cache.TierGeocoding), ok)
		if ok {
			return hit, nil
		}
	}

	res, err := retry.Do(ctx, c.policy, "geocode", func(ctx context.Context) (Result, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
		start := time.Now()
		res, err := c.lookup(ctx, query)
		c.metrics.RemoteCall(serviceName, err, time.Since(start))
		return res, err
	}, retry.DefaultClassifier)
	if err != nil {
		return Result{}, fmt.Errorf("geocoding %q: %w", query, err)
	}

	if !res.Found {
		slog.Warn("no coordinates found", "address", query)
		return res, nil
	}
	if c.store != nil {
		if err := cache.PutJSON(ctx, c.store, cache.TierGeocoding, key, res, c.ttl); err != nil {
			slog.Warn("caching geocoding result", "address", query, "error", err)
		}
	}
	return res, nil
}

type apiResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		PlaceID  string `json:"place_id"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (c *Client) lookup(ctx context.Context, address string) (Result, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", c.apiKey)

	var headers map[string]string
	if c.userAgent != "" {
		headers = map[string]string{"User-Agent": c.userAgent}
	}
	endpoint := c.endpoint
	if endpoint == "" {
		endpoint = geocodeURL
	}
	data, err := httputil.DoJSON(ctx, c.http, serviceName, http.MethodGet, endpoint+"?"+q.Encode(), headers, nil)
	if err != nil {
		return Result{}, err
	}

	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Result{}, types.Malformed("decoding geocoding response: %v", err)
	}

	switch resp.Status {
	case "OK":
		if len(resp.Results) == 0 {
			return Result{}, nil
		}
		r := resp.Results[0]
		return Result{
			Lat:     r.Geometry.Location.Lat,
			Lon:     r.Geometry.Location.Lng,
			PlaceID: r.PlaceID,
			Found:   true,
		}, nil
	case "ZERO_RESULTS":
		return Result{}, nil
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return Result{}, &types.RemoteError{Service: serviceName, StatusCode: http.StatusOK, Message: resp.Status, Kind: types.ErrTransient}
	case "REQUEST_DENIED":
		return Result{}, &types.RemoteError{Service: serviceName, StatusCode: http.StatusOK, Message: resp.Status + ": " + resp.ErrorMessage, Kind: types.ErrFatalConfig}
	default:
		return Result{}, &types.RemoteError{Service: serviceName, StatusCode: http.StatusOK, Message: resp.Status + ": " + resp.ErrorMessage, Kind: types.ErrRequest}
	}
}

// Query appends city to address unless the address already names it.
// An empty address stays empty.
func Query(address, city string) string {
	address = strings.TrimSpace(address)
	city = strings.TrimSpace(city)
	if address == "" || city == "" || strings.Contains(strings.ToLower(address), strings.ToLower(city)) {
		return address
	}
	return address + ", " + city
}

// NormalizeAddress lowercases address, collapses whitespace and trims
// surrounding punctuation so trivially different spellings share a cache key.
func NormalizeAddress(address string) string {
	fields := strings.Fields(strings.ToLower(address))
	s := strings.Join(fields, " ")
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}
