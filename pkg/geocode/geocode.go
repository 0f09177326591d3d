// Package geocode resolves free-text place names to coordinates through
// Nominatim. Results are cached and identical in-flight lookups are
// collapsed, since rate limits make every upstream request expensive.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/serendibstay/georesolve/pkg/core"
	"github.com/serendibstay/georesolve/pkg/geo"
	"github.com/serendibstay/georesolve/pkg/tracing"
	"github.com/serendibstay/georesolve/pkg/upstream"
)

const (
	// DefaultCountryCodes biases search results toward Sri Lanka.
	DefaultCountryCodes = "lk"

	defaultCacheSize = 512
	defaultCacheTTL  = 6 * time.Hour
)

// Result is a geocoded place.
type Result struct {
	Location    geo.Location `json:"location"`
	DisplayName string       `json:"displayName"`
}

// Client queries Nominatim's search endpoint.
type Client struct {
	logger       *slog.Logger
	baseURL      string
	countryCodes string
	cache        *expirable.LRU[string, *Result]
	group        singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Nominatim endpoint. Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithCountryCodes overrides the country bias filter. Empty disables it.
func WithCountryCodes(codes string) Option {
	return func(c *Client) { c.countryCodes = codes }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a geocoding client with caching enabled.
func NewClient(opts ...Option) *Client {
	c := &Client{
		logger:       slog.Default(),
		baseURL:      upstream.NominatimBaseURL,
		countryCodes: DefaultCountryCodes,
		cache:        expirable.NewLRU[string, *Result](defaultCacheSize, nil, defaultCacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// nominatimPlace is the subset of a Nominatim search result we consume.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Search geocodes a free-text query and returns the best match. Returns a
// NO_RESULTS error when Nominatim finds nothing.
func (c *Client) Search(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.NewError(core.ErrEmptyParameter, "geocode query is empty")
	}

	key := strings.ToLower(query)
	if cached, ok := c.cache.Get(key); ok {
		tracing.SetAttributes(ctx, tracing.CacheAttributes(tracing.CacheTypeGeocode, true, key)...)
		return cached, nil
	}
	tracing.SetAttributes(ctx, tracing.CacheAttributes(tracing.CacheTypeGeocode, false, key)...)

	// Collapse concurrent lookups for the same place into one request.
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := c.fetch(ctx, query)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (c *Client) fetch(ctx context.Context, query string) (*Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	if c.countryCodes != "" {
		params.Set("countrycodes", c.countryCodes)
	}

	reqURL := c.baseURL + "/search?" + params.Encode()
	req, err := upstream.NewRequest(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, core.NewError(core.ErrInternalError, "failed to create geocode request")
	}

	start := time.Now()
	resp, err := upstream.MonitoredDoRequest(ctx, req, "search")
	if err != nil {
		c.logger.Error("geocode request failed", "query", query, "error", err)
		return nil, core.NewError(core.ErrNetworkError, "geocoding service unreachable").
			WithQuery(query).
			WithGuidance("Check connectivity to Nominatim and try again.")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.ServiceError("Nominatim", resp.StatusCode,
			fmt.Sprintf("search returned status %d", resp.StatusCode)).WithQuery(query)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, core.NewError(core.ErrNetworkError, "failed to read geocode response").WithQuery(query)
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, core.NewError(core.ErrParseError, "invalid geocode response").WithQuery(query)
	}
	if len(places) == 0 {
		return nil, core.NewError(core.ErrNoResults, "no geocoding results").
			WithQuery(query).
			WithGuidance("Try a broader place name or drop building-level detail.")
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, core.NewError(core.ErrParseError, "invalid latitude in geocode response").WithQuery(query)
	}
	lng, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, core.NewError(core.ErrParseError, "invalid longitude in geocode response").WithQuery(query)
	}
	if err := geo.ValidateCoords(lat, lng); err != nil {
		return nil, core.NewError(core.ErrParseError, "out of range coordinates in geocode response").WithQuery(query)
	}

	c.logger.Debug("geocoded place",
		"query", query,
		"display_name", places[0].DisplayName,
		"duration", time.Since(start),
	)
	tracing.SetAttributes(ctx,
		attribute.String(tracing.AttrServiceName, tracing.ServiceNominatim),
		attribute.String(tracing.AttrServiceOperation, "search"),
	)

	return &Result{
		Location:    geo.Location{Latitude: lat, Longitude: lng},
		DisplayName: places[0].DisplayName,
	}, nil
}
