// Package shortlink expands shortened map URLs. Expansion is a cascade of
// independent strategies tried strictly in order, stopping at the first
// success: an authoritative link-info service, a direct redirect-following
// GET with a browser User-Agent, an HTML meta probe for pages that redirect
// client-side, and finally an AI completion whose answer is tagged as
// approximate because it cannot be cross-checked.
package shortlink

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"

	"github.com/serendibstay/georesolve/pkg/core"
	"github.com/serendibstay/georesolve/pkg/tracing"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 24 * time.Hour

	// defaultStrategyTimeout bounds each strategy so one hung upstream
	// cannot stall the whole cascade.
	defaultStrategyTimeout = 10 * time.Second
)

// shortLinkHosts are the redirector domains we treat as expandable.
var shortLinkHosts = []string{
	"maps.app.goo.gl",
	"goo.gl",
	"g.co",
}

// IsShortLink reports whether the URL belongs to a known redirector domain.
func IsShortLink(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, host := range shortLinkHosts {
		if strings.Contains(lower, host+"/") || strings.HasSuffix(lower, host) {
			return true
		}
	}
	return false
}

// Expansion is a successfully expanded short link.
type Expansion struct {
	URL      string `json:"url"`
	Strategy string `json:"strategy"`
	// Approximate marks expansions produced by the AI strategy, which can
	// fabricate a plausible but wrong URL.
	Approximate bool `json:"approximate,omitempty"`
}

// Strategy is one way of expanding a short URL. Implementations treat their
// own network and parse failures as ordinary errors; the cascade advances on
// any error.
type Strategy interface {
	Name() string
	Expand(ctx context.Context, shortURL string) (string, error)
	// Approximate reports whether results from this strategy may be
	// fabricated and must carry a low-confidence tag.
	Approximate() bool
}

// Cascade tries strategies in order and caches successful expansions.
type Cascade struct {
	logger     *slog.Logger
	strategies []Strategy
	cache      *expirable.LRU[string, *Expansion]
	timeout    time.Duration
}

// CascadeOption configures a Cascade.
type CascadeOption func(*Cascade)

// WithLogger sets the cascade logger.
func WithLogger(logger *slog.Logger) CascadeOption {
	return func(c *Cascade) { c.logger = logger }
}

// WithStrategyTimeout overrides the per-strategy timeout.
func WithStrategyTimeout(d time.Duration) CascadeOption {
	return func(c *Cascade) { c.timeout = d }
}

// NewCascade builds a cascade over the given strategies, tried in order.
func NewCascade(strategies []Strategy, opts ...CascadeOption) *Cascade {
	c := &Cascade{
		logger:     slog.Default(),
		strategies: strategies,
		cache:      expirable.NewLRU[string, *Expansion](defaultCacheSize, nil, defaultCacheTTL),
		timeout:    defaultStrategyTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Expand runs the cascade. All strategies failing yields a
// SHORT_LINK_UNRESOLVED error; the caller should ask for the expanded URL
// rather than guess.
func (c *Cascade) Expand(ctx context.Context, shortURL string) (*Expansion, error) {
	shortURL = strings.TrimSpace(shortURL)
	if shortURL == "" {
		return nil, core.NewError(core.ErrEmptyParameter, "short URL is empty")
	}

	if cached, ok := c.cache.Get(shortURL); ok {
		tracing.SetAttributes(ctx, tracing.CacheAttributes(tracing.CacheTypeShortLink, true, shortURL)...)
		return cached, nil
	}
	tracing.SetAttributes(ctx, tracing.CacheAttributes(tracing.CacheTypeShortLink, false, shortURL)...)

	for _, s := range c.strategies {
		expanded, err := c.tryStrategy(ctx, s, shortURL)
		if err != nil {
			c.logger.Debug("expansion strategy failed",
				"strategy", s.Name(),
				"short_url", shortURL,
				"error", err,
			)
			continue
		}
		if expanded == "" || expanded == shortURL {
			c.logger.Debug("expansion strategy returned nothing new",
				"strategy", s.Name(),
				"short_url", shortURL,
			)
			continue
		}

		result := &Expansion{
			URL:         expanded,
			Strategy:    s.Name(),
			Approximate: s.Approximate(),
		}
		c.logger.Info("short link expanded",
			"strategy", s.Name(),
			"short_url", shortURL,
			"approximate", result.Approximate,
		)
		tracing.SetAttributes(ctx, attribute.String(tracing.AttrShortLinkStrategy, s.Name()))

		// Fabrication risk makes AI expansions not worth pinning in the
		// cache.
		if !result.Approximate {
			c.cache.Add(shortURL, result)
		}
		return result, nil
	}

	return nil, core.NewError(core.ErrShortLinkUnresolved, "all expansion strategies failed").
		WithQuery(shortURL).
		WithGuidance("Open the link in a browser and supply the expanded URL manually.")
}

func (c *Cascade) tryStrategy(ctx context.Context, s Strategy, shortURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return s.Expand(ctx, shortURL)
}
