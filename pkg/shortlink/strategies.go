package shortlink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/serendibstay/georesolve/pkg/core"
	"github.com/serendibstay/georesolve/pkg/upstream"
)

const (
	// maxRedirects caps the redirect chain when following directly.
	maxRedirects = 10

	maxHTMLBytes = 2 << 20
)

var (
	canonicalPattern  = regexp.MustCompile(`(?i)<link[^>]*rel=["']canonical["'][^>]*href=["']([^"']+)["']`)
	ogURLPattern      = regexp.MustCompile(`(?i)<meta[^>]*property=["']og:url["'][^>]*content=["']([^"']+)["']`)
	jsRedirectPattern = regexp.MustCompile(`(?i)window\.location\.href\s*=\s*["']([^"']+)["']`)
)

// LinkInfoStrategy asks a trusted intermediary service to resolve the
// redirect chain server-side. Preferred because it is deterministic and
// unaffected by consent interstitials.
type LinkInfoStrategy struct {
	BaseURL string
}

// NewLinkInfoStrategy creates the strategy against the public service.
func NewLinkInfoStrategy() *LinkInfoStrategy {
	return &LinkInfoStrategy{BaseURL: upstream.LinkInfoBaseURL}
}

func (s *LinkInfoStrategy) Name() string      { return "link-info" }
func (s *LinkInfoStrategy) Approximate() bool { return false }

func (s *LinkInfoStrategy) Expand(ctx context.Context, shortURL string) (string, error) {
	reqURL := s.BaseURL + "/api/v1/link-info?url=" + url.QueryEscape(shortURL)
	req, err := upstream.NewRequest(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := upstream.MonitoredDoRequest(ctx, req, "link_info")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", core.ServiceError("link-info", resp.StatusCode,
			fmt.Sprintf("link-info returned status %d", resp.StatusCode))
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxHTMLBytes)).Decode(&payload); err != nil {
		return "", core.NewError(core.ErrParseError, "invalid link-info response")
	}
	if payload.URL == "" {
		return "", core.NewError(core.ErrNoResults, "link-info returned no URL")
	}
	return payload.URL, nil
}

// FollowStrategy issues a GET with a browser User-Agent and follows the
// redirect chain. A consent interstitial as the final destination is a
// failure, not an expansion.
type FollowStrategy struct {
	client *http.Client
}

// NewFollowStrategy creates the strategy with a bounded redirect chain.
func NewFollowStrategy() *FollowStrategy {
	return &FollowStrategy{
		client: &http.Client{
			Transport: upstream.GetClient().Transport,
			Timeout:   upstream.GetClient().Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

func (s *FollowStrategy) Name() string      { return "redirect-follow" }
func (s *FollowStrategy) Approximate() bool { return false }

func (s *FollowStrategy) Expand(ctx context.Context, shortURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", upstream.BrowserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	// The body is irrelevant; only the final URL matters.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	finalURL := resp.Request.URL.String()
	if strings.Contains(finalURL, "consent.google.com") {
		return "", core.NewError(core.ErrNoResults, "redirect chain ended at a consent interstitial")
	}
	if finalURL == shortURL {
		return "", core.NewError(core.ErrNoResults, "no redirect occurred")
	}
	return finalURL, nil
}

// MetaProbeStrategy fetches the page body and looks for a canonical link,
// an og:url meta tag or a JavaScript redirect. Catches redirectors that
// navigate client-side instead of sending an HTTP redirect.
type MetaProbeStrategy struct {
	client *http.Client
}

// NewMetaProbeStrategy creates the probe strategy.
func NewMetaProbeStrategy() *MetaProbeStrategy {
	return &MetaProbeStrategy{client: upstream.GetClient()}
}

func (s *MetaProbeStrategy) Name() string      { return "html-meta" }
func (s *MetaProbeStrategy) Approximate() bool { return false }

func (s *MetaProbeStrategy) Expand(ctx context.Context, shortURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", upstream.BrowserUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", core.ServiceError("html-meta", resp.StatusCode,
			fmt.Sprintf("page fetch returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTMLBytes))
	if err != nil {
		return "", err
	}
	html := string(body)

	for _, pattern := range []*regexp.Regexp{canonicalPattern, ogURLPattern, jsRedirectPattern} {
		if m := pattern.FindStringSubmatch(html); m != nil && m[1] != "" && m[1] != shortURL {
			return m[1], nil
		}
	}
	return "", core.NewError(core.ErrNoResults, "no target URL found in page")
}

// urlExpander is the part of the AI client this package needs.
type urlExpander interface {
	Enabled() bool
	ExpandShortURL(ctx context.Context, shortURL string) (string, error)
}

// AIStrategy asks a completion model to resolve the link. Last resort; its
// output is marked approximate because the model can fabricate URLs.
type AIStrategy struct {
	expander urlExpander
}

// NewAIStrategy wraps a completion client as a cascade strategy.
func NewAIStrategy(expander urlExpander) *AIStrategy {
	return &AIStrategy{expander: expander}
}

func (s *AIStrategy) Name() string      { return "ai-completion" }
func (s *AIStrategy) Approximate() bool { return true }

func (s *AIStrategy) Expand(ctx context.Context, shortURL string) (string, error) {
	if s.expander == nil || !s.expander.Enabled() {
		return "", core.NewError(core.ErrServiceUnavailable, "completion client not configured")
	}
	return s.expander.ExpandShortURL(ctx, shortURL)
}

// DefaultStrategies returns the production cascade order. The expander may
// be nil, which disables the AI tier.
func DefaultStrategies(expander urlExpander) []Strategy {
	strategies := []Strategy{
		NewLinkInfoStrategy(),
		NewFollowStrategy(),
		NewMetaProbeStrategy(),
	}
	if expander != nil {
		strategies = append(strategies, NewAIStrategy(expander))
	}
	return strategies
}
