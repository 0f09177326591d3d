// Package upstream provides the shared HTTP plumbing for every external
// service the resolver talks to: connection pooling, per-service rate
// limiting, User-Agent management and health checks.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/serendibstay/georesolve/pkg/tracing"
)

const (
	// DefaultUserAgent identifies us to Nominatim per its usage policy.
	DefaultUserAgent = "georesolve/0.1.0"

	// BrowserUserAgent is sent when following short links. Google's
	// redirector serves a consent interstitial to unknown agents, so
	// link-following requests masquerade as a desktop browser.
	BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// NominatimBaseURL is the public Nominatim geocoding endpoint.
	NominatimBaseURL = "https://nominatim.openstreetmap.org"

	// LinkInfoBaseURL is the authoritative short-link expansion service.
	LinkInfoBaseURL = "https://api.getlinkinfo.com"
)

var (
	// Global HTTP client with connection pooling.
	httpClient *http.Client

	// Rate limiters per external service.
	nominatimLimiter  *rate.Limiter
	linkInfoLimiter   *rate.Limiter
	completionLimiter *rate.Limiter

	userAgent     string
	userAgentLock sync.RWMutex

	// completionHost is set once the AI completion endpoint is configured;
	// it routes those requests onto the completion limiter.
	completionHost     string
	completionHostLock sync.RWMutex
)

func init() {
	httpClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 30 * time.Second,
	}

	initRateLimiters()
	SetUserAgent(DefaultUserAgent)
}

func initRateLimiters() {
	// Nominatim's usage policy caps anonymous clients at one request per
	// second. The others default conservatively.
	nominatimLimiter = rate.NewLimiter(rate.Limit(1), 1)
	linkInfoLimiter = rate.NewLimiter(rate.Limit(2), 2)
	completionLimiter = rate.NewLimiter(rate.Limit(1), 2)
}

// UpdateNominatimRateLimits replaces the Nominatim rate limiter.
func UpdateNominatimRateLimits(rps float64, burst int) {
	nominatimLimiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// UpdateLinkInfoRateLimits replaces the link-info rate limiter.
func UpdateLinkInfoRateLimits(rps float64, burst int) {
	linkInfoLimiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// UpdateCompletionRateLimits replaces the AI completion rate limiter.
func UpdateCompletionRateLimits(rps float64, burst int) {
	completionLimiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// SetUserAgent sets the User-Agent string sent on rate-limited requests.
func SetUserAgent(ua string) {
	userAgentLock.Lock()
	defer userAgentLock.Unlock()
	userAgent = ua
}

// GetUserAgent returns the current User-Agent string.
func GetUserAgent() string {
	userAgentLock.RLock()
	defer userAgentLock.RUnlock()
	return userAgent
}

// SetCompletionEndpoint registers the AI completion base URL so its host is
// routed onto the completion rate limiter.
func SetCompletionEndpoint(baseURL string) {
	completionHostLock.Lock()
	defer completionHostLock.Unlock()
	completionHost = hostFromURL(baseURL)
}

func getCompletionHost() string {
	completionHostLock.RLock()
	defer completionHostLock.RUnlock()
	return completionHost
}

// GetClient returns the pooled HTTP client.
func GetClient() *http.Client {
	return httpClient
}

func hostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Host
}

// serviceForRequest maps a request to the external service it targets.
// Unknown hosts (short-link destinations) get no rate limiting.
func serviceForRequest(req *http.Request) (string, *rate.Limiter) {
	switch req.URL.Host {
	case hostFromURL(NominatimBaseURL):
		return tracing.ServiceNominatim, nominatimLimiter
	case hostFromURL(LinkInfoBaseURL):
		return tracing.ServiceLinkInfo, linkInfoLimiter
	case getCompletionHost():
		if req.URL.Host == "" {
			return "", nil
		}
		return tracing.ServiceCompletion, completionLimiter
	default:
		return "", nil
	}
}

// waitForRateLimit blocks until the service limiter for the request admits
// it, recording the wait in the active span.
func waitForRateLimit(ctx context.Context, req *http.Request) error {
	service, limiter := serviceForRequest(req)
	if limiter == nil {
		return nil
	}

	if !limiter.Allow() {
		startWait := time.Now()

		tracing.AddEvent(ctx, "rate_limit_wait",
			trace.WithAttributes(
				attribute.String(tracing.AttrRateLimitService, service),
			),
		)

		err := limiter.Wait(ctx)

		waitDuration := time.Since(startWait)
		tracing.SetAttributes(ctx,
			attribute.String(tracing.AttrRateLimitService, service),
			attribute.Int64(tracing.AttrRateLimitWaitMs, waitDuration.Milliseconds()),
		)

		if err != nil {
			return err
		}
	}

	return nil
}

// DoRequest performs an HTTP request with rate limiting and the configured
// User-Agent. Requests that already carry a User-Agent header keep it.
func DoRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", GetUserAgent())
	}

	if err := waitForRateLimit(ctx, req); err != nil {
		return nil, err
	}

	return httpClient.Do(req)
}

// NewRequest creates a request with the configured User-Agent already set.
func NewRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", GetUserAgent())
	return req, nil
}

// CheckNominatimHealth checks whether Nominatim is reachable.
func CheckNominatimHealth() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, NominatimBaseURL+"/status", nil)
	if err != nil {
		return fmt.Errorf("failed to create nominatim health check request: %w", err)
	}

	resp, err := DoRequest(ctx, req)
	if err != nil {
		return fmt.Errorf("nominatim health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nominatim health check returned status %d", resp.StatusCode)
	}

	return nil
}

// CheckLinkInfoHealth checks whether the link-info service is reachable.
// The service has no status endpoint; any non-5xx answer counts.
func CheckLinkInfoHealth() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, LinkInfoBaseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create link-info health check request: %w", err)
	}

	resp, err := DoRequest(ctx, req)
	if err != nil {
		return fmt.Errorf("link-info health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("link-info health check returned status %d", resp.StatusCode)
	}

	return nil
}
