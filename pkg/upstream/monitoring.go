package upstream

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// MonitoringHooks defines hooks for observing outbound HTTP traffic.
type MonitoringHooks struct {
	// OnRequest is called before making an HTTP request
	OnRequest func(service, operation string)

	// OnResponse is called after receiving an HTTP response
	OnResponse func(service, operation string, duration time.Duration, success bool)

	// OnRateLimit is called when a rate limit is encountered
	OnRateLimit func(service string, waitTime time.Duration)

	// OnError is called when an error occurs
	OnError func(service, errorType string)
}

var (
	globalHooks *MonitoringHooks
	hooksMutex  sync.RWMutex
)

// SetMonitoringHooks sets global monitoring hooks.
func SetMonitoringHooks(hooks *MonitoringHooks) {
	hooksMutex.Lock()
	defer hooksMutex.Unlock()
	globalHooks = hooks
}

func getMonitoringHooks() *MonitoringHooks {
	hooksMutex.RLock()
	defer hooksMutex.RUnlock()
	return globalHooks
}

// MonitoredDoRequest performs an HTTP request with monitoring hooks around
// rate limiting and the request itself.
func MonitoredDoRequest(ctx context.Context, req *http.Request, operation string) (*http.Response, error) {
	service, _ := serviceForRequest(req)
	if service == "" {
		service = "external"
	}

	hooks := getMonitoringHooks()

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", GetUserAgent())
	}

	start := time.Now()

	if err := waitForRateLimit(ctx, req); err != nil {
		if hooks != nil && hooks.OnError != nil {
			hooks.OnError(service, "rate_limit_wait_error")
		}
		return nil, err
	}

	// Only significant waits are worth reporting.
	waitTime := time.Since(start)
	if waitTime > 100*time.Millisecond {
		if hooks != nil && hooks.OnRateLimit != nil {
			hooks.OnRateLimit(service, waitTime)
		}
	}

	// OnRequest fires after the limiter so every start is paired with an
	// OnResponse even when the wait is cancelled.
	if hooks != nil && hooks.OnRequest != nil {
		hooks.OnRequest(service, operation)
	}

	requestStart := time.Now()
	resp, err := httpClient.Do(req)
	duration := time.Since(requestStart)

	success := err == nil && resp != nil && resp.StatusCode < 400

	if hooks != nil && hooks.OnResponse != nil {
		hooks.OnResponse(service, operation, duration, success)
	}

	if err != nil && hooks != nil && hooks.OnError != nil {
		hooks.OnError(service, "request_error")
	}

	return resp, err
}
