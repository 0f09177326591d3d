package tracing

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for MCP operations
const (
	// MCP tool attributes
	AttrMCPToolName     = "mcp.tool.name"
	AttrMCPToolStatus   = "mcp.tool.status"
	AttrMCPToolDuration = "mcp.tool.duration_ms"
	AttrMCPResultSize   = "mcp.tool.result_size"

	// External service attributes
	AttrServiceName      = "geo.service.name"
	AttrServiceOperation = "geo.service.operation"
	AttrServiceURL       = "geo.service.url"
	AttrServiceStatus    = "geo.service.status"

	// Resolution attributes
	AttrResolveSource     = "geo.resolve.source"
	AttrResolveConfidence = "geo.resolve.confidence"
	AttrShortLinkStrategy = "geo.shortlink.strategy"
	AttrReferenceTier     = "geo.reference.tier"

	// Cache attributes
	AttrCacheType = "geo.cache.type"
	AttrCacheHit  = "geo.cache.hit"
	AttrCacheKey  = "geo.cache.key"

	// Rate limiting attributes
	AttrRateLimitService = "geo.ratelimit.service"
	AttrRateLimitWaitMs  = "geo.ratelimit.wait_ms"

	// HTTP transport attributes
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPPath       = "http.path"
	AttrHTTPSessionID  = "http.session_id"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Status values
const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusTimeout     = "timeout"
	StatusRateLimited = "rate_limited"
)

// Service names
const (
	ServiceNominatim  = "nominatim"
	ServiceLinkInfo   = "linkinfo"
	ServiceCompletion = "completion"
)

// Cache types
const (
	CacheTypeGeocode   = "geocode"
	CacheTypeShortLink = "shortlink"
)

// Helper functions for common attributes

// MCPToolAttributes returns attributes for MCP tool execution
func MCPToolAttributes(toolName string, status string, durationMs int64, resultSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrMCPToolName, toolName),
		attribute.String(AttrMCPToolStatus, status),
		attribute.Int64(AttrMCPToolDuration, durationMs),
		attribute.Int(AttrMCPResultSize, resultSize),
	}
}

// ServiceAttributes returns attributes for external service calls
func ServiceAttributes(service, operation, url string, status int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrServiceName, service),
		attribute.String(AttrServiceOperation, operation),
		attribute.String(AttrServiceURL, url),
		attribute.Int(AttrServiceStatus, status),
	}
}

// CacheAttributes returns attributes for cache operations
func CacheAttributes(cacheType string, hit bool, key string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCacheType, cacheType),
		attribute.Bool(AttrCacheHit, hit),
		attribute.String(AttrCacheKey, key),
	}
}

// ErrorAttributes returns attributes for errors
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, "error"),
		attribute.String(AttrErrorMessage, err.Error()),
	}
}
