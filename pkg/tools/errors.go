// Package tools provides the geo-reference MCP tool implementations.
package tools

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/serendibstay/georesolve/pkg/core"
)

// APIError represents an error from an upstream service, with information
// to help callers recover.
type APIError struct {
	Service     string // The service name (e.g., "Nominatim", "LinkInfo")
	StatusCode  int    // HTTP status code
	Message     string // Error message
	Recoverable bool   // Whether the error can be recovered from
	Guidance    string // Guidance for callers on how to recover
}

// Error implements the error interface and provides a formatted error message.
func (e *APIError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s API error (%d): %s. %s", e.Service, e.StatusCode, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s API error (%d): %s", e.Service, e.StatusCode, e.Message)
}

// Common error guidance messages
const (
	// Nominatim guidance
	GuidanceNominatimPlaceFormat = "Try a simpler place name, or add the town and 'Sri Lanka'."
	GuidanceNominatimRateLimit   = "Please try again in a few seconds."
	GuidanceNominatimTimeout     = "Check your internet connection and try again, or use a different place name."

	// Short link guidance
	GuidanceShortLinkUnresolved = "Open the link in a browser and paste the full URL it lands on."
	GuidanceShortLinkRateLimit  = "The link expansion service is busy. Please try again in a minute."

	// Plus code guidance
	GuidancePlusCodeTooShort = "Include the town name after the code, e.g. \"WFXW+2GR Mirissa\"."
	GuidanceOutOfRegion      = "The location is outside the service area. Check the reference for typos."

	// Generic guidance
	GuidanceGeneral      = "Please try again later or modify your request parameters."
	GuidanceNetworkError = "Check your internet connection and try again."
)

// NewAPIError creates a new APIError with appropriate guidance based on status code.
func NewAPIError(service string, statusCode int, message, guidance string) *APIError {
	if guidance == "" {
		switch statusCode {
		case http.StatusTooManyRequests:
			guidance = "Rate limit exceeded. Please try again in a few moments."
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			guidance = "The request timed out. Please try again."
		case http.StatusBadRequest:
			guidance = "The request was invalid. Check your parameters and try again."
		case http.StatusServiceUnavailable:
			guidance = "The service is temporarily unavailable. Please try again later."
		default:
			guidance = GuidanceGeneral
		}
	}

	return &APIError{
		Service:     service,
		StatusCode:  statusCode,
		Message:     message,
		Recoverable: statusCode != http.StatusBadRequest,
		Guidance:    guidance,
	}
}

// ErrorResponse returns a plain error tool result.
func ErrorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// ErrorResult converts any error into a tool result. Domain errors keep
// their code, query and guidance; anything else becomes a plain message.
func ErrorResult(err error) *mcp.CallToolResult {
	var mcpErr *core.MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr.ToMCPResult()
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return mcp.NewToolResultError(fmt.Sprintf("Error: %s\n\nGuidance: %s", apiErr.Message, apiErr.Guidance))
	}
	return mcp.NewToolResultError(err.Error())
}

// GetToolUsageExample returns an example JSON snippet for using a specific
// tool, for guidance when parameter validation fails.
func GetToolUsageExample(toolName string) string {
	examples := map[string]string{
		"resolve_location": `{
  "reference": "https://maps.app.goo.gl/oBmsHYQBu97yU4RN6"
}`,
		"expand_short_link": `{
  "url": "https://maps.app.goo.gl/oBmsHYQBu97yU4RN6"
}`,
		"decode_plus_code": `{
  "code": "WFXW+2GR",
  "locality": "Mirissa"
}`,
		"encode_plus_code": `{
  "latitude": 5.9476,
  "longitude": 80.4963
}`,
		"lookup_locality": `{
  "name": "Mirissa"
}`,
		"geo_distance": `{
  "from": {"latitude": 5.9453, "longitude": 80.4713},
  "to": {"latitude": 6.0329, "longitude": 80.2168}
}`,
		"bbox_from_points": `{
  "points": [
    {"latitude": 5.9453, "longitude": 80.4713},
    {"latitude": 6.0329, "longitude": 80.2168}
  ]
}`,
	}

	if example, exists := examples[toolName]; exists {
		return example
	}

	return `{
  "reference": "6.0135, 80.2410"
}`
}
