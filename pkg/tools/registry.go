// Package tools provides the geo-reference MCP tool implementations.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/serendibstay/georesolve/pkg/localities"
	"github.com/serendibstay/georesolve/pkg/monitoring"
	"github.com/serendibstay/georesolve/pkg/resolver"
	"github.com/serendibstay/georesolve/pkg/tracing"
)

// Registry contains all tool definitions and handlers
type Registry struct {
	logger   *slog.Logger
	resolver *resolver.Resolver
	table    *localities.Table
	expander resolver.Expander
}

// NewRegistry creates a new tool registry around the resolution pipeline.
// The expander may be nil when short-link expansion is disabled.
func NewRegistry(logger *slog.Logger, res *resolver.Resolver, table *localities.Table, expander resolver.Expander) *Registry {
	return &Registry{
		logger:   logger,
		resolver: res,
		table:    table,
		expander: expander,
	}
}

// ToolDefinition represents a geo-reference MCP tool definition.
type ToolDefinition struct {
	Name        string
	Description string
	Tool        mcp.Tool
	Handler     func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// GetToolDefinitions returns the list of all available tools.
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	defs := []ToolDefinition{
		// Version and capability tools
		{
			Name:        "get_version",
			Description: "Get the version information for this geo-reference resolution service",
			Tool:        GetVersionTool(),
			Handler:     HandleGetVersion,
		},

		// Resolution tools
		{
			Name:        "resolve_location",
			Description: "Resolve a location reference (map URL, short link, coordinate pair, or plus code) to validated coordinates. Parameters: reference (string)",
			Tool:        ResolveLocationTool(),
			Handler:     r.HandleResolveLocation,
		},
		{
			Name:        "expand_short_link",
			Description: "Expand a map short link to its full URL without resolving coordinates. Parameters: url (string)",
			Tool:        ExpandShortLinkTool(),
			Handler:     r.HandleExpandShortLink,
		},

		// Plus code tools
		{
			Name:        "decode_plus_code",
			Description: "Decode a full or short plus code to coordinates. Parameters: code (string), locality (string, required for short codes)",
			Tool:        DecodePlusCodeTool(),
			Handler:     r.HandleDecodePlusCode,
		},
		{
			Name:        "encode_plus_code",
			Description: "Encode coordinates as a plus code. Parameters: latitude (number), longitude (number), digits (number, optional)",
			Tool:        EncodePlusCodeTool(),
			Handler:     r.HandleEncodePlusCode,
		},

		// Locality tools
		{
			Name:        "lookup_locality",
			Description: "Look up a known locality by name, or find the nearest one to coordinates. Parameters: name (string) or latitude/longitude (numbers)",
			Tool:        LookupLocalityTool(),
			Handler:     r.HandleLookupLocality,
		},

		// Geo utility tools
		{
			Name:        "geo_distance",
			Description: "Calculate distance between two points. Parameters: from (object with latitude/longitude), to (object with latitude/longitude)",
			Tool:        GeoDistanceTool(),
			Handler:     HandleGeoDistance,
		},
		{
			Name:        "bbox_from_points",
			Description: "Create a bounding box from multiple points. Parameters: points (array of latitude/longitude objects)",
			Tool:        BBoxFromPointsTool(),
			Handler:     HandleBBoxFromPoints,
		},
	}

	return defs
}

// RegisterTools registers all tools with the MCP server.
func (r *Registry) RegisterTools(mcpServer *server.MCPServer) {
	for _, def := range r.GetToolDefinitions() {
		r.logger.Info("registering tool", "name", def.Name)
		// Wrap handler with tracing
		tracedHandler := r.wrapWithTracing(def.Name, def.Handler)
		mcpServer.AddTool(def.Tool, tracedHandler)
	}
}

// wrapWithTracing wraps a tool handler with OpenTelemetry tracing
func (r *Registry) wrapWithTracing(toolName string, handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// Start span
		spanName := fmt.Sprintf("mcp.tool.%s", toolName)
		ctx, span := tracing.StartSpan(ctx, spanName,
			trace.WithAttributes(
				attribute.String(tracing.AttrMCPToolName, toolName),
			),
		)
		defer span.End()

		// Record start time
		startTime := time.Now()

		// Execute handler
		result, err := handler(ctx, req)

		// Calculate duration
		duration := time.Since(startTime)
		durationMs := duration.Milliseconds()

		// Determine status
		status := tracing.StatusSuccess
		if err != nil {
			status = tracing.StatusError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		// Calculate result size
		resultSize := 0
		if result != nil && result.Content != nil {
			if data, marshalErr := json.Marshal(result.Content); marshalErr == nil {
				resultSize = len(data)
			}
		}

		// Set final attributes
		span.SetAttributes(
			attribute.String(tracing.AttrMCPToolStatus, status),
			attribute.Int64(tracing.AttrMCPToolDuration, durationMs),
			attribute.Int(tracing.AttrMCPResultSize, resultSize),
		)

		monitoring.RecordMCPRequest(toolName, duration, err == nil)

		// Log for debugging
		r.logger.Debug("tool execution traced",
			"tool", toolName,
			"duration_ms", durationMs,
			"status", status,
			"result_size", resultSize,
		)

		return result, err
	}
}

// GetToolNames returns a list of all tool names.
func (r *Registry) GetToolNames() []string {
	defs := r.GetToolDefinitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// RegisterAll registers all tools with the MCP server.
func (r *Registry) RegisterAll(mcpServer *server.MCPServer) {
	r.RegisterTools(mcpServer)
}
