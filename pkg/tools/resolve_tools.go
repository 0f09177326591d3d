package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/serendibstay/georesolve/pkg/core"
	"github.com/serendibstay/georesolve/pkg/monitoring"
	"github.com/serendibstay/georesolve/pkg/shortlink"
)

// ResolveLocationTool returns a tool definition for resolving location references
func ResolveLocationTool() mcp.Tool {
	return mcp.NewTool("resolve_location",
		mcp.WithDescription("Resolve a location reference to validated coordinates. Accepts Google Maps URLs, short links (maps.app.goo.gl, goo.gl, g.co), bare coordinate pairs, and full or short plus codes"),
		mcp.WithString("reference",
			mcp.Required(),
			mcp.Description("The location reference as pasted by a guest or property owner"),
		),
	)
}

// HandleResolveLocation implements location reference resolution
func (r *Registry) HandleResolveLocation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "resolve_location")

	reference := mcp.ParseString(req, "reference", "")
	if reference == "" {
		logger.Error("missing reference parameter")
		return core.NewError(core.ErrMissingParameter, "missing required parameter: reference").
			WithGuidance(fmt.Sprintf("Example: %s", GetToolUsageExample("resolve_location"))).
			ToMCPResult(), nil
	}
	if len(reference) > MaxReferenceLength {
		logger.Error("reference too long", "length", len(reference))
		return core.NewError(core.ErrInvalidParameter,
			fmt.Sprintf("reference exceeds %d characters", MaxReferenceLength)).
			ToMCPResult(), nil
	}

	res, err := r.resolver.Resolve(ctx, reference)
	if err != nil {
		logger.Error("resolution failed", "reference", reference, "error", err)
		monitoring.RecordResolution("none", "none", false)
		return ErrorResult(err), nil
	}
	monitoring.RecordResolution(string(res.Source), string(res.Confidence), true)
	if res.ReferenceTier != "" {
		monitoring.RecordPlusCodeRecovery(res.ReferenceTier, true)
	}

	logger.Info("reference resolved",
		"source", res.Source,
		"confidence", res.Confidence,
		"latitude", res.Location.Latitude,
		"longitude", res.Location.Longitude,
	)

	resultBytes, err := json.Marshal(res)
	if err != nil {
		logger.Error("failed to marshal result", "error", err)
		return ErrorResponse("Failed to generate result"), nil
	}

	return mcp.NewToolResultText(string(resultBytes)), nil
}

// ExpandShortLinkTool returns a tool definition for expanding short links
func ExpandShortLinkTool() mcp.Tool {
	return mcp.NewTool("expand_short_link",
		mcp.WithDescription("Expand a map short link to its full URL without resolving coordinates. Useful for inspecting what a shared link points at"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The short link, e.g. https://maps.app.goo.gl/oBmsHYQBu97yU4RN6"),
		),
	)
}

// HandleExpandShortLink implements short link expansion
func (r *Registry) HandleExpandShortLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "expand_short_link")

	shortURL := mcp.ParseString(req, "url", "")
	if shortURL == "" {
		logger.Error("missing url parameter")
		return core.NewError(core.ErrMissingParameter, "missing required parameter: url").
			WithGuidance(fmt.Sprintf("Example: %s", GetToolUsageExample("expand_short_link"))).
			ToMCPResult(), nil
	}
	if !shortlink.IsShortLink(shortURL) {
		logger.Error("not a short link", "url", shortURL)
		return core.NewError(core.ErrInvalidParameter,
			fmt.Sprintf("%q is not a recognized short link", shortURL)).
			WithGuidance("Supported hosts: maps.app.goo.gl, goo.gl, g.co").
			ToMCPResult(), nil
	}
	if r.expander == nil {
		return core.NewError(core.ErrShortLinkUnresolved, "short link expansion is not configured").
			WithGuidance(GuidanceShortLinkUnresolved).
			ToMCPResult(), nil
	}

	exp, err := r.expander.Expand(ctx, shortURL)
	if err != nil {
		logger.Error("expansion failed", "url", shortURL, "error", err)
		monitoring.RecordShortLinkExpansion("none", false)
		return ErrorResult(err), nil
	}
	monitoring.RecordShortLinkExpansion(exp.Strategy, true)

	logger.Info("short link expanded",
		"url", shortURL,
		"strategy", exp.Strategy,
		"approximate", exp.Approximate,
	)

	resultBytes, err := json.Marshal(exp)
	if err != nil {
		logger.Error("failed to marshal result", "error", err)
		return ErrorResponse("Failed to generate result"), nil
	}

	return mcp.NewToolResultText(string(resultBytes)), nil
}
