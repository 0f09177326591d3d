package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/serendibstay/georesolve/pkg/core"
)

// LookupLocalityOutput defines the output for a locality lookup
type LookupLocalityOutput struct {
	Name           string   `json:"name"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	Region         string   `json:"region,omitempty"`
	Aliases        []string `json:"aliases,omitempty"`
	DistanceMeters float64  `json:"distance_meters,omitempty"`
}

// LookupLocalityTool returns a tool definition for locality lookups
func LookupLocalityTool() mcp.Tool {
	return mcp.NewTool("lookup_locality",
		mcp.WithDescription("Look up a known locality by name, or find the nearest one to coordinates. Provide either name or latitude/longitude"),
		mcp.WithString("name",
			mcp.Description("Locality name or free text containing one, e.g. \"Russian Guesthouse, Mirissa\""),
		),
		mcp.WithNumber("latitude",
			mcp.Description("Latitude for a nearest-locality lookup"),
		),
		mcp.WithNumber("longitude",
			mcp.Description("Longitude for a nearest-locality lookup"),
		),
	)
}

// HandleLookupLocality implements locality lookups
func (r *Registry) HandleLookupLocality(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "lookup_locality")

	name := mcp.ParseString(req, "name", "")
	lat := mcp.ParseFloat64(req, "latitude", math.NaN())
	lng := mcp.ParseFloat64(req, "longitude", math.NaN())

	switch {
	case name != "":
		loc := r.table.Find(name)
		if loc == nil {
			logger.Info("locality not found", "name", name)
			return core.NewError(core.ErrNoResults,
				fmt.Sprintf("no known locality matches %q", name)).
				WithQuery(name).
				WithGuidance("Check the spelling, or use coordinates for a nearest-locality lookup").
				ToMCPResult(), nil
		}
		output := LookupLocalityOutput{
			Name:      loc.Name,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Region:    loc.Region,
			Aliases:   loc.Aliases,
		}
		return marshalResult(logger, output)

	case !math.IsNaN(lat) && !math.IsNaN(lng):
		if err := core.ValidateCoords(lat, lng); err != nil {
			logger.Error("invalid coordinates", "error", err)
			return ErrorResult(err), nil
		}
		nearest, dist := r.table.Nearest(lat, lng)
		if nearest == nil {
			return core.NewError(core.ErrNoResults, "locality table is empty").ToMCPResult(), nil
		}
		output := LookupLocalityOutput{
			Name:           nearest.Name,
			Latitude:       nearest.Latitude,
			Longitude:      nearest.Longitude,
			Region:         nearest.Region,
			Aliases:        nearest.Aliases,
			DistanceMeters: dist,
		}
		return marshalResult(logger, output)

	default:
		logger.Error("missing parameters")
		return core.NewError(core.ErrMissingParameter,
			"provide either name or latitude and longitude").
			WithGuidance(fmt.Sprintf("Example: %s", GetToolUsageExample("lookup_locality"))).
			ToMCPResult(), nil
	}
}

func marshalResult(logger *slog.Logger, output any) (*mcp.CallToolResult, error) {
	resultBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal result", "error", err)
		return ErrorResponse("Failed to generate result"), nil
	}
	return mcp.NewToolResultText(string(resultBytes)), nil
}
