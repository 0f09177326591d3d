package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/serendibstay/georesolve/pkg/core"
	"github.com/serendibstay/georesolve/pkg/olc"
)

// DecodePlusCodeTool returns a tool definition for decoding plus codes
func DecodePlusCodeTool() mcp.Tool {
	return mcp.NewTool("decode_plus_code",
		mcp.WithDescription("Decode a plus code to coordinates. Full codes decode directly; short codes are recovered against the named locality"),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("The plus code, full (6MQ2WFXW+2GR) or short (WFXW+2GR)"),
		),
		mcp.WithString("locality",
			mcp.Description("Place name anchoring short code recovery, e.g. Mirissa"),
		),
	)
}

// HandleDecodePlusCode implements plus code decoding
func (r *Registry) HandleDecodePlusCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "decode_plus_code")

	code := mcp.ParseString(req, "code", "")
	if code == "" {
		logger.Error("missing code parameter")
		return core.NewError(core.ErrMissingParameter, "missing required parameter: code").
			WithGuidance(fmt.Sprintf("Example: %s", GetToolUsageExample("decode_plus_code"))).
			ToMCPResult(), nil
	}
	locality := mcp.ParseString(req, "locality", "")

	res, err := r.resolver.ResolvePlusCode(ctx, code, locality)
	if err != nil {
		logger.Error("decode failed", "code", code, "locality", locality, "error", err)
		return ErrorResult(err), nil
	}

	resultBytes, err := json.Marshal(res)
	if err != nil {
		logger.Error("failed to marshal result", "error", err)
		return ErrorResponse("Failed to generate result"), nil
	}

	return mcp.NewToolResultText(string(resultBytes)), nil
}

// EncodePlusCodeOutput defines the output for plus code encoding
type EncodePlusCodeOutput struct {
	PlusCode  string `json:"plus_code"`
	ShortCode string `json:"short_code,omitempty"`
	Locality  string `json:"locality,omitempty"`
}

// EncodePlusCodeTool returns a tool definition for encoding coordinates as plus codes
func EncodePlusCodeTool() mcp.Tool {
	return mcp.NewTool("encode_plus_code",
		mcp.WithDescription("Encode coordinates as a plus code, with a short form relative to the nearest known locality when one is close enough"),
		mcp.WithNumber("latitude",
			mcp.Required(),
			mcp.Description("The latitude coordinate"),
		),
		mcp.WithNumber("longitude",
			mcp.Required(),
			mcp.Description("The longitude coordinate"),
		),
		mcp.WithNumber("digits",
			mcp.Description("Code precision in digits (default 11, a cell of roughly 3 meters)"),
			mcp.DefaultNumber(DefaultEncodeDigits),
		),
	)
}

// HandleEncodePlusCode implements plus code encoding
func (r *Registry) HandleEncodePlusCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := r.logger.With("tool", "encode_plus_code")

	lat, lng, err := core.ParseCoords(req, "latitude", "longitude")
	if err != nil {
		logger.Error("invalid coordinates", "error", err)
		return ErrorResult(err), nil
	}
	digits := int(mcp.ParseFloat64(req, "digits", DefaultEncodeDigits))

	code, err := olc.Encode(lat, lng, digits)
	if err != nil {
		logger.Error("encode failed", "digits", digits, "error", err)
		return core.NewError(core.ErrInvalidParameter, err.Error()).
			WithGuidance("Digit counts of 2, 4, 6, 8, 10 and 11 through 15 are valid").
			ToMCPResult(), nil
	}

	output := EncodePlusCodeOutput{PlusCode: code}
	// The short form only makes sense when a known locality sits inside the
	// recovery neighborhood. Shorten rejects references that are too far.
	if nearest, _ := r.table.Nearest(lat, lng); nearest != nil {
		if short, err := olc.Shorten(code, nearest.Latitude, nearest.Longitude); err == nil && short != code {
			output.ShortCode = short
			output.Locality = nearest.Name
		}
	}

	resultBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal result", "error", err)
		return ErrorResponse("Failed to generate result"), nil
	}

	return mcp.NewToolResultText(string(resultBytes)), nil
}
