// Package tools provides the geo-reference MCP tool implementations.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
)

// InputParser is a generic function to parse request arguments into a strongly typed struct
func InputParser[T any](req mcp.CallToolRequest) (T, *mcp.CallToolResult, error) {
	var input T

	// Convert the arguments to JSON
	inputJSON, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return input, ErrorResponse(fmt.Sprintf("Invalid input format: %v", err)), err
	}

	// Parse into the specified type
	if err := json.Unmarshal(inputJSON, &input); err != nil {
		return input, ErrorResponse(fmt.Sprintf("Failed to parse input: %v", err)), err
	}

	return input, nil, nil
}

// WithParsedInput is a higher-order function that handles request parsing and error handling
func WithParsedInput[T any](
	handlerName string,
	handler func(ctx context.Context, input T, logger *slog.Logger) (interface{}, error),
) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := slog.Default().With("tool", handlerName)

		// Parse the input
		input, errResult, err := InputParser[T](req)
		if err != nil {
			logger.Error("failed to parse input", "error", err)
			return errResult, nil
		}

		// Call the handler with the parsed input
		result, err := handler(ctx, input, logger)
		if err != nil {
			logger.Error("handler error", "error", err)
			return ErrorResult(err), nil
		}

		// Marshal the result
		resultBytes, err := json.Marshal(result)
		if err != nil {
			logger.Error("failed to marshal result", "error", err)
			return ErrorResponse("Failed to generate result"), nil
		}

		return mcp.NewToolResultText(string(resultBytes)), nil
	}
}

// ValidateCoordinates validates latitude and longitude are within valid ranges
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got %f", lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got %f", lon)
	}
	return nil
}
