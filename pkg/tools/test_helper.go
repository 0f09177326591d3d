package tools

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

// firstText returns the first text block of a tool result, or "".
func firstText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

// IsErrorResult reports whether a tool result carries the error flag.
func IsErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// AssertErrorResult fails the test when the result is not an error.
func AssertErrorResult(t *testing.T, result *mcp.CallToolResult, message string) {
	t.Helper()
	if !IsErrorResult(result) {
		t.Error(message)
	}
}

// AssertSuccessResult fails the test when the result is an error, including
// the handler's error text in the failure output.
func AssertSuccessResult(t *testing.T, result *mcp.CallToolResult, message string) {
	t.Helper()
	if IsErrorResult(result) {
		t.Errorf("%s. Got error: %s", message, firstText(result))
	}
}

// ParseResultJSON unmarshals the first text block of a tool result into out.
func ParseResultJSON(result *mcp.CallToolResult, out interface{}) error {
	content := firstText(result)
	if content == "" {
		return fmt.Errorf("tool result has no text content")
	}
	return json.Unmarshal([]byte(content), out)
}
