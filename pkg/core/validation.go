package core

import (
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
)

// ValidationError represents a validation error for coordinates or other values
type ValidationError struct {
	Code     string
	Message  string
	Guidance string
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s: %s. %s", e.Code, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidateCoords checks if latitude and longitude are within valid ranges
func ValidateCoords(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return ValidationError{
			Code:     string(ErrInvalidLatitude),
			Message:  fmt.Sprintf("Latitude must be between -90 and 90, got %f", lat),
			Guidance: "Ensure latitude is in decimal degrees",
		}
	}
	if lon < -180 || lon > 180 {
		return ValidationError{
			Code:     string(ErrInvalidLongitude),
			Message:  fmt.Sprintf("Longitude must be between -180 and 180, got %f", lon),
			Guidance: "Ensure longitude is in decimal degrees",
		}
	}
	return nil
}

// ParseCoords extracts and validates latitude and longitude from a CallToolRequest
// It allows specifying alternative key names for latitude and longitude
func ParseCoords(req mcp.CallToolRequest, latKey, lonKey string) (float64, float64, error) {
	// Default keys if not specified
	if latKey == "" {
		latKey = "latitude"
	}
	if lonKey == "" {
		lonKey = "longitude"
	}

	// Extract values
	lat := mcp.ParseFloat64(req, latKey, 0)
	lon := mcp.ParseFloat64(req, lonKey, 0)

	// Validate coordinates
	if err := ValidateCoords(lat, lon); err != nil {
		return 0, 0, err
	}

	return lat, lon, nil
}

// ParseCoordsWithLog parses coordinates and logs any errors
func ParseCoordsWithLog(req mcp.CallToolRequest, logger *slog.Logger, latKey, lonKey string) (float64, float64, error) {
	lat, lon, err := ParseCoords(req, latKey, lonKey)
	if err != nil {
		logger.Error("invalid coordinates", "error", err)
	}
	return lat, lon, err
}

// ParseRequiredString extracts a required string parameter, returning a
// typed error when it is missing or blank.
func ParseRequiredString(req mcp.CallToolRequest, key string) (string, error) {
	val := mcp.ParseString(req, key, "")
	if val == "" {
		return "", ValidationError{
			Code:     string(ErrMissingParameter),
			Message:  fmt.Sprintf("Parameter %q is required", key),
			Guidance: fmt.Sprintf("Provide a non-empty value for %q", key),
		}
	}
	return val, nil
}
