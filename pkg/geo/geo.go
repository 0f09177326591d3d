// Package geo provides fundamental geographic types and calculations
// shared by every part of the resolution pipeline.
package geo

import (
	"fmt"
	"math"
)

const (
	// EarthRadius is the mean Earth radius in meters.
	EarthRadius = 6371000.0
)

// Location represents a geographic coordinate in decimal degrees (WGS84).
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks that the location is within valid coordinate ranges.
func (l Location) Validate() error {
	return ValidateCoords(l.Latitude, l.Longitude)
}

// ValidateCoords validates latitude and longitude values.
// Returns an error if the coordinates are invalid.
func ValidateCoords(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		return fmt.Errorf("latitude is not a finite number")
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) {
		return fmt.Errorf("longitude is not a finite number")
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("invalid latitude: %f (must be between -90 and 90)", lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("invalid longitude: %f (must be between -180 and 180)", lng)
	}
	return nil
}

// HaversineDistance calculates the great-circle distance in meters
// between two points given in decimal degrees.
func HaversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// Distance is a convenience wrapper over HaversineDistance for two Locations.
func Distance(a, b Location) float64 {
	return HaversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// BoundingBox represents a rectangular latitude/longitude range.
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

// Contains reports whether the point lies inside the box (inclusive).
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Location {
	return Location{
		Latitude:  (b.MinLat + b.MaxLat) / 2,
		Longitude: (b.MinLng + b.MaxLng) / 2,
	}
}

// Validate checks that the box corners are valid coordinates in order.
func (b BoundingBox) Validate() error {
	if err := ValidateCoords(b.MinLat, b.MinLng); err != nil {
		return fmt.Errorf("invalid bounding box min corner: %w", err)
	}
	if err := ValidateCoords(b.MaxLat, b.MaxLng); err != nil {
		return fmt.Errorf("invalid bounding box max corner: %w", err)
	}
	if b.MinLat > b.MaxLat {
		return fmt.Errorf("bounding box min latitude %f exceeds max %f", b.MinLat, b.MaxLat)
	}
	if b.MinLng > b.MaxLng {
		return fmt.Errorf("bounding box min longitude %f exceeds max %f", b.MinLng, b.MaxLng)
	}
	return nil
}

// NewBoundingBox creates an empty bounding box ready to be extended.
func NewBoundingBox() *BoundingBox {
	return &BoundingBox{
		MinLat: math.MaxFloat64,
		MinLng: math.MaxFloat64,
		MaxLat: -math.MaxFloat64,
		MaxLng: -math.MaxFloat64,
	}
}

// ExtendWithPoint grows the box to include the given point.
func (b *BoundingBox) ExtendWithPoint(lat, lng float64) {
	b.MinLat = math.Min(b.MinLat, lat)
	b.MinLng = math.Min(b.MinLng, lng)
	b.MaxLat = math.Max(b.MaxLat, lat)
	b.MaxLng = math.Max(b.MaxLng, lng)
}
