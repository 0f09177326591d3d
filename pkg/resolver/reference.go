package resolver

import (
	"context"
	"strings"

	"github.com/serendibstay/georesolve/pkg/core"
	"github.com/serendibstay/georesolve/pkg/geo"
	"github.com/serendibstay/georesolve/pkg/tracing"
)

// Reference tiers, most precise first.
const (
	tierLocality = "locality"
	tierGeocode  = "geocode"
	tierRegion   = "region"
)

// referencePoint finds a reference location for short-code recovery from
// the free text around the code. The curated locality table is tried
// first, then the geocoder, then the regional centroids. Each step down
// the ladder trades precision for coverage; the recovery distance check
// catches references that turn out too coarse for the code.
func (r *Resolver) referencePoint(ctx context.Context, placeName string) (geo.Location, string, error) {
	text := strings.TrimSpace(placeName)
	if text == "" {
		return geo.Location{}, "", core.NewError(core.ErrReferenceUnavailable,
			"short plus code has no place name to anchor recovery").
			WithGuidance("Include the town name after the code, e.g. \"WFXW+2GR Mirissa\"")
	}

	if loc := r.table.Find(text); loc != nil {
		r.logger.Debug("reference point from locality table",
			"place", loc.Name, "query", text)
		return loc.Location(), tierLocality, nil
	}

	if r.geocoder != nil {
		result, err := r.geocoder.Search(ctx, text)
		if err == nil {
			r.logger.Debug("reference point from geocoder",
				"display_name", result.DisplayName, "query", text)
			return result.Location, tierGeocode, nil
		}
		r.logger.Debug("geocoder lookup failed", "query", text, "error", err)
		tracing.RecordError(ctx, err)
	}

	lowered := strings.ToLower(text)
	for _, region := range r.table.Regions() {
		if strings.Contains(lowered, strings.ToLower(region.Name)) {
			r.logger.Debug("reference point from regional centroid",
				"region", region.Name, "query", text)
			return region.Location(), tierRegion, nil
		}
	}

	return geo.Location{}, "", core.NewError(core.ErrReferenceUnavailable,
		"no reference point found for "+text).
		WithQuery(text).
		WithGuidance("Use a known town name, or paste the full plus code from the map")
}
