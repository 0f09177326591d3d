package resolver

import (
	"fmt"
	"math"

	"github.com/serendibstay/georesolve/pkg/core"
	"github.com/serendibstay/georesolve/pkg/geo"
)

// SriLankaBounds is the bounding box every resolved coordinate must fall
// inside. Slightly padded beyond the island itself so beachfront points and
// coastal codes survive validation.
var SriLankaBounds = geo.BoundingBox{
	MinLat: 5.9,
	MinLng: 79.5,
	MaxLat: 9.9,
	MaxLng: 81.9,
}

// Validator sanity-checks candidate coordinates before they are returned.
type Validator struct {
	Bounds geo.BoundingBox
}

// NewValidator creates a validator over the given bounding box.
func NewValidator(bounds geo.BoundingBox) *Validator {
	return &Validator{Bounds: bounds}
}

// Check rejects coordinates outside the configured bounding box. Applied to
// every candidate regardless of which strategy produced it; a full plus code
// with an unrelated regional prefix decodes cleanly to the wrong continent
// and this is the only place that failure is caught.
func (v *Validator) Check(lat, lng float64) error {
	if err := geo.ValidateCoords(lat, lng); err != nil {
		return core.NewError(core.ErrMalformedInput, err.Error())
	}
	if !v.Bounds.Contains(lat, lng) {
		return core.NewError(core.ErrOutOfRegion,
			fmt.Sprintf("coordinate (%f, %f) is outside the service area", lat, lng)).
			WithGuidance("Verify the link or code refers to a location in Sri Lanka.")
	}
	return nil
}

// CheckRecovery verifies a recovered short code against the reference point
// that anchored it. Candidate cells repeat every spacingDeg degrees, so a
// correct recovery always lands within half that spacing of the reference;
// anything farther means the reference pointed at the wrong cell.
func (v *Validator) CheckRecovery(decoded, reference geo.Location, spacingDeg float64) error {
	// Half the candidate spacing along each axis, diagonal worst case.
	// One degree is at most ~111.32 km.
	maxMeters := spacingDeg / 2 * math.Sqrt2 * 111320
	dist := geo.Distance(decoded, reference)
	if dist > maxMeters {
		return core.NewError(core.ErrOutOfRegion,
			fmt.Sprintf("recovered location is %.0fm from its reference point, beyond the %.0fm recovery tolerance", dist, maxMeters)).
			WithGuidance("The reference place is too far from the code's true location. Provide a more specific place name.")
	}
	return nil
}
