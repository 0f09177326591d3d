package resolver

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/serendibstay/georesolve/pkg/core"
	"github.com/serendibstay/georesolve/pkg/geo"
	"github.com/serendibstay/georesolve/pkg/geocode"
	"github.com/serendibstay/georesolve/pkg/localities"
	"github.com/serendibstay/georesolve/pkg/shortlink"
)

type stubExpander struct {
	expansions map[string]*shortlink.Expansion
	err        error
	calls      int
}

func (s *stubExpander) Expand(_ context.Context, shortURL string) (*shortlink.Expansion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if exp, ok := s.expansions[shortURL]; ok {
		return exp, nil
	}
	return nil, core.NewError(core.ErrShortLinkUnresolved, "no expansion for "+shortURL)
}

type stubGeocoder struct {
	result *geocode.Result
	err    error
	calls  int
}

func (s *stubGeocoder) Search(_ context.Context, _ string) (*geocode.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubAI struct {
	enabled  bool
	loc      geo.Location
	err      error
	gotCode  string
	gotPlace string
}

func (s *stubAI) Enabled() bool { return s.enabled }

func (s *stubAI) DecodePlusCode(_ context.Context, code, placeName string) (geo.Location, error) {
	s.gotCode = code
	s.gotPlace = placeName
	if s.err != nil {
		return geo.Location{}, s.err
	}
	return s.loc, nil
}

func newTestResolver(t *testing.T, opts ...Option) *Resolver {
	t.Helper()
	table, err := localities.Load()
	if err != nil {
		t.Fatalf("localities.Load: %v", err)
	}
	opts = append([]Option{WithLogger(slog.Default())}, opts...)
	return NewResolver(table, opts...)
}

func errorCode(t *testing.T, err error) core.ErrorCode {
	t.Helper()
	var mcpErr *core.MCPError
	if !errors.As(err, &mcpErr) {
		t.Fatalf("expected *core.MCPError, got %T: %v", err, err)
	}
	return core.ErrorCode(mcpErr.Code)
}

func TestResolveCoordinateInputs(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name      string
		input     string
		lat, lng  float64
		source    Source
		placeName string
	}{
		{
			name:   "bare pair",
			input:  "6.0135, 80.2410",
			lat:    6.0135,
			lng:    80.2410,
			source: SourceDirect,
		},
		{
			name:   "query parameter",
			input:  "https://maps.google.com/?q=5.9453,80.4713",
			lat:    5.9453,
			lng:    80.4713,
			source: SourceQueryParam,
		},
		{
			name:   "viewer path",
			input:  "https://www.google.com/maps/@6.0135,80.2410,17z",
			lat:    6.0135,
			lng:    80.2410,
			source: SourceViewerPath,
		},
		{
			name:      "place path keeps the name",
			input:     "https://www.google.com/maps/place/Mirissa+Beach/@5.9448,80.4591,15z",
			lat:       5.9448,
			lng:       80.4591,
			source:    SourcePlacePath,
			placeName: "Mirissa Beach",
		},
		{
			name:   "data payload",
			input:  "https://www.google.com/maps/place/x/data=!3d5.9453!4d80.4713",
			lat:    5.9453,
			lng:    80.4713,
			source: SourceDataPayload,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := r.Resolve(context.Background(), tc.input)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tc.input, err)
			}
			if res.Location.Latitude != tc.lat || res.Location.Longitude != tc.lng {
				t.Errorf("got (%v, %v), want (%v, %v)",
					res.Location.Latitude, res.Location.Longitude, tc.lat, tc.lng)
			}
			if res.Source != tc.source {
				t.Errorf("source = %q, want %q", res.Source, tc.source)
			}
			if res.Confidence != ConfidenceHigh {
				t.Errorf("confidence = %q, want %q", res.Confidence, ConfidenceHigh)
			}
			if tc.placeName != "" && res.PlaceName != tc.placeName {
				t.Errorf("place name = %q, want %q", res.PlaceName, tc.placeName)
			}
		})
	}
}

func TestResolveRejectsOutOfRegion(t *testing.T) {
	r := newTestResolver(t)

	inputs := []string{
		"13.0827, 80.2707", // Chennai
		"https://www.google.com/maps/@48.8584,2.2945,15z", // Paris
		"3.2028, 73.2207", // Maldives
	}
	for _, input := range inputs {
		if _, err := r.Resolve(context.Background(), input); errorCode(t, err) != core.ErrOutOfRegion {
			t.Errorf("Resolve(%q) code = %v, want OUT_OF_REGION", input, errorCode(t, err))
		}
	}
}

func TestResolveFullPlusCode(t *testing.T) {
	r := newTestResolver(t)

	res, err := r.Resolve(context.Background(), "6MQ2WFXW+2G")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Source != SourcePlusCode || res.Confidence != ConfidenceHigh {
		t.Errorf("source/confidence = %q/%q", res.Source, res.Confidence)
	}
	if res.PlusCode != "6MQ2WFXW+2G" {
		t.Errorf("plus code = %q", res.PlusCode)
	}
	if math.Abs(res.Location.Latitude-5.9475625) > 1e-9 ||
		math.Abs(res.Location.Longitude-80.4963125) > 1e-9 {
		t.Errorf("center = (%v, %v)", res.Location.Latitude, res.Location.Longitude)
	}
}

func TestResolveDistantFullPlusCode(t *testing.T) {
	r := newTestResolver(t)

	// Valid code, western Sahara.
	_, err := r.Resolve(context.Background(), "7FG49QCJ+2V")
	if errorCode(t, err) != core.ErrOutOfRegion {
		t.Errorf("code = %v, want OUT_OF_REGION", errorCode(t, err))
	}
}

func TestResolveShortPlusCodeWithLocality(t *testing.T) {
	r := newTestResolver(t)

	res, err := r.Resolve(context.Background(), "WFXW+2GR Mirissa")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.PlusCode != "6MQ2WFXW+2GR" {
		t.Errorf("recovered code = %q, want 6MQ2WFXW+2GR", res.PlusCode)
	}
	// The code was built from this guesthouse location; recovery against
	// the town center must land on the same cell.
	d := geo.HaversineDistance(res.Location.Latitude, res.Location.Longitude,
		5.9476101, 80.4962569)
	if d > 20 {
		t.Errorf("recovered point is %.1fm from the true location", d)
	}
	if res.Confidence != ConfidenceHigh {
		t.Errorf("confidence = %q", res.Confidence)
	}
}

func TestResolveShortPlusCodeWithGeocoder(t *testing.T) {
	gc := &stubGeocoder{result: &geocode.Result{
		Location:    geo.Location{Latitude: 5.9441, Longitude: 80.4677},
		DisplayName: "Coconut Tree Hill, Mirissa, Sri Lanka",
	}}
	r := newTestResolver(t, WithGeocoder(gc))

	// Not in the locality table, so the geocoder supplies the reference.
	res, err := r.Resolve(context.Background(), "WFXW+2GR Coconut Tree Hill")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if gc.calls != 1 {
		t.Errorf("geocoder calls = %d, want 1", gc.calls)
	}
	if res.PlusCode != "6MQ2WFXW+2GR" {
		t.Errorf("recovered code = %q", res.PlusCode)
	}
}

func TestResolveShortPlusCodeWrongReference(t *testing.T) {
	// A reference on the wrong continent recovers a structurally valid but
	// badly wrong code. The bounding box has to catch it.
	gc := &stubGeocoder{result: &geocode.Result{
		Location:    geo.Location{Latitude: 13.0827, Longitude: 80.2707},
		DisplayName: "Chennai, Tamil Nadu, India",
	}}
	r := newTestResolver(t, WithGeocoder(gc))

	_, err := r.Resolve(context.Background(), "WFXW+2GR Chennai")
	if errorCode(t, err) != core.ErrOutOfRegion {
		t.Errorf("code = %v, want OUT_OF_REGION", errorCode(t, err))
	}
}

func TestResolveShortPlusCodeNoReference(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.Resolve(context.Background(), "WFXW+2GR")
	if errorCode(t, err) != core.ErrReferenceUnavailable {
		t.Errorf("code = %v, want REFERENCE_POINT_UNAVAILABLE", errorCode(t, err))
	}

	_, err = r.Resolve(context.Background(), "WFXW+2GR Atlantis")
	if errorCode(t, err) != core.ErrReferenceUnavailable {
		t.Errorf("code = %v, want REFERENCE_POINT_UNAVAILABLE", errorCode(t, err))
	}
}

func TestResolveRegionalFallback(t *testing.T) {
	r := newTestResolver(t)

	// "south coast" hits no locality but contains the South region name.
	// Regional centroids are coarse, yet still inside the candidate
	// neighborhood for a 1 degree spacing.
	res, err := r.Resolve(context.Background(), "WFXW+2GR somewhere on the south coast")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.PlusCode != "6MQ2WFXW+2GR" {
		t.Errorf("recovered code = %q", res.PlusCode)
	}
}

func TestResolveTooShortCode(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.Resolve(context.Background(), "XW+2G Mirissa")
	if errorCode(t, err) != core.ErrPlusCodeTooShort {
		t.Errorf("code = %v, want PLUS_CODE_TOO_SHORT", errorCode(t, err))
	}
}

func TestResolveTooShortCodeWithAI(t *testing.T) {
	ai := &stubAI{enabled: true, loc: geo.Location{Latitude: 5.9476, Longitude: 80.4963}}
	r := newTestResolver(t, WithAI(ai))

	res, err := r.Resolve(context.Background(), "XW+2G Mirissa")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Confidence != ConfidenceLow {
		t.Errorf("confidence = %q, want %q", res.Confidence, ConfidenceLow)
	}
	if ai.gotCode != "XW+2G" {
		t.Errorf("AI saw code %q", ai.gotCode)
	}
	if ai.gotPlace != "Mirissa" {
		t.Errorf("AI saw place %q", ai.gotPlace)
	}
}

func TestResolveShortLink(t *testing.T) {
	exp := &stubExpander{expansions: map[string]*shortlink.Expansion{
		"https://maps.app.goo.gl/abc123": {
			URL:      "https://www.google.com/maps/@5.9453,80.4713,17z",
			Strategy: "follow",
		},
	}}
	r := newTestResolver(t, WithExpander(exp))

	res, err := r.Resolve(context.Background(), "https://maps.app.goo.gl/abc123")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Source != SourceShortLink {
		t.Errorf("source = %q, want %q", res.Source, SourceShortLink)
	}
	if res.Confidence != ConfidenceHigh {
		t.Errorf("confidence = %q", res.Confidence)
	}
	if res.Location.Latitude != 5.9453 || res.Location.Longitude != 80.4713 {
		t.Errorf("location = %v", res.Location)
	}
}

func TestResolveShortLinkApproximate(t *testing.T) {
	exp := &stubExpander{expansions: map[string]*shortlink.Expansion{
		"https://maps.app.goo.gl/abc123": {
			URL:         "https://www.google.com/maps/@5.9453,80.4713,17z",
			Strategy:    "ai_completion",
			Approximate: true,
		},
	}}
	r := newTestResolver(t, WithExpander(exp))

	res, err := r.Resolve(context.Background(), "https://maps.app.goo.gl/abc123")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Confidence != ConfidenceLow {
		t.Errorf("confidence = %q, want %q", res.Confidence, ConfidenceLow)
	}
}

func TestResolveShortLinkUnresolved(t *testing.T) {
	exp := &stubExpander{err: core.NewError(core.ErrShortLinkUnresolved, "every strategy failed")}
	r := newTestResolver(t, WithExpander(exp))

	_, err := r.Resolve(context.Background(), "https://maps.app.goo.gl/broken")
	if errorCode(t, err) != core.ErrShortLinkUnresolved {
		t.Errorf("code = %v, want SHORT_LINK_UNRESOLVED", errorCode(t, err))
	}
}

func TestResolveShortLinkChainDepth(t *testing.T) {
	// Every expansion yields another short link; the chain must terminate.
	exp := &stubExpander{expansions: map[string]*shortlink.Expansion{
		"https://maps.app.goo.gl/a": {URL: "https://maps.app.goo.gl/b", Strategy: "follow"},
		"https://maps.app.goo.gl/b": {URL: "https://maps.app.goo.gl/a", Strategy: "follow"},
	}}
	r := newTestResolver(t, WithExpander(exp))

	_, err := r.Resolve(context.Background(), "https://maps.app.goo.gl/a")
	if errorCode(t, err) != core.ErrShortLinkUnresolved {
		t.Errorf("code = %v, want SHORT_LINK_UNRESOLVED", errorCode(t, err))
	}
	if exp.calls > maxExpansionDepth {
		t.Errorf("expander called %d times", exp.calls)
	}
}

func TestResolveShortLinkWithoutExpander(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.Resolve(context.Background(), "https://maps.app.goo.gl/abc")
	if errorCode(t, err) != core.ErrShortLinkUnresolved {
		t.Errorf("code = %v, want SHORT_LINK_UNRESOLVED", errorCode(t, err))
	}
}

func TestResolveEmptyInput(t *testing.T) {
	r := newTestResolver(t)

	for _, input := range []string{"", "   ", "\t\n"} {
		if _, err := r.Resolve(context.Background(), input); errorCode(t, err) != core.ErrEmptyParameter {
			t.Errorf("Resolve(%q) code = %v, want EMPTY_PARAMETER", input, errorCode(t, err))
		}
	}
}

func TestResolveMalformedInput(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.Resolve(context.Background(), "see you at the guesthouse")
	if errorCode(t, err) != core.ErrMalformedInput {
		t.Errorf("code = %v, want MALFORMED_INPUT", errorCode(t, err))
	}
}
