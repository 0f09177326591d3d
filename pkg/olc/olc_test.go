package olc

import (
	"math"
	"strings"
	"testing"
)

// Reference vectors cross-checked against the published Open Location Code
// test data.
func TestDecodeKnownCodes(t *testing.T) {
	tests := []struct {
		code                   string
		latLo, lngLo           float64
		latHi, lngHi           float64
	}{
		{"7FG49Q00+", 20.35, 2.75, 20.4, 2.8},
		{"7FG49QCJ+2V", 20.37, 2.782125, 20.370125, 2.78225},
		{"6MQ2WFXW+2G", 5.9475, 80.49625, 5.947625, 80.496375},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			area, err := Decode(tt.code)
			if err != nil {
				t.Fatalf("Decode(%q) unexpected error: %v", tt.code, err)
			}
			const eps = 1e-9
			if math.Abs(area.LatLo-tt.latLo) > eps || math.Abs(area.LngLo-tt.lngLo) > eps {
				t.Errorf("Decode(%q) low corner = (%f, %f), want (%f, %f)",
					tt.code, area.LatLo, area.LngLo, tt.latLo, tt.lngLo)
			}
			if math.Abs(area.LatHi-tt.latHi) > eps || math.Abs(area.LngHi-tt.lngHi) > eps {
				t.Errorf("Decode(%q) high corner = (%f, %f), want (%f, %f)",
					tt.code, area.LatHi, area.LngHi, tt.latHi, tt.lngHi)
			}
		})
	}
}

func TestEncodeKnownCodes(t *testing.T) {
	tests := []struct {
		lat, lng float64
		digits   int
		want     string
	}{
		{20.375, 2.775, 6, "7FG49Q00+"},
		{20.3701125, 2.782234375, 10, "7FG49QCJ+2V"},
		{5.9476101, 80.4962569, 11, "6MQ2WFXW+2GR"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := Encode(tt.lat, tt.lng, tt.digits)
			if err != nil {
				t.Fatalf("Encode(%f, %f, %d) unexpected error: %v", tt.lat, tt.lng, tt.digits, err)
			}
			if got != tt.want {
				t.Errorf("Encode(%f, %f, %d) = %q, want %q", tt.lat, tt.lng, tt.digits, got, tt.want)
			}
		})
	}
}

// TestEncodeDecodeRoundTrip verifies the decoded cell center stays within the
// cell size for every supported code length: resolution is a deterministic
// function of code length alone.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	points := []struct {
		name     string
		lat, lng float64
	}{
		{"Mirissa", 5.9476101, 80.4962569},
		{"Colombo", 6.9271, 79.8612},
		{"Jaffna", 9.6615, 80.0255},
		{"Equator antimeridian", 0.0, 179.999},
		{"Southern hemisphere", -33.8688, 151.2093},
		{"Near north pole", 89.9999, -120.5},
	}

	for _, p := range points {
		for _, digits := range []int{4, 6, 8, 10, 11, 12, 15} {
			code, err := Encode(p.lat, p.lng, digits)
			if err != nil {
				t.Fatalf("Encode(%s, %d) unexpected error: %v", p.name, digits, err)
			}
			area, err := Decode(code)
			if err != nil {
				t.Fatalf("Decode(%q) unexpected error: %v", code, err)
			}
			latCell, lngCell := CellSize(digits)
			cLat, cLng := area.Center()
			if math.Abs(cLat-p.lat) > latCell {
				t.Errorf("%s digits=%d code=%q: center lat %f off by more than cell %f from %f",
					p.name, digits, code, cLat, latCell, p.lat)
			}
			if math.Abs(cLng-p.lng) > lngCell {
				t.Errorf("%s digits=%d code=%q: center lng %f off by more than cell %f from %f",
					p.name, digits, code, cLng, lngCell, p.lng)
			}
		}
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{"full 10 digit", "6MQ2WFXW+2G", false},
		{"full 11 digit", "6MQ2WFXW+2GR", false},
		{"short 4 digit", "WFXW+2G", false},
		{"short 6 digit", "Q2WFXW+2G", false},
		{"padded", "7FG49Q00+", false},
		{"lowercase", "6mq2wfxw+2g", false},
		{"no separator", "6MQ2WFXW2G", true},
		{"two separators", "6MQ2+WF+XW", true},
		{"separator at odd position", "6MQ2W+FXW", true},
		{"separator beyond position eight", "6MQ2WFXW2+GR", true},
		{"single trailing digit", "6MQ2WFXW+2", true},
		{"padding in short code", "W00+2G", true},
		{"padding after separator", "6MQ2WFXW+00", true},
		{"invalid digit", "6MQ2WFIW+2G", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.code)
			if (err != nil) != tt.wantErr {
				t.Errorf("Check(%q) error = %v, wantErr %v", tt.code, err, tt.wantErr)
			}
		})
	}
}

func TestShortAndFullClassification(t *testing.T) {
	if !IsFull("6MQ2WFXW+2G") {
		t.Error("expected 6MQ2WFXW+2G to be full")
	}
	if IsShort("6MQ2WFXW+2G") {
		t.Error("6MQ2WFXW+2G must not classify as short")
	}
	if !IsShort("WFXW+2G") {
		t.Error("expected WFXW+2G to be short")
	}
	if IsFull("WFXW+2G") {
		t.Error("WFXW+2G must not classify as full")
	}
	// A first latitude digit beyond the pole cannot begin a full code.
	if IsFull("FMQ2WFXW+2G") {
		t.Error("latitude digit beyond pole accepted as full code")
	}
	if got := ShortDigits("WFXW+2G"); got != 4 {
		t.Errorf("ShortDigits(WFXW+2G) = %d, want 4", got)
	}
	if got := ShortDigits("6MQ2WFXW+2G"); got != 0 {
		t.Errorf("ShortDigits on full code = %d, want 0", got)
	}
}

// TestShortenTiers pins the removal thresholds: i pairs may be dropped only
// when the reference lies within 0.3 times the kept prefix's cell height
// (0.3 degrees for two pairs, 0.015 for three, 0.00075 for four).
func TestShortenTiers(t *testing.T) {
	const full = "6MQ2WFXW+2GR"
	tests := []struct {
		name     string
		lat, lng float64
		want     string
		wantErr  bool
	}{
		// The code's own center allows the maximum removal.
		{"exact point", 5.947625, 80.496375, "+2GR", false},
		// Mirissa town center, ~2.6 km away (range 0.0263 degrees):
		// inside the two-pair tier, outside the three-pair tier.
		{"town center reference", 5.945, 80.47, "WFXW+2GR", false},
		// ~0.007 degrees away, inside the three-pair tier.
		{"nearby reference", 5.9410, 80.4920, "XW+2GR", false},
		// Half a degree away, outside every tier.
		{"distant reference", 6.45, 80.49, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			short, err := Shorten(full, tc.lat, tc.lng)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Shorten(%q, %f, %f) = %q, want error",
						full, tc.lat, tc.lng, short)
				}
				return
			}
			if err != nil {
				t.Fatalf("Shorten(%q, %f, %f): %v", full, tc.lat, tc.lng, err)
			}
			if short != tc.want {
				t.Errorf("Shorten(%q, %f, %f) = %q, want %q",
					full, tc.lat, tc.lng, short, tc.want)
			}
		})
	}
}

// TestShortenRecoverRoundTrip checks that recovery reconstructs the original
// full code whenever the reference point lies inside the code's own
// top-level cell.
func TestShortenRecoverRoundTrip(t *testing.T) {
	points := []struct {
		name     string
		lat, lng float64
	}{
		{"Mirissa", 5.9476101, 80.4962569},
		{"Unawatuna", 6.0103, 80.2497},
		{"Kandy", 7.2906, 80.6337},
		{"Trincomalee", 8.5874, 81.2152},
	}

	for _, p := range points {
		t.Run(p.name, func(t *testing.T) {
			full, err := Encode(p.lat, p.lng, 11)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			short, err := Shorten(full, p.lat, p.lng)
			if err != nil {
				t.Fatalf("Shorten(%q): %v", full, err)
			}
			if !IsShort(short) {
				t.Fatalf("Shorten(%q) = %q, not a short code", full, short)
			}
			recovered, err := RecoverNearest(short, p.lat, p.lng)
			if err != nil {
				t.Fatalf("RecoverNearest(%q): %v", short, err)
			}
			if recovered != full {
				t.Errorf("RecoverNearest(%q, %f, %f) = %q, want %q",
					short, p.lat, p.lng, recovered, full)
			}
		})
	}
}

func TestRecoverNearestWithCityReference(t *testing.T) {
	// Short code for a guesthouse near Mirissa, recovered against the
	// town center a few kilometers away.
	recovered, err := RecoverNearest("WFXW+2GR", 5.945, 80.47)
	if err != nil {
		t.Fatalf("RecoverNearest: %v", err)
	}
	if recovered != "6MQ2WFXW+2GR" {
		t.Fatalf("RecoverNearest = %q, want 6MQ2WFXW+2GR", recovered)
	}
	area, err := Decode(recovered)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	lat, lng := area.Center()
	// ~111km per degree; the recovered center must land within 20 meters
	// of the true point.
	dLat := (lat - 5.9476101) * 111320
	dLng := (lng - 80.4962569) * 110700
	if dist := math.Hypot(dLat, dLng); dist > 20 {
		t.Errorf("recovered center %f,%f is %.1fm from truth, want <= 20m", lat, lng, dist)
	}
}

// TestRecoverNearestWrongReference constructs the silent failure mode: a
// reference more than half the candidate spacing from the true location
// recovers a plausible but wrong cell, with no error raised.
func TestRecoverNearestWrongReference(t *testing.T) {
	// True point in Mirissa; reference in Chennai, India, roughly seven
	// degrees north.
	recovered, err := RecoverNearest("WFXW+2GR", 13.0827, 80.2707)
	if err != nil {
		t.Fatalf("RecoverNearest: %v", err)
	}
	area, err := Decode(recovered)
	if err != nil {
		t.Fatalf("Decode(%q): %v", recovered, err)
	}
	lat, lng := area.Center()
	dist := math.Hypot((lat-5.9476101)*111320, (lng-80.4962569)*110700)
	if dist < 100000 {
		t.Fatalf("expected wrong-cell recovery far from truth, got %.0fm", dist)
	}
	// The recovered code itself is structurally fine; only downstream
	// validation can catch this.
	if !IsFull(recovered) {
		t.Errorf("recovered code %q should still be a valid full code", recovered)
	}
}

func TestRecoverNearestOnFullCode(t *testing.T) {
	got, err := RecoverNearest("6mq2wfxw+2gr", 0, 0)
	if err != nil {
		t.Fatalf("RecoverNearest on full code: %v", err)
	}
	if got != "6MQ2WFXW+2GR" {
		t.Errorf("RecoverNearest on full code = %q, want uppercased input", got)
	}
}

func TestCandidateSpacing(t *testing.T) {
	tests := []struct {
		code string
		want float64
	}{
		{"Q2WFXW+2G", 20},  // two digits stripped
		{"WFXW+2G", 1},     // four digits stripped
		{"XW+2G", 0.05},    // six digits stripped
	}
	for _, tt := range tests {
		got, err := CandidateSpacing(tt.code)
		if err != nil {
			t.Fatalf("CandidateSpacing(%q): %v", tt.code, err)
		}
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("CandidateSpacing(%q) = %f, want %f", tt.code, got, tt.want)
		}
	}
	if _, err := CandidateSpacing("6MQ2WFXW+2G"); err == nil {
		t.Error("CandidateSpacing on a full code should error")
	}
}

func TestShortenRejectsDistantReference(t *testing.T) {
	full, err := Encode(5.9476101, 80.4962569, 11)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Shorten(full, 40.0, 10.0); err == nil {
		t.Error("Shorten with a reference on another continent should error")
	}
}

func TestEncodeInvalidLength(t *testing.T) {
	for _, digits := range []int{1, 2, 3, 5, 7, 9} {
		if _, err := Encode(5.9, 80.4, digits); err == nil {
			t.Errorf("Encode with %d digits should error", digits)
		}
	}
}

func TestDecodeRejectsShortCode(t *testing.T) {
	_, err := Decode("WFXW+2G")
	if err == nil || !strings.Contains(err.Error(), "short") {
		t.Errorf("Decode of short code: got %v, want short-code error", err)
	}
}
