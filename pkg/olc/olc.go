// Package olc implements encoding, decoding, shortening and recovery of
// Open Location Codes ("plus codes").
//
// A code is built from a base-20 alphabet over nested 20x20 grids. The pair
// section alternates latitude and longitude digits starting from a 20x20
// degree cell; an optional refinement suffix after the tenth digit narrows
// the cell further on a 4-column by 5-row sub-grid per character. A full
// code carries the regional prefix and decodes on its own; a short code has
// the prefix stripped and is meaningless without a nearby reference point.
package olc

import (
	"fmt"
	"math"
	"strings"
)

const (
	// Alphabet is the base-20 digit set. Chosen upstream to avoid
	// vowels and easily-confused characters.
	Alphabet = "23456789CFGHJMPQRVWX"

	// Separator splits the regional prefix area from the local part.
	Separator = '+'

	// Padding fills unused pair positions in coarse full codes.
	Padding = '0'

	// sepPosition is the index the separator occupies in a full code.
	sepPosition = 8

	// pairCodeLength is the number of digits encoded as lat/lng pairs.
	pairCodeLength = 10

	// maxDigitCount caps total digits; beyond this the cell is under a
	// few centimeters and extra digits are noise.
	maxDigitCount = 15

	// gridCols and gridRows define the refinement sub-grid.
	gridCols = 4
	gridRows = 5

	latMax = 90.0
	lngMax = 180.0

	// Integer units per degree once all five pairs are consumed.
	pairPrecision = 8000 // 20^3

	// Integer units per degree at maximum digit count.
	finalLatPrecision = pairPrecision * 3125 // gridRows^5
	finalLngPrecision = pairPrecision * 1024 // gridCols^5

	// MinRecoveryDigits is the minimum number of digits a short code
	// must keep before the separator for recovery against a city or
	// regional reference point to be deterministic. With fewer digits
	// the candidate cells repeat every 0.05 degrees (about 5.6 km), so
	// the reference would have to be accurate to ~2.8 km, which none of
	// the deterministic reference tiers can guarantee.
	MinRecoveryDigits = 4
)

// CodeArea is the bounding cell a code decodes to.
type CodeArea struct {
	LatLo, LngLo float64
	LatHi, LngHi float64
	// CodeLength is the number of significant digits in the code.
	CodeLength int
}

// Center returns the midpoint of the cell, clamped to valid ranges.
func (a CodeArea) Center() (lat, lng float64) {
	lat = math.Min((a.LatLo+a.LatHi)/2, latMax)
	lng = math.Min((a.LngLo+a.LngHi)/2, lngMax)
	return lat, lng
}

// digitValue returns the alphabet index of c, or -1.
func digitValue(c byte) int {
	return strings.IndexByte(Alphabet, c)
}

// clipLatitude forces lat into [-90, 90].
func clipLatitude(lat float64) float64 {
	return math.Min(latMax, math.Max(-latMax, lat))
}

// normalizeLongitude wraps lng into [-180, 180).
func normalizeLongitude(lng float64) float64 {
	for lng < -lngMax {
		lng += 2 * lngMax
	}
	for lng >= lngMax {
		lng -= 2 * lngMax
	}
	return lng
}

// Check validates the structure of a code. It accepts both full and short
// forms and rejects anything that is not a plausible plus code.
func Check(code string) error {
	if len(code) < 2 {
		return fmt.Errorf("code %q too short to contain a separator", code)
	}
	sep := strings.IndexByte(code, Separator)
	if sep == -1 {
		return fmt.Errorf("code %q has no separator", code)
	}
	if sep != strings.LastIndexByte(code, Separator) {
		return fmt.Errorf("code %q has multiple separators", code)
	}
	if sep > sepPosition || sep%2 != 0 {
		return fmt.Errorf("code %q has separator at invalid position %d", code, sep)
	}
	// Padding may only appear in the prefix area of a full code and must
	// run to the separator.
	if pad := strings.IndexByte(code, Padding); pad != -1 {
		if sep < sepPosition {
			return fmt.Errorf("short code %q must not contain padding", code)
		}
		if pad == 0 {
			return fmt.Errorf("code %q starts with padding", code)
		}
		padEnd := strings.LastIndexByte(code, Padding)
		if padEnd > sep {
			return fmt.Errorf("code %q has padding after the separator", code)
		}
		run := code[pad:padEnd]
		if strings.Trim(run, string(Padding)) != "" || padEnd != sep-1 {
			return fmt.Errorf("code %q has non-contiguous padding", code)
		}
		if (pad % 2) != 0 {
			return fmt.Errorf("code %q has padding at an odd position", code)
		}
		if sep != len(code)-1 {
			return fmt.Errorf("padded code %q must end at the separator", code)
		}
	}
	if len(code)-sep-1 == 1 {
		return fmt.Errorf("code %q has a single trailing digit", code)
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c == Separator || c == Padding {
			continue
		}
		if digitValue(byte(toUpper(c))) == -1 {
			return fmt.Errorf("code %q contains invalid digit %q", code, c)
		}
	}
	return nil
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// IsValid reports whether the code has plausible plus code structure.
func IsValid(code string) bool {
	return Check(code) == nil
}

// IsShort reports whether the code is valid and missing its regional prefix.
func IsShort(code string) bool {
	if Check(code) != nil {
		return false
	}
	return strings.IndexByte(code, Separator) < sepPosition
}

// IsFull reports whether the code is valid and decodable on its own.
func IsFull(code string) bool {
	if Check(code) != nil {
		return false
	}
	if strings.IndexByte(code, Separator) != sepPosition {
		return false
	}
	code = strings.ToUpper(code)
	// The first latitude digit must keep the cell south of the pole and
	// the first longitude digit inside the antimeridian.
	if digitValue(code[0]) > 8 {
		return false
	}
	if len(code) > 1 && digitValue(code[1]) > 17 {
		return false
	}
	return true
}

// ShortDigits returns the number of digits a short code keeps before the
// separator. Returns 0 for codes that are not short.
func ShortDigits(code string) int {
	if !IsShort(code) {
		return 0
	}
	return strings.IndexByte(code, Separator)
}

// CandidateSpacing returns the spacing in degrees between full-code
// candidates when recovering the given short code. The last stripped digit
// pair determines the repeat interval: a reference point must sit within
// half this spacing of the true location for recovery to pick the right
// cell.
func CandidateSpacing(shortCode string) (float64, error) {
	if !IsShort(shortCode) {
		return 0, fmt.Errorf("code %q is not a short code", shortCode)
	}
	missing := sepPosition - strings.IndexByte(shortCode, Separator)
	return math.Pow(20, float64(2-missing/2)), nil
}

// CellSize returns the latitude and longitude extent in degrees of the cell
// for a code with the given number of significant digits.
func CellSize(digits int) (latDeg, lngDeg float64) {
	if digits > maxDigitCount {
		digits = maxDigitCount
	}
	if digits <= pairCodeLength {
		latDeg = math.Pow(20, float64(2-(digits+1)/2))
		lngDeg = math.Pow(20, float64(2-digits/2))
		return latDeg, lngDeg
	}
	latDeg = (1.0 / pairPrecision) / math.Pow(gridRows, float64(digits-pairCodeLength))
	lngDeg = (1.0 / pairPrecision) / math.Pow(gridCols, float64(digits-pairCodeLength))
	return latDeg, lngDeg
}

// Encode produces a code of the given digit count for the location.
// A digit count of 10 yields a cell of roughly 14 by 14 meters.
func Encode(lat, lng float64, digits int) (string, error) {
	if digits <= 0 {
		digits = pairCodeLength
	}
	if digits < 4 || (digits < pairCodeLength && digits%2 == 1) {
		return "", fmt.Errorf("invalid code digit count %d", digits)
	}
	if digits > maxDigitCount {
		digits = maxDigitCount
	}
	lat = clipLatitude(lat)
	lng = normalizeLongitude(lng)
	// The north pole must encode to a cell whose interior is south of it.
	if lat == latMax {
		latCell, _ := CellSize(digits)
		lat -= latCell / 2
	}

	// Work in integer grid units to keep digit extraction exact.
	latVal := int64(math.Floor((lat + latMax) * finalLatPrecision))
	lngVal := int64(math.Floor((lng + lngMax) * finalLngPrecision))
	maxLatVal := int64(2*latMax) * finalLatPrecision
	if latVal >= maxLatVal {
		latVal = maxLatVal - 1
	}

	var buf [maxDigitCount]byte
	if digits > pairCodeLength {
		for i := 0; i < maxDigitCount-pairCodeLength; i++ {
			latDigit := latVal % gridRows
			lngDigit := lngVal % gridCols
			buf[maxDigitCount-1-i] = Alphabet[latDigit*gridCols+lngDigit]
			latVal /= gridRows
			lngVal /= gridCols
		}
	} else {
		latVal /= 3125 // gridRows^5
		lngVal /= 1024 // gridCols^5
	}
	for i := 0; i < pairCodeLength/2; i++ {
		buf[pairCodeLength-1-2*i] = Alphabet[lngVal%20]
		buf[pairCodeLength-2-2*i] = Alphabet[latVal%20]
		latVal /= 20
		lngVal /= 20
	}

	if digits >= sepPosition {
		return string(buf[:sepPosition]) + string(Separator) + string(buf[sepPosition:digits]), nil
	}
	return string(buf[:digits]) +
		strings.Repeat(string(Padding), sepPosition-digits) +
		string(Separator), nil
}

// Decode converts a full code to its bounding cell. Short codes are
// rejected; recover them first.
func Decode(code string) (CodeArea, error) {
	if !IsFull(code) {
		if IsShort(code) {
			return CodeArea{}, fmt.Errorf("code %q is short; recover it against a reference point first", code)
		}
		return CodeArea{}, fmt.Errorf("code %q is not a valid full code", code)
	}
	clean := strings.ToUpper(code)
	clean = strings.ReplaceAll(clean, string(Separator), "")
	clean = strings.TrimRight(clean, string(Padding))
	if len(clean) > maxDigitCount {
		clean = clean[:maxDigitCount]
	}

	latLo, lngLo := -latMax, -lngMax
	latRes, lngRes := 400.0, 400.0 // one step above the first 20-degree cell
	i := 0
	for ; i < len(clean) && i < pairCodeLength; i += 2 {
		latRes /= 20
		latLo += float64(digitValue(clean[i])) * latRes
		if i+1 < len(clean) {
			lngRes /= 20
			lngLo += float64(digitValue(clean[i+1])) * lngRes
		}
	}
	for ; i < len(clean); i++ {
		v := digitValue(clean[i])
		latRes /= gridRows
		lngRes /= gridCols
		latLo += float64(v/gridCols) * latRes
		lngLo += float64(v%gridCols) * lngRes
	}
	return CodeArea{
		LatLo:      latLo,
		LngLo:      lngLo,
		LatHi:      latLo + latRes,
		LngHi:      lngLo + lngRes,
		CodeLength: len(clean),
	}, nil
}

// Shorten removes as many leading digits as possible from a full code while
// the reference point stays safely inside the removed prefix's cell. Used to
// produce fixtures for recovery testing and shareable local codes.
func Shorten(code string, lat, lng float64) (string, error) {
	area, err := Decode(code)
	if err != nil {
		return "", err
	}
	if strings.IndexByte(code, Padding) != -1 {
		return "", fmt.Errorf("cannot shorten padded code %q", code)
	}
	if area.CodeLength < sepPosition {
		return "", fmt.Errorf("code %q too coarse to shorten", code)
	}
	centerLat, centerLng := area.Center()
	lat = clipLatitude(lat)
	lng = normalizeLongitude(lng)
	coderange := math.Max(math.Abs(centerLat-lat), math.Abs(centerLng-lng))
	// Try to remove four pairs, then three, then two. Removing i pairs is
	// safe when the reference sits within 0.3 times the cell height of the
	// kept prefix, which keeps it well inside the half-spacing bound that
	// recovery needs to be unambiguous.
	for i := 4; i >= 2; i-- {
		if coderange < math.Pow(20, float64(2-i))*0.3 {
			return strings.ToUpper(code)[i*2:], nil
		}
	}
	return "", fmt.Errorf("reference point too far from code %q center to shorten", code)
}

// RecoverNearest reconstructs the regional prefix of a short code by picking
// the candidate cell nearest the reference point. If the reference is more
// than half the candidate spacing from the true location the result decodes
// to a plausible but wrong cell with no error raised here; callers must
// sanity-check the output against known bounds.
func RecoverNearest(shortCode string, refLat, refLng float64) (string, error) {
	if !IsShort(shortCode) {
		if IsFull(shortCode) {
			return strings.ToUpper(shortCode), nil
		}
		return "", fmt.Errorf("code %q is not a valid short code", shortCode)
	}
	refLat = clipLatitude(refLat)
	refLng = normalizeLongitude(refLng)
	code := strings.ToUpper(shortCode)

	missing := sepPosition - strings.IndexByte(code, Separator)
	spacing := math.Pow(20, float64(2-missing/2))
	halfSpacing := spacing / 2

	prefix, err := Encode(refLat, refLng, pairCodeLength)
	if err != nil {
		return "", err
	}
	area, err := Decode(prefix[:missing] + code)
	if err != nil {
		return "", fmt.Errorf("recovering %q: %w", shortCode, err)
	}
	centerLat, centerLng := area.Center()

	// Shift to the adjacent candidate when the reference sits across the
	// cell boundary, staying inside valid latitudes.
	if refLat+halfSpacing < centerLat && centerLat-spacing >= -latMax {
		centerLat -= spacing
	} else if refLat-halfSpacing > centerLat && centerLat+spacing <= latMax {
		centerLat += spacing
	}
	if refLng+halfSpacing < centerLng {
		centerLng -= spacing
	} else if refLng-halfSpacing > centerLng {
		centerLng += spacing
	}
	return Encode(centerLat, centerLng, area.CodeLength)
}
