package resolver

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Extraction patterns, tried strictly in order. First hit wins; a failed
// numeric parse falls through to the next matcher rather than erroring.
var (
	// barePairPattern matches a raw "lat, lng" input.
	barePairPattern = regexp.MustCompile(`^\s*(-?\d+\.?\d*)\s*,\s*(-?\d+\.?\d*)\s*$`)

	// qParamPattern matches a q=lat,lng query parameter.
	qParamPattern = regexp.MustCompile(`[?&]q=(-?\d+\.?\d*)\s*,\s*(-?\d+\.?\d*)`)

	// atPathPattern matches the @lat,lng map-viewer path segment.
	atPathPattern = regexp.MustCompile(`@(-?\d+\.?\d*),(-?\d+\.?\d*)`)

	// placePathPattern additionally captures the place name segment.
	placePathPattern = regexp.MustCompile(`/place/([^/@]+)/?@(-?\d+\.?\d*),(-?\d+\.?\d*)`)

	// dataPayloadPattern matches coordinates embedded in the opaque data
	// blob of a long map URL.
	dataPayloadPattern = regexp.MustCompile(`!3d(-?\d+\.?\d*)!4d(-?\d+\.?\d*)`)

	// plusCodePattern finds a plus code candidate anywhere in the input.
	// Two digits before the separator are matched too so undersized codes
	// reach the length guard instead of falling out as malformed input.
	plusCodePattern = regexp.MustCompile(`(?i)\b([23456789CFGHJMPQRVWX]{2,8}\+[23456789CFGHJMPQRVWX]{2,3})\b`)
)

// coordMatch is a successful numeric extraction.
type coordMatch struct {
	lat, lng  float64
	placeName string
	source    Source
}

// parsePair converts two captured strings into finite coordinates. A false
// return means the matcher should be treated as a non-match.
func parsePair(latStr, lngStr string) (float64, float64, bool) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return 0, 0, false
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return 0, 0, false
	}
	return lat, lng, true
}

// matchCoordinates runs the numeric extraction matchers in priority order.
func matchCoordinates(input string) (coordMatch, bool) {
	if m := barePairPattern.FindStringSubmatch(input); m != nil {
		if lat, lng, ok := parsePair(m[1], m[2]); ok {
			return coordMatch{lat: lat, lng: lng, source: SourceDirect}, true
		}
	}
	if m := qParamPattern.FindStringSubmatch(input); m != nil {
		if lat, lng, ok := parsePair(m[1], m[2]); ok {
			return coordMatch{lat: lat, lng: lng, source: SourceQueryParam}, true
		}
	}
	// The place form is tried before the bare @ form so the name capture
	// is not lost to the simpler pattern.
	if m := placePathPattern.FindStringSubmatch(input); m != nil {
		if lat, lng, ok := parsePair(m[2], m[3]); ok {
			return coordMatch{
				lat:       lat,
				lng:       lng,
				placeName: decodePathSegment(m[1]),
				source:    SourcePlacePath,
			}, true
		}
	}
	if m := atPathPattern.FindStringSubmatch(input); m != nil {
		if lat, lng, ok := parsePair(m[1], m[2]); ok {
			return coordMatch{lat: lat, lng: lng, source: SourceViewerPath}, true
		}
	}
	if m := dataPayloadPattern.FindStringSubmatch(input); m != nil {
		if lat, lng, ok := parsePair(m[1], m[2]); ok {
			return coordMatch{lat: lat, lng: lng, source: SourceDataPayload}, true
		}
	}
	return coordMatch{}, false
}

// decodePathSegment turns an URL path segment into readable text.
func decodePathSegment(segment string) string {
	segment = strings.ReplaceAll(segment, "+", " ")
	if decoded, err := url.PathUnescape(segment); err == nil {
		segment = decoded
	}
	return strings.TrimSpace(segment)
}

// findPlusCode extracts a plus code candidate and the remaining text, which
// usually carries the place name needed for short-code recovery. The raw
// input is searched, not a decoded form: inside a query string the code's
// own separator survives as a literal + (or as %2B) while spaces around it
// are encoded as +, so decoding first would destroy the code.
func findPlusCode(input string) (code, remainder string, ok bool) {
	candidate := strings.ReplaceAll(input, "%2B", "+")
	candidate = strings.ReplaceAll(candidate, "%2b", "+")

	m := plusCodePattern.FindStringSubmatchIndex(candidate)
	if m == nil {
		return "", "", false
	}
	code = strings.ToUpper(candidate[m[2]:m[3]])
	remainder = placeText(candidate[:m[2]] + " " + candidate[m[3]:])
	return code, remainder, true
}

// placeText turns leftover URL text into something the locality table can
// substring-match: query-encoded spaces and percent escapes become plain
// characters, scaffolding stays but does not hurt the match.
func placeText(raw string) string {
	raw = strings.ReplaceAll(raw, "+", " ")
	if decoded, err := url.QueryUnescape(raw); err == nil {
		raw = decoded
	}
	return strings.TrimSpace(raw)
}
