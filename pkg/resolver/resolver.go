// Package resolver turns free-form location references into validated
// coordinates. It accepts pasted map URLs, bare coordinate pairs, short
// links and plus codes, and funnels every result through a regional
// bounding box check before returning it.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/serendibstay/georesolve/pkg/core"
	"github.com/serendibstay/georesolve/pkg/geo"
	"github.com/serendibstay/georesolve/pkg/geocode"
	"github.com/serendibstay/georesolve/pkg/localities"
	"github.com/serendibstay/georesolve/pkg/olc"
	"github.com/serendibstay/georesolve/pkg/shortlink"
	"github.com/serendibstay/georesolve/pkg/tracing"
)

// Source identifies which extraction path produced a resolution.
type Source string

const (
	SourceDirect      Source = "direct"
	SourceQueryParam  Source = "query_param"
	SourcePlacePath   Source = "place_path"
	SourceViewerPath  Source = "viewer_path"
	SourceDataPayload Source = "data_payload"
	SourceShortLink   Source = "short_link"
	SourcePlusCode    Source = "plus_code"
)

// Confidence distinguishes deterministic extractions from AI-derived ones.
// Low-confidence results should be surfaced to the operator for review
// before being written anywhere durable.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// Resolution is a validated resolve result.
type Resolution struct {
	Location   geo.Location `json:"location"`
	PlaceName  string       `json:"place_name,omitempty"`
	PlusCode   string       `json:"plus_code,omitempty"`
	Source     Source       `json:"source"`
	Confidence Confidence   `json:"confidence"`
	// ReferenceTier names the reference ladder step that anchored a short
	// code recovery: locality, geocode or region.
	ReferenceTier string `json:"reference_tier,omitempty"`
}

// Expander follows short links to their full URL.
type Expander interface {
	Expand(ctx context.Context, shortURL string) (*shortlink.Expansion, error)
}

// Geocoder resolves free-text place names to coordinates.
type Geocoder interface {
	Search(ctx context.Context, query string) (*geocode.Result, error)
}

// PlusCodeAI is the completion-backed fallback for plus codes that carry
// too few digits for deterministic recovery.
type PlusCodeAI interface {
	Enabled() bool
	DecodePlusCode(ctx context.Context, code, placeName string) (geo.Location, error)
}

// maxExpansionDepth caps short-link chains. Real chains are one hop, two
// when a g.co vanity link fronts a maps.app.goo.gl link.
const maxExpansionDepth = 3

// Resolver orchestrates the extraction matchers, the short-link cascade
// and the plus code recovery ladder.
type Resolver struct {
	logger    *slog.Logger
	table     *localities.Table
	expander  Expander
	geocoder  Geocoder
	ai        PlusCodeAI
	validator *Validator
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithExpander sets the short-link expansion cascade.
func WithExpander(e Expander) Option {
	return func(r *Resolver) { r.expander = e }
}

// WithGeocoder sets the place-name geocoder.
func WithGeocoder(g Geocoder) Option {
	return func(r *Resolver) { r.geocoder = g }
}

// WithAI sets the completion-backed fallback.
func WithAI(ai PlusCodeAI) Option {
	return func(r *Resolver) { r.ai = ai }
}

// WithValidator overrides the regional validator.
func WithValidator(v *Validator) Option {
	return func(r *Resolver) { r.validator = v }
}

// NewResolver builds a resolver over the given locality table.
func NewResolver(table *localities.Table, opts ...Option) *Resolver {
	r := &Resolver{
		logger:    slog.Default(),
		table:     table,
		validator: NewValidator(SriLankaBounds),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve classifies the input and runs the matching extraction path. Every
// returned coordinate has passed the regional bounding box check.
func (r *Resolver) Resolve(ctx context.Context, input string) (*Resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.resolve")
	defer span.End()

	input = strings.TrimSpace(input)
	if input == "" {
		return nil, core.NewError(core.ErrEmptyParameter, "location reference is empty").
			WithGuidance("Provide a map URL, a coordinate pair, or a plus code")
	}

	res, err := r.resolve(ctx, input, 0)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	tracing.SetAttributes(ctx,
		attribute.String(tracing.AttrResolveSource, string(res.Source)),
		attribute.String(tracing.AttrResolveConfidence, string(res.Confidence)),
	)
	return res, nil
}

// ResolvePlusCode resolves a plus code on its own, with placeName supplying
// the recovery context for short codes.
func (r *Resolver) ResolvePlusCode(ctx context.Context, code, placeName string) (*Resolution, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, core.NewError(core.ErrEmptyParameter, "plus code is empty").
			WithGuidance("Provide a plus code such as \"6MQ2WFXW+2GR\" or \"WFXW+2GR\" with a town name")
	}
	if err := olc.Check(code); err != nil {
		return nil, core.NewError(core.ErrMalformedInput, err.Error()).WithQuery(code)
	}
	return r.resolvePlusCode(ctx, code, strings.TrimSpace(placeName))
}

func (r *Resolver) resolve(ctx context.Context, input string, depth int) (*Resolution, error) {
	if m, ok := matchCoordinates(input); ok {
		if err := r.validator.Check(m.lat, m.lng); err != nil {
			return nil, err
		}
		return &Resolution{
			Location:   geo.Location{Latitude: m.lat, Longitude: m.lng},
			PlaceName:  m.placeName,
			Source:     m.source,
			Confidence: ConfidenceHigh,
		}, nil
	}

	if shortlink.IsShortLink(input) {
		return r.resolveShortLink(ctx, input, depth)
	}

	if code, remainder, ok := findPlusCode(input); ok {
		return r.resolvePlusCode(ctx, code, remainder)
	}

	return nil, core.NewError(core.ErrMalformedInput,
		fmt.Sprintf("no coordinates, short link or plus code found in %q", input)).
		WithQuery(input).
		WithGuidance("Paste the full Google Maps URL or the coordinates shown in the app")
}

// resolveShortLink expands the link and re-classifies whatever comes back.
// Expanded URLs can themselves be short links, so this recurses with a
// depth cap.
func (r *Resolver) resolveShortLink(ctx context.Context, input string, depth int) (*Resolution, error) {
	if depth >= maxExpansionDepth {
		return nil, core.NewError(core.ErrShortLinkUnresolved,
			"short link expansion chain too deep").
			WithQuery(input)
	}
	if r.expander == nil {
		return nil, core.NewError(core.ErrShortLinkUnresolved,
			"short link expansion is not configured").
			WithQuery(input).
			WithGuidance("Open the link in a browser and paste the full URL instead")
	}

	exp, err := r.expander.Expand(ctx, input)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("short link expanded",
		"url", input,
		"expanded", exp.URL,
		"strategy", exp.Strategy,
		"approximate", exp.Approximate)

	res, err := r.resolve(ctx, exp.URL, depth+1)
	if err != nil {
		return nil, err
	}
	res.Source = SourceShortLink
	if exp.Approximate {
		res.Confidence = ConfidenceLow
	}
	return res, nil
}

// resolvePlusCode decodes full codes directly and recovers short codes
// against a reference point. Short codes below the recovery floor go to the
// AI fallback when one is configured, since any reference point coarser
// than the candidate spacing silently recovers the wrong cell.
func (r *Resolver) resolvePlusCode(ctx context.Context, code, placeName string) (*Resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.plus_code")
	defer span.End()

	if olc.IsFull(code) {
		area, err := olc.Decode(code)
		if err != nil {
			return nil, core.NewError(core.ErrMalformedInput, err.Error()).WithQuery(code)
		}
		lat, lng := area.Center()
		if err := r.validator.Check(lat, lng); err != nil {
			return nil, err
		}
		return &Resolution{
			Location:   geo.Location{Latitude: lat, Longitude: lng},
			PlaceName:  placeName,
			PlusCode:   code,
			Source:     SourcePlusCode,
			Confidence: ConfidenceHigh,
		}, nil
	}
	if !olc.IsShort(code) {
		return nil, core.NewError(core.ErrMalformedInput,
			fmt.Sprintf("invalid plus code %q", code)).WithQuery(code)
	}

	if olc.ShortDigits(code) < olc.MinRecoveryDigits {
		return r.decodeShortCodeWithAI(ctx, code, placeName)
	}

	ref, tier, err := r.referencePoint(ctx, placeName)
	if err != nil {
		// No usable reference point. The AI fallback can still place the
		// code when the raw text carries any context at all.
		if res, aiErr := r.decodeShortCodeWithAI(ctx, code, placeName); aiErr == nil {
			return res, nil
		}
		return nil, err
	}
	tracing.SetAttributes(ctx, attribute.String(tracing.AttrReferenceTier, tier))

	full, err := olc.RecoverNearest(code, ref.Latitude, ref.Longitude)
	if err != nil {
		return nil, core.NewError(core.ErrMalformedInput, err.Error()).WithQuery(code)
	}
	area, err := olc.Decode(full)
	if err != nil {
		return nil, core.NewError(core.ErrInternalError, err.Error())
	}
	lat, lng := area.Center()
	if err := r.validator.Check(lat, lng); err != nil {
		return nil, err
	}

	// A structurally valid recovery can still land hundreds of kilometers
	// off when the reference point was wrong for the code. Reject anything
	// outside the candidate neighborhood of the reference.
	spacing, err := olc.CandidateSpacing(code)
	if err != nil {
		return nil, core.NewError(core.ErrInternalError, err.Error())
	}
	decoded := geo.Location{Latitude: lat, Longitude: lng}
	if err := r.validator.CheckRecovery(decoded, ref, spacing); err != nil {
		return nil, err
	}

	return &Resolution{
		Location:      decoded,
		PlaceName:     placeName,
		PlusCode:      full,
		Source:        SourcePlusCode,
		Confidence:    ConfidenceHigh,
		ReferenceTier: tier,
	}, nil
}

func (r *Resolver) decodeShortCodeWithAI(ctx context.Context, code, placeName string) (*Resolution, error) {
	if r.ai == nil || !r.ai.Enabled() || placeName == "" {
		return nil, core.NewError(core.ErrPlusCodeTooShort,
			fmt.Sprintf("plus code %q is too short to recover reliably", code)).
			WithQuery(code).
			WithGuidance("Include the town name after the code, e.g. \"" + code + " Mirissa\"")
	}

	loc, err := r.ai.DecodePlusCode(ctx, code, placeName)
	if err != nil {
		return nil, err
	}
	if err := r.validator.Check(loc.Latitude, loc.Longitude); err != nil {
		return nil, err
	}
	return &Resolution{
		Location:   loc,
		PlaceName:  placeName,
		PlusCode:   code,
		Source:     SourcePlusCode,
		Confidence: ConfidenceLow,
	}, nil
}
