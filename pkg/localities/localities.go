// Package localities provides the reference point table used to recover
// short plus codes: a curated set of Sri Lankan towns with aliases, plus
// coarse regional centroids as a fallback when no town matches.
package localities

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/serendibstay/georesolve/pkg/geo"
)

//go:embed data/localities.yaml
var embeddedData embed.FS

// Locality is a named town with a reference coordinate accurate enough to
// recover plus codes shortened to four or more digits.
type Locality struct {
	Name      string   `yaml:"name" json:"name"`
	Latitude  float64  `yaml:"latitude" json:"latitude"`
	Longitude float64  `yaml:"longitude" json:"longitude"`
	Region    string   `yaml:"region" json:"region"`
	Aliases   []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Location returns the locality's reference coordinate.
func (l *Locality) Location() geo.Location {
	return geo.Location{Latitude: l.Latitude, Longitude: l.Longitude}
}

// Region is a coarse fallback centroid covering several localities.
type Region struct {
	Name      string  `yaml:"name" json:"name"`
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	RadiusKm  float64 `yaml:"radius_km" json:"radiusKm"`
}

// Location returns the region's centroid.
func (r *Region) Location() geo.Location {
	return geo.Location{Latitude: r.Latitude, Longitude: r.Longitude}
}

type dataset struct {
	Regions    []Region   `yaml:"regions"`
	Localities []Locality `yaml:"localities"`
}

// Table is an in-memory locality index with case-insensitive lookup by
// name, alias and substring.
type Table struct {
	localities []Locality
	regions    []Region
	// byName maps lowercased canonical names and aliases to indexes into
	// localities.
	byName map[string]int
}

// Load builds the table from the embedded dataset.
func Load() (*Table, error) {
	raw, err := embeddedData.ReadFile("data/localities.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded locality data: %w", err)
	}
	return parse(raw)
}

// LoadFile builds the table from an external YAML file, replacing the
// embedded dataset. Used to extend coverage without rebuilding.
func LoadFile(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading locality data %s: %w", path, err)
	}
	return parse(raw)
}

func parse(raw []byte) (*Table, error) {
	var ds dataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("parsing locality data: %w", err)
	}
	if len(ds.Localities) == 0 {
		return nil, fmt.Errorf("locality data contains no localities")
	}

	t := &Table{
		localities: ds.Localities,
		regions:    ds.Regions,
		byName:     make(map[string]int, len(ds.Localities)*2),
	}
	regionNames := make(map[string]bool, len(ds.Regions))
	for _, r := range ds.Regions {
		if err := geo.ValidateCoords(r.Latitude, r.Longitude); err != nil {
			return nil, fmt.Errorf("region %q: %w", r.Name, err)
		}
		regionNames[r.Name] = true
	}
	for i, loc := range ds.Localities {
		if err := geo.ValidateCoords(loc.Latitude, loc.Longitude); err != nil {
			return nil, fmt.Errorf("locality %q: %w", loc.Name, err)
		}
		if loc.Region != "" && !regionNames[loc.Region] {
			return nil, fmt.Errorf("locality %q references unknown region %q", loc.Name, loc.Region)
		}
		t.byName[strings.ToLower(loc.Name)] = i
		for _, alias := range loc.Aliases {
			key := strings.ToLower(alias)
			if _, exists := t.byName[key]; !exists {
				t.byName[key] = i
			}
		}
	}
	return t, nil
}

// Count returns the number of localities in the table.
func (t *Table) Count() int {
	return len(t.localities)
}

// All returns the localities in dataset order.
func (t *Table) All() []Locality {
	out := make([]Locality, len(t.localities))
	copy(out, t.localities)
	return out
}

// Regions returns the regional fallback centroids in dataset order.
func (t *Table) Regions() []Region {
	out := make([]Region, len(t.regions))
	copy(out, t.regions)
	return out
}

// Find resolves a free-text place name to a locality. Lookup is case
// insensitive and proceeds from exact name match through aliases to a
// substring scan, so "Russian Guesthouse, Mirissa" still resolves to
// Mirissa. Returns nil when nothing matches.
func (t *Table) Find(name string) *Locality {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return nil
	}
	if i, ok := t.byName[normalized]; ok {
		loc := t.localities[i]
		return &loc
	}
	// Substring scan: the canonical name appearing anywhere in the query.
	for i := range t.localities {
		if strings.Contains(normalized, strings.ToLower(t.localities[i].Name)) {
			loc := t.localities[i]
			return &loc
		}
	}
	// Aliases too; "Trinco beach house" should land on Trincomalee.
	for i := range t.localities {
		for _, alias := range t.localities[i].Aliases {
			if strings.Contains(normalized, strings.ToLower(alias)) {
				loc := t.localities[i]
				return &loc
			}
		}
	}
	return nil
}

// FindRegion resolves a region by name, case insensitive. Returns nil when
// the region is unknown.
func (t *Table) FindRegion(name string) *Region {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for i := range t.regions {
		if strings.ToLower(t.regions[i].Name) == normalized {
			r := t.regions[i]
			return &r
		}
	}
	return nil
}

// RegionFor returns the fallback centroid for the locality's region, or nil
// when the locality has none.
func (t *Table) RegionFor(loc *Locality) *Region {
	if loc == nil || loc.Region == "" {
		return nil
	}
	return t.FindRegion(loc.Region)
}

// Nearest returns the locality closest to the given point and its distance
// in meters. Returns nil when the table is empty.
func (t *Table) Nearest(lat, lng float64) (*Locality, float64) {
	var best *Locality
	bestDist := 0.0
	for i := range t.localities {
		d := geo.HaversineDistance(lat, lng, t.localities[i].Latitude, t.localities[i].Longitude)
		if best == nil || d < bestDist {
			loc := t.localities[i]
			best = &loc
			bestDist = d
		}
	}
	return best, bestDist
}
