// Package biome resolves coordinates to Brazilian biomes using a GeoJSON
// reference file loaded once at startup.
package biome

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/rtree"

	"github.com/couchcryptid/hotspot-etl/internal/domain"
)

// DefaultNameProperty is the biome name attribute in IBGE biome files.
const DefaultNameProperty = "nom_bioma"

// nameFallbacks are tried when the configured name property is absent.
var nameFallbacks = []string{"nom_bioma", "bioma", "name", "Bioma", "NOME"}

// Options control how features are read from the reference file.
type Options struct {
	// NameProperty is the feature property holding the biome name.
	NameProperty string
	// Sensitive decides sensitivity for features without an explicit
	// boolean "sensitive" property.
	Sensitive domain.SensitivityPolicy
}

type region struct {
	name      string
	sensitive bool
	polygon   orb.Polygon
	multi     orb.MultiPolygon
}

func (r *region) contains(pt orb.Point) bool {
	if r.multi != nil {
		return planar.MultiPolygonContains(r.multi, pt)
	}
	return planar.PolygonContains(r.polygon, pt)
}

// Index is an immutable spatial index over biome polygons. It is safe for
// concurrent lookups.
type Index struct {
	regions   []region
	tree      rtree.RTreeG[int]
	sensitive map[string]bool
	fallback  domain.SensitivityPolicy
}

// Load reads and indexes a GeoJSON FeatureCollection. Any problem with the
// file is returned as a *domain.ReferenceDataError.
func Load(path string, opts Options) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ReferenceDataError{Path: path, Err: err}
	}
	idx, err := Parse(data, opts)
	if err != nil {
		return nil, &domain.ReferenceDataError{Path: path, Err: err}
	}
	return idx, nil
}

// Parse builds an Index from GeoJSON bytes.
func Parse(data []byte, opts Options) (*Index, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	if len(fc.Features) == 0 {
		return nil, errors.New("feature collection is empty")
	}
	if opts.NameProperty == "" {
		opts.NameProperty = DefaultNameProperty
	}
	if opts.Sensitive == nil {
		opts.Sensitive = domain.SensitiveSet{}
	}

	idx := &Index{
		regions:   make([]region, 0, len(fc.Features)),
		sensitive: make(map[string]bool, len(fc.Features)),
		fallback:  opts.Sensitive,
	}
	for i, f := range fc.Features {
		r, err := newRegion(f, opts)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		idx.regions = append(idx.regions, r)

		folded := domain.FoldName(r.name)
		idx.sensitive[folded] = idx.sensitive[folded] || r.sensitive

		b := f.Geometry.Bound()
		idx.tree.Insert([2]float64{b.Min.X(), b.Min.Y()}, [2]float64{b.Max.X(), b.Max.Y()}, i)
	}
	return idx, nil
}

func newRegion(f *geojson.Feature, opts Options) (region, error) {
	name := featureName(f.Properties, opts.NameProperty)
	if name == "" {
		return region{}, fmt.Errorf("no biome name in property %q", opts.NameProperty)
	}

	r := region{name: name}
	switch g := f.Geometry.(type) {
	case orb.Polygon:
		r.polygon = g
	case orb.MultiPolygon:
		r.multi = g
	case nil:
		return region{}, fmt.Errorf("biome %q has no geometry", name)
	default:
		return region{}, fmt.Errorf("biome %q: unsupported geometry %s", name, g.GeoJSONType())
	}

	if explicit, ok := boolProperty(f.Properties, "sensitive"); ok {
		r.sensitive = explicit
	} else {
		r.sensitive = opts.Sensitive.IsSensitive(name)
	}
	return r, nil
}

func featureName(props geojson.Properties, key string) string {
	for _, k := range append([]string{key}, nameFallbacks...) {
		if s, ok := props[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func boolProperty(props geojson.Properties, key string) (bool, bool) {
	switch v := props[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	}
	return false, false
}

// Lookup returns the name of the first polygon, in file order, that contains
// the point. Points on a shared border therefore resolve deterministically.
// It returns domain.BiomeUnknown when no polygon matches.
func (x *Index) Lookup(lat, lon float64) string {
	pt := orb.Point{lon, lat}
	var candidates []int
	x.tree.Search([2]float64{lon, lat}, [2]float64{lon, lat}, func(_, _ [2]float64, i int) bool {
		candidates = append(candidates, i)
		return true
	})
	slices.Sort(candidates)
	for _, i := range candidates {
		if x.regions[i].contains(pt) {
			return x.regions[i].name
		}
	}
	return domain.BiomeUnknown
}

// IsSensitive reports whether a biome escalates risk. Names are matched
// case- and accent-insensitively. Names not present in the file, such as a
// biome spelled differently by the feed, fall back to the configured policy.
func (x *Index) IsSensitive(name string) bool {
	if s, ok := x.sensitive[domain.FoldName(name)]; ok {
		return s
	}
	return x.fallback.IsSensitive(name)
}

// Len returns the number of indexed features.
func (x *Index) Len() int {
	return len(x.regions)
}

// Names returns the distinct biome names in file order.
func (x *Index) Names() []string {
	seen := make(map[string]struct{}, len(x.regions))
	var names []string
	for _, r := range x.regions {
		if _, ok := seen[r.name]; ok {
			continue
		}
		seen[r.name] = struct{}{}
		names = append(names, r.name)
	}
	return names
}
