package domain

// BiomeLocator resolves a coordinate to a biome name, returning BiomeUnknown
// when the point lies outside every known biome.
type BiomeLocator interface {
	Lookup(lat, lon float64) string
}

// Enricher fills missing biome attributes. It holds no mutable state, so a
// single Enricher can be shared by concurrent goroutines as long as the
// locator is read-only.
type Enricher struct {
	locator BiomeLocator
}

// NewEnricher creates an Enricher backed by locator.
func NewEnricher(locator BiomeLocator) *Enricher {
	return &Enricher{locator: locator}
}

// Enrich passes through records whose biome came from the feed and looks up
// the rest. The lookup result is stored even when it is BiomeUnknown.
func (e *Enricher) Enrich(r HotspotRecord) HotspotRecord {
	if r.Biome != "" {
		return r
	}
	r.Biome = e.locator.Lookup(r.Lat, r.Lon)
	if r.Biome == "" {
		r.Biome = BiomeUnknown
	}
	r.BiomeSource = BiomeSourceLookup
	return r
}
