package biome

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hotspot-etl/internal/domain"
)

// Amazônia and Cerrado overlap in lon [-55,-50], lat [-10,-5]. Pampa is two
// disjoint squares with a gap at lon [-56,-54].
const testBiomes = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"nom_bioma": "Amazônia"},
     "geometry": {"type": "Polygon", "coordinates": [[[-60,-10],[-50,-10],[-50,0],[-60,0],[-60,-10]]]}},
    {"type": "Feature", "properties": {"nom_bioma": "Cerrado"},
     "geometry": {"type": "Polygon", "coordinates": [[[-55,-20],[-45,-20],[-45,-5],[-55,-5],[-55,-20]]]}},
    {"type": "Feature", "properties": {"nom_bioma": "Pampa", "sensitive": "false"},
     "geometry": {"type": "MultiPolygon", "coordinates": [
       [[[-58,-32],[-56,-32],[-56,-30],[-58,-30],[-58,-32]]],
       [[[-54,-32],[-52,-32],[-52,-30],[-54,-30],[-54,-32]]]
     ]}},
    {"type": "Feature", "properties": {"name": "Caatinga", "sensitive": true},
     "geometry": {"type": "Polygon", "coordinates": [[[-42,-10],[-36,-10],[-36,-3],[-42,-3],[-42,-10]]]}}
  ]
}`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "biomes.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func loadTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Load(writeFile(t, testBiomes), Options{
		Sensitive: domain.NewSensitiveSet("Amazônia", "Cerrado", "Pantanal"),
	})
	require.NoError(t, err)
	return idx
}

func TestIndexLookup(t *testing.T) {
	idx := loadTestIndex(t)
	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, []string{"Amazônia", "Cerrado", "Pampa", "Caatinga"}, idx.Names())

	tests := []struct {
		name     string
		lat, lon float64
		expected string
	}{
		{"inside amazonia only", -5, -57, "Amazônia"},
		{"inside cerrado only", -15, -47, "Cerrado"},
		{"overlap resolves to first feature", -7, -52, "Amazônia"},
		{"on shared border", -7, -50, "Amazônia"},
		{"multipolygon first part", -31, -57, "Pampa"},
		{"multipolygon second part", -31, -53, "Pampa"},
		{"gap inside multipolygon bounds", -31, -55, domain.BiomeUnknown},
		{"fallback name property", -5, -40, "Caatinga"},
		{"outside every polygon", 10, 10, domain.BiomeUnknown},
		{"ocean", -23, -30, domain.BiomeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, idx.Lookup(tt.lat, tt.lon))
		})
	}
}

func TestIndexIsSensitive(t *testing.T) {
	idx := loadTestIndex(t)

	tests := []struct {
		name     string
		expected bool
	}{
		{"Amazônia", true},
		{"AMAZONIA", true},
		{"Cerrado", true},
		{"Pampa", false},
		{"Caatinga", true},
		{"Pantanal", true},
		{"Mata Atlântica", false},
		{domain.BiomeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, idx.IsSensitive(tt.name))
		})
	}
}

func TestIndex_ClassifierPolicy(t *testing.T) {
	idx := loadTestIndex(t)
	c := domain.NewClassifier(domain.Thresholds{Medium: 50, High: 200, Critical: 400}, idx)
	enricher := domain.NewEnricher(idx)

	r := enricher.Enrich(domain.HotspotRecord{Lat: -5, Lon: -57, FRP: 60})
	assert.Equal(t, domain.RiskHigh, c.Classify(r))

	r = enricher.Enrich(domain.HotspotRecord{Lat: -31, Lon: -57, FRP: 60})
	assert.Equal(t, domain.RiskMedium, c.Classify(r))
}

func TestIndex_ConcurrentLookups(t *testing.T) {
	idx := loadTestIndex(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, "Cerrado", idx.Lookup(-15, -47))
			}
		}()
	}
	wg.Wait()
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", `{"type": "FeatureCollection", "features": [`},
		{"not a feature collection", `{"type": "Point", "coordinates": [1, 2]}`},
		{"empty collection", `{"type": "FeatureCollection", "features": []}`},
		{"point geometry", `{"type": "FeatureCollection", "features": [
			{"type": "Feature", "properties": {"nom_bioma": "Pampa"}, "geometry": {"type": "Point", "coordinates": [1, 2]}}]}`},
		{"missing geometry", `{"type": "FeatureCollection", "features": [
			{"type": "Feature", "properties": {"nom_bioma": "Pampa"}, "geometry": null}]}`},
		{"missing name", `{"type": "FeatureCollection", "features": [
			{"type": "Feature", "properties": {"code": 4},
			 "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,0]]]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.content)
			_, err := Load(path, Options{})
			require.Error(t, err)

			var refErr *domain.ReferenceDataError
			require.True(t, errors.As(err, &refErr))
			assert.Equal(t, path, refErr.Path)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.json"), Options{})
		var refErr *domain.ReferenceDataError
		require.True(t, errors.As(err, &refErr))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
}

func TestLoad_CustomNameProperty(t *testing.T) {
	content := `{"type": "FeatureCollection", "features": [
		{"type": "Feature", "properties": {"BIOMA_NOME": "Pantanal", "nom_bioma": "ignored"},
		 "geometry": {"type": "Polygon", "coordinates": [[[-58,-20],[-55,-20],[-55,-16],[-58,-16],[-58,-20]]]}}]}`

	idx, err := Load(writeFile(t, content), Options{NameProperty: "BIOMA_NOME"})
	require.NoError(t, err)
	assert.Equal(t, "Pantanal", idx.Lookup(-18, -56))
}
