package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hotspot-etl/internal/domain"
)

func readFixture(t *testing.T) domain.RawPayload {
	t.Helper()

	data, err := os.ReadFile(filepath.Join("testdata", "focos_10min_20240826_1420.csv"))
	require.NoError(t, err)

	slot, err := domain.NewTenMinuteSlot(time.Date(2024, 8, 26, 14, 20, 0, 0, time.UTC))
	require.NoError(t, err)
	return domain.RawPayload{Slot: slot, Data: data}
}

func TestHotspotTransformer_Fixture(t *testing.T) {
	classifiedAt := time.Date(2024, 8, 26, 14, 35, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(classifiedAt))
	t.Cleanup(func() {
		domain.SetClock(nil)
	})

	batch, err := newTestTransformer("Pantanal").Transform(context.Background(), readFixture(t))
	require.NoError(t, err)

	assert.Equal(t, "focos_10min_20240826_1420.csv", batch.Slot.ID())
	assert.Equal(t, 2, batch.Dropped)
	require.Len(t, batch.Records, 9)

	counts := map[domain.RiskLevel]int{}
	for _, r := range batch.Records {
		counts[r.Risk]++
		assert.Equal(t, classifiedAt, r.ClassifiedAt)
		assert.NotEmpty(t, r.RiskReasons)
		assert.True(t, r.Enriched())
		assert.Equal(t, "focos_10min_20240826_1420.csv", r.SourceSlot)
	}
	assert.Equal(t, map[domain.RiskLevel]int{
		domain.RiskLow:      1,
		domain.RiskMedium:   4,
		domain.RiskHigh:     1,
		domain.RiskCritical: 3,
	}, counts)

	cases := []struct {
		name        string
		index       int
		biome       string
		biomeSource string
		risk        domain.RiskLevel
	}{
		{"sensitive low escalates", 0, "Amazônia", domain.BiomeSourceFeed, domain.RiskMedium},
		{"sensitive medium escalates", 1, "Amazônia", domain.BiomeSourceFeed, domain.RiskHigh},
		{"critical stays critical", 2, "Amazônia", domain.BiomeSourceFeed, domain.RiskCritical},
		{"cerrado high escalates", 3, "Cerrado", domain.BiomeSourceFeed, domain.RiskCritical},
		{"caatinga not sensitive", 4, "Caatinga", domain.BiomeSourceFeed, domain.RiskMedium},
		{"pampa low", 5, "Pampa", domain.BiomeSourceFeed, domain.RiskLow},
		{"missing biome looked up", 6, "Pantanal", domain.BiomeSourceLookup, domain.RiskCritical},
		{"missing FRP is zero", 7, "Mata Atlântica", domain.BiomeSourceFeed, domain.RiskMedium},
		{"negative FRP is zero", 8, "Cerrado", domain.BiomeSourceFeed, domain.RiskMedium},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := batch.Records[tc.index]
			assert.Equal(t, tc.biome, r.Biome)
			assert.Equal(t, tc.biomeSource, r.BiomeSource)
			assert.Equal(t, tc.risk, r.Risk)
		})
	}

	assert.Equal(t, "PARÁ", batch.Records[0].State)
	assert.Equal(t, "SÃO FÉLIX DO XINGU", batch.Records[2].Municipality)
	assert.Equal(t, 0.0, batch.Records[7].FRP)
}

func TestHotspotTransformer_UnknownBiome(t *testing.T) {
	payload := domain.RawPayload{
		Slot: domain.NewDailySlot(time.Date(2024, 8, 26, 0, 0, 0, 0, time.UTC)),
		Data: []byte("lat,lon,datahora,frp\n-3.0,-20.0,2024-08-26 10:00:00,60\n"),
	}

	batch, err := newTestTransformer(domain.BiomeUnknown).Transform(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, domain.BiomeUnknown, batch.Records[0].Biome)
	assert.Equal(t, domain.RiskMedium, batch.Records[0].Risk, "unknown biome never escalates")
}

func TestHotspotTransformer_InvalidPayload(t *testing.T) {
	payload := domain.RawPayload{
		Slot: domain.NewDailySlot(time.Date(2024, 8, 26, 0, 0, 0, 0, time.UTC)),
		Data: []byte("<html>gateway timeout</html>"),
	}

	_, err := newTestTransformer("Cerrado").Transform(context.Background(), payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingColumns)
}

func TestHotspotTransformer_EmptyPayload(t *testing.T) {
	slot, err := domain.NewTenMinuteSlot(time.Date(2024, 8, 26, 14, 20, 0, 0, time.UTC))
	require.NoError(t, err)

	batch, err := newTestTransformer("Cerrado").Transform(context.Background(), domain.RawPayload{Slot: slot})
	require.NoError(t, err)
	assert.Empty(t, batch.Records)
	assert.Zero(t, batch.Dropped)
	assert.Equal(t, slot, batch.Slot)
}

func TestHotspotTransformer_LargePayloadParallel(t *testing.T) {
	slot, err := domain.NewTenMinuteSlot(time.Date(2024, 8, 26, 14, 20, 0, 0, time.UTC))
	require.NoError(t, err)

	lats := make([]float64, 1000)
	for i := range lats {
		lats[i] = -5 - float64(i)*0.001
	}
	batch, err := newTestTransformer("Cerrado").Transform(context.Background(), domain.RawPayload{Slot: slot, Data: []byte(slotCSV(slot, lats...))})
	require.NoError(t, err)
	require.Len(t, batch.Records, 1000)

	for i, r := range batch.Records {
		assert.InDelta(t, lats[i], r.Lat, 1e-9, "record order is preserved")
		assert.NotEqual(t, domain.RiskUnclassified, r.Risk)
	}
}

func TestHotspotTransformer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestTransformer("Cerrado").Transform(ctx, readFixture(t))
	assert.ErrorIs(t, err, context.Canceled)
}
