package kafka

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hotspot-etl/internal/config"
	"github.com/couchcryptid/hotspot-etl/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	classified := time.Date(2024, 8, 26, 15, 10, 0, 0, time.UTC)
	rec := domain.HotspotRecord{
		Timestamp:    time.Date(2024, 8, 26, 14, 21, 0, 0, time.UTC),
		Lat:          -9.12345,
		Lon:          -55.5,
		FRP:          450,
		Satellite:    "AQUA_M-T",
		Biome:        "Amazônia",
		BiomeSource:  domain.BiomeSourceFeed,
		Risk:         domain.RiskCritical,
		ClassifiedAt: classified,
		SourceSlot:   "focos_10min_20240826_1420.csv",
	}

	msg, err := serializeToMessage(rec)
	require.NoError(t, err)

	assert.Equal(t, []byte(rec.ID()), msg.Key)
	assert.Contains(t, string(msg.Value), `"risk_level":"Critical"`)
	assert.Contains(t, string(msg.Value), `"biome":"Amazônia"`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, HeaderRiskLevel, msg.Headers[0].Key)
	assert.Equal(t, []byte("Critical"), msg.Headers[0].Value)
	assert.Equal(t, HeaderClassifiedAt, msg.Headers[1].Key)
	assert.Equal(t, []byte(classified.Format(time.RFC3339)), msg.Headers[1].Value)
	assert.Equal(t, HeaderSourceSlot, msg.Headers[2].Key)
	assert.Equal(t, []byte("focos_10min_20240826_1420.csv"), msg.Headers[2].Value)
}

func TestSerializeToMessage_DuplicateDetectionsShareKey(t *testing.T) {
	ts := time.Date(2024, 8, 26, 14, 21, 0, 0, time.UTC)
	a := domain.HotspotRecord{Timestamp: ts, Lat: -9.12341, Lon: -55.5, Satellite: "NOAA-20", SourceSlot: "a"}
	b := domain.HotspotRecord{Timestamp: ts, Lat: -9.12339, Lon: -55.5, Satellite: "noaa-20", SourceSlot: "b"}

	ma, err := serializeToMessage(a)
	require.NoError(t, err)
	mb, err := serializeToMessage(b)
	require.NoError(t, err)
	assert.Equal(t, ma.Key, mb.Key)
}

func TestLoadBatchEmptyIsNoop(t *testing.T) {
	cfg := &config.Config{KafkaBrokers: []string{"127.0.0.1:1"}, KafkaSinkTopic: "classified-hotspots"}
	w := NewWriter(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer w.Close()

	assert.NoError(t, w.LoadBatch(context.Background(), nil))
}
