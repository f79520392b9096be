package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"
)

// BiomeUnknown is stored when a detection falls outside every biome polygon.
const BiomeUnknown = "Unknown"

// Biome provenance values for HotspotRecord.BiomeSource.
const (
	BiomeSourceFeed   = "feed"
	BiomeSourceLookup = "lookup"
)

// keyPrecision is the number of decimal places coordinates are rounded to
// when building identity keys (~11 m at the equator).
const keyPrecision = 1e4

// HotspotRecord is the canonical shape of one satellite fire detection.
type HotspotRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	FRP          float64   `json:"frp"`
	Satellite    string    `json:"satellite"`
	State        string    `json:"state,omitempty"`
	Municipality string    `json:"municipality,omitempty"`

	// Biome is empty until enriched. BiomeUnknown means the lookup ran and matched nothing.
	Biome       string `json:"biome,omitempty"`
	BiomeSource string `json:"biome_source,omitempty"`

	Risk         RiskLevel `json:"risk_level"`
	RiskReasons  []string  `json:"risk_reasons,omitempty"`
	ClassifiedAt time.Time `json:"classified_at"`

	SourceSlot string `json:"source_slot"`
}

// IdentityKey identifies a detection across overlapping feed slots.
type IdentityKey struct {
	Lat       int64
	Lon       int64
	Unix      int64
	Satellite string
}

// Key returns the record's identity key: coordinates rounded to four decimals,
// the timestamp in whole seconds, and the upper-cased satellite name.
func (r HotspotRecord) Key() IdentityKey {
	return IdentityKey{
		Lat:       int64(math.Round(r.Lat * keyPrecision)),
		Lon:       int64(math.Round(r.Lon * keyPrecision)),
		Unix:      r.Timestamp.Unix(),
		Satellite: strings.ToUpper(strings.TrimSpace(r.Satellite)),
	}
}

// ID produces a deterministic ID from the identity key. Two records that
// deduplicate against each other always share an ID.
func (r HotspotRecord) ID() string {
	return r.Key().String()
}

func (k IdentityKey) String() string {
	input := fmt.Sprintf("%d|%d|%d|%s", k.Lat, k.Lon, k.Unix, k.Satellite)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:8])
}

// Enriched reports whether a biome has been assigned.
func (r HotspotRecord) Enriched() bool {
	return r.Biome != ""
}

// RawPayload is the undecoded body of one feed slot.
type RawPayload struct {
	Slot Slot
	Data []byte
}
