package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/hotspot-etl/internal/domain"
	"github.com/couchcryptid/hotspot-etl/internal/observability"
	"github.com/couchcryptid/hotspot-etl/internal/pipeline"
)

// --- mocks ---

type mockLocator struct {
	biome string
}

func (m mockLocator) Lookup(_, _ float64) string {
	return m.biome
}

type mockFetcher struct {
	mu       sync.Mutex
	payloads map[string]string
	failures map[string]error
	calls    [][]domain.Slot

	// block, when set, holds FetchAll until the context is cancelled or the channel is closed.
	block   chan struct{}
	entered chan struct{}
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		payloads: make(map[string]string),
		failures: make(map[string]error),
	}
}

func (m *mockFetcher) set(slot domain.Slot, csv string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[slot.ID()] = csv
}

func (m *mockFetcher) fail(slot domain.Slot, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[slot.ID()] = err
}

func (m *mockFetcher) FetchAll(ctx context.Context, slots []domain.Slot) []domain.FetchResult {
	m.mu.Lock()
	m.calls = append(m.calls, slots)
	block, entered := m.block, m.entered
	m.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-ctx.Done():
		case <-block:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	results := make([]domain.FetchResult, len(slots))
	for i, s := range slots {
		results[i] = domain.FetchResult{Slot: s, Attempts: 1}
		switch {
		case ctx.Err() != nil:
			results[i].Outcome = domain.OutcomeFailed
			results[i].Err = ctx.Err()
		case m.failures[s.ID()] != nil:
			results[i].Outcome = domain.OutcomeFailed
			results[i].Err = &domain.PermanentFetchError{Slot: s, Attempts: 1, Err: m.failures[s.ID()]}
		case m.payloads[s.ID()] != "":
			results[i].Outcome = domain.OutcomeFetched
			results[i].Payload = domain.RawPayload{Slot: s, Data: []byte(m.payloads[s.ID()])}
		default:
			results[i].Outcome = domain.OutcomeMissing
		}
	}
	return results
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockFetcher) lastCall() []domain.Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []domain.HotspotRecord
	err    error
}

func (m *mockLoader) LoadBatch(_ context.Context, records []domain.HotspotRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, records...)
	return nil
}

// --- helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTransformer(lookupBiome string) *pipeline.HotspotTransformer {
	classifier := domain.NewClassifier(
		domain.Thresholds{Medium: 50, High: 200, Critical: 400},
		domain.NewSensitiveSet("Amazônia", "Mata Atlântica", "Cerrado", "Pantanal"),
	)
	return pipeline.NewTransformer(domain.NewEnricher(mockLocator{biome: lookupBiome}), classifier, testLogger(), observability.NewMetricsForTesting())
}

// slotCSV renders one detection per entry, timestamped inside the slot.
func slotCSV(slot domain.Slot, lats ...float64) string {
	var b strings.Builder
	b.WriteString("lat,lon,datahora,satelite,bioma,frp\n")
	for i, lat := range lats {
		ts := slot.Start.Add(time.Duration(i) * time.Minute)
		fmt.Fprintf(&b, "%.4f,-55.0000,%s,AQUA_M-T,Amazônia,%d\n", lat, ts.Format("2006-01-02 15:04:05"), 10*(i+1))
	}
	return b.String()
}
