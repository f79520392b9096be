package pipeline

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/hotspot-etl/internal/domain"
	"github.com/couchcryptid/hotspot-etl/internal/observability"
)

// chunkSize is the number of records enriched per goroutine.
const chunkSize = 256

// Batch is the output of transforming one slot payload.
type Batch struct {
	Slot    domain.Slot
	Records []domain.HotspotRecord
	Dropped int
}

// HotspotTransformer normalizes, enriches, and classifies slot payloads.
type HotspotTransformer struct {
	enricher   *domain.Enricher
	classifier *domain.Classifier
	logger     *slog.Logger
	metrics    *observability.Metrics
	workers    int
}

// NewTransformer creates a HotspotTransformer. metrics may be nil.
func NewTransformer(enricher *domain.Enricher, classifier *domain.Classifier, logger *slog.Logger, metrics *observability.Metrics) *HotspotTransformer {
	return &HotspotTransformer{
		enricher:   enricher,
		classifier: classifier,
		logger:     logger,
		metrics:    metrics,
		workers:    runtime.GOMAXPROCS(0),
	}
}

// Transform runs one payload through the CPU stages. Malformed rows are
// dropped and counted; a payload that cannot be decoded at all is an error.
func (t *HotspotTransformer) Transform(ctx context.Context, payload domain.RawPayload) (Batch, error) {
	seq, err := domain.Normalize(payload)
	if err != nil {
		return Batch{}, err
	}
	records, dropped := domain.CollectRecords(seq)
	for _, rowErr := range dropped {
		t.logger.Debug("row dropped", "slot", payload.Slot.ID(), "error", rowErr)
	}
	if len(dropped) > 0 {
		t.logger.Warn("malformed rows dropped", "slot", payload.Slot.ID(), "dropped", len(dropped), "kept", len(records))
	}

	if err := t.enrichAndClassify(ctx, records); err != nil {
		return Batch{}, err
	}

	if t.metrics != nil {
		t.metrics.RowsNormalized.Add(float64(len(records)))
		t.metrics.RowsDropped.Add(float64(len(dropped)))
		for _, r := range records {
			t.metrics.RecordsClassified.WithLabelValues(r.Risk.String()).Inc()
		}
	}

	return Batch{Slot: payload.Slot, Records: records, Dropped: len(dropped)}, nil
}

// enrichAndClassify updates records in place, one chunk per goroutine.
func (t *HotspotTransformer) enrichAndClassify(ctx context.Context, records []domain.HotspotRecord) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(t.workers, 1))
	for lo := 0; lo < len(records); lo += chunkSize {
		hi := min(lo+chunkSize, len(records))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%64 == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				records[i] = t.classifier.Apply(t.enricher.Enrich(records[i]))
			}
			return nil
		})
	}
	return g.Wait()
}
