package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hotspot-etl/internal/domain"
	"github.com/couchcryptid/hotspot-etl/internal/observability"
	"github.com/couchcryptid/hotspot-etl/internal/window"
)

// SlotFetcher resolves feed slots to raw payloads.
type SlotFetcher interface {
	FetchAll(ctx context.Context, slots []domain.Slot) []domain.FetchResult
}

// Transformer converts a raw slot payload into classified records.
type Transformer interface {
	Transform(ctx context.Context, payload domain.RawPayload) (Batch, error)
}

// BatchLoader publishes records newly added to the window.
type BatchLoader interface {
	LoadBatch(ctx context.Context, records []domain.HotspotRecord) error
}

// SlotFailure names a slot that could not be used and why.
type SlotFailure struct {
	Slot  string `json:"slot"`
	Error string `json:"error"`
}

// RefreshSummary reports what one monitoring refresh did.
type RefreshSummary struct {
	Slots          int           `json:"slots"`
	Skipped        int           `json:"skipped"`
	Fetched        int           `json:"fetched"`
	Cached         int           `json:"cached"`
	Missing        int           `json:"missing"`
	Failed         int           `json:"failed"`
	Merged         int           `json:"merged"`
	Added          int           `json:"added"`
	Duplicates     int           `json:"duplicates"`
	RowsDropped    int           `json:"rows_dropped"`
	EvictedRecords int           `json:"evicted_records"`
	Failures       []SlotFailure `json:"failures,omitempty"`
	Canceled       bool          `json:"canceled"`
	Duration       time.Duration `json:"duration"`
}

// Monitor keeps the window current by fetching new 10-minute slots.
type Monitor struct {
	fetcher     SlotFetcher
	transformer Transformer
	store       *window.Store
	loader      BatchLoader
	clock       clockwork.Clock
	interval    time.Duration
	span        time.Duration
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool

	// mergeMu serializes refreshes so the store has a single writer.
	mergeMu sync.Mutex

	cancelMu sync.Mutex
	cancel   context.CancelFunc
	gen      uint64
}

// MonitorOptions configure a Monitor. Loader and Clock are optional.
type MonitorOptions struct {
	Interval time.Duration
	Span     time.Duration
	Loader   BatchLoader
	Clock    clockwork.Clock
}

// NewMonitor creates a Monitor over the given stages and window. metrics may be nil.
func NewMonitor(f SlotFetcher, t Transformer, store *window.Store, opts MonitorOptions, logger *slog.Logger, metrics *observability.Metrics) *Monitor {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Monitor{
		fetcher:     f,
		transformer: t,
		store:       store,
		loader:      opts.Loader,
		clock:       opts.Clock,
		interval:    opts.Interval,
		span:        opts.Span,
		logger:      logger,
		metrics:     metrics,
	}
}

// CheckReadiness returns nil once a refresh has completed, or an error
// describing why the service is not yet ready.
func (m *Monitor) CheckReadiness(_ context.Context) error {
	if !m.ready.Load() {
		return errors.New("monitor has not completed a refresh yet")
	}
	return nil
}

// Ready reports whether a refresh has completed.
func (m *Monitor) Ready() bool {
	return m.ready.Load()
}

// Run refreshes immediately and then on every interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started", "interval", m.interval, "span", m.span)
	if m.metrics != nil {
		m.metrics.MonitorRunning.Set(1)
		defer m.metrics.MonitorRunning.Set(0)
	}

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Refresh(ctx)

		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// Refresh fetches the slots of the window that are not retained yet and
// merges them in slot order. Starting a refresh cancels any refresh still in
// flight; a cancelled refresh stops before its next merge, never inside one.
func (m *Monitor) Refresh(ctx context.Context) RefreshSummary {
	ctx, gen := m.supersede(ctx)
	defer m.release(gen)

	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()

	start := m.clock.Now()
	var sum RefreshSummary

	_, sum.EvictedRecords = m.store.Prune()

	var pending []domain.Slot
	for _, slot := range m.windowSlots() {
		if m.store.Has(slot.ID()) {
			sum.Skipped++
			continue
		}
		pending = append(pending, slot)
	}
	sum.Slots = len(pending) + sum.Skipped

	results := m.fetcher.FetchAll(ctx, pending)
	for _, res := range results {
		if ctx.Err() != nil {
			sum.Canceled = true
			break
		}
		m.apply(ctx, res, &sum)
	}
	if ctx.Err() != nil {
		sum.Canceled = true
	}

	sum.Duration = m.clock.Since(start)
	if m.metrics != nil {
		m.metrics.WindowRecords.Set(float64(m.store.Len()))
		m.metrics.WindowSlots.Set(float64(len(m.store.Slots())))
		m.metrics.WindowEvictions.Add(float64(sum.EvictedRecords))
		m.metrics.WindowDuplicates.Add(float64(sum.Duplicates))
	}

	if sum.Canceled {
		m.logger.Info("refresh superseded", "merged", sum.Merged, "pending", len(pending))
		return sum
	}

	if m.metrics != nil {
		m.metrics.RefreshDuration.Observe(sum.Duration.Seconds())
	}
	m.ready.Store(true)
	m.logger.Info("refresh complete",
		"slots", sum.Slots,
		"skipped", sum.Skipped,
		"fetched", sum.Fetched,
		"cached", sum.Cached,
		"missing", sum.Missing,
		"failed", sum.Failed,
		"added", sum.Added,
		"duplicates", sum.Duplicates,
		"rows_dropped", sum.RowsDropped,
		"evicted", sum.EvictedRecords,
		"window_records", m.store.Len(),
		"duration", sum.Duration,
	)
	return sum
}

// apply transforms one fetched slot and merges it into the window.
func (m *Monitor) apply(ctx context.Context, res domain.FetchResult, sum *RefreshSummary) {
	id := res.Slot.ID()
	switch res.Outcome {
	case domain.OutcomeMissing:
		sum.Missing++
		return
	case domain.OutcomeFailed:
		sum.Failed++
		sum.Failures = append(sum.Failures, SlotFailure{Slot: id, Error: errString(res.Err)})
		return
	case domain.OutcomeCached:
		sum.Cached++
	default:
		sum.Fetched++
	}

	batch, err := m.transformer.Transform(ctx, res.Payload)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("slot skipped", "slot", id, "error", err)
		sum.Failed++
		sum.Failures = append(sum.Failures, SlotFailure{Slot: id, Error: err.Error()})
		return
	}
	sum.RowsDropped += batch.Dropped

	mr := m.store.MergeSlot(res.Slot, batch.Records)
	sum.EvictedRecords += mr.EvictedRecords
	if mr.Rejected {
		m.logger.Debug("slot outside window", "slot", id)
		return
	}
	sum.Merged++
	sum.Added += len(mr.Added)
	sum.Duplicates += mr.Duplicates

	if m.loader != nil && len(mr.Added) > 0 {
		if err := m.loader.LoadBatch(ctx, mr.Added); err != nil {
			m.logger.Error("publish failed", "slot", id, "records", len(mr.Added), "error", err)
			return
		}
		if m.metrics != nil {
			m.metrics.RecordsPublished.Add(float64(len(mr.Added)))
		}
	}
}

// windowSlots lists the 10-minute slots whose start lies inside the window.
func (m *Monitor) windowSlots() []domain.Slot {
	now := m.clock.Now().UTC()
	from := m.store.Cutoff().Truncate(10 * time.Minute)
	if from.Before(m.store.Cutoff()) {
		from = from.Add(10 * time.Minute)
	}
	return domain.TenMinuteSlotsBetween(from, now)
}

// supersede cancels the refresh in flight, if any, and returns a context for
// the new one.
func (m *Monitor) supersede(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)

	m.cancelMu.Lock()
	defer m.cancelMu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	m.gen++
	m.cancel = cancel
	return ctx, m.gen
}

func (m *Monitor) release(gen uint64) {
	m.cancelMu.Lock()
	defer m.cancelMu.Unlock()
	if m.gen == gen && m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
