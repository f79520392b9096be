package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/hotspot-etl/internal/domain"
)

// ErrRangeTooLarge is returned for report spans longer than the configured limit.
var ErrRangeTooLarge = errors.New("report range too large")

// ReportResult is an aggregate report plus the daily slots that could not
// contribute to it.
type ReportResult struct {
	domain.Report
	Missing     []string      `json:"missing_slots,omitempty"`
	Failures    []SlotFailure `json:"failures,omitempty"`
	RowsDropped int           `json:"rows_dropped"`
}

// Reporter builds historical reports from daily feed files.
type Reporter struct {
	fetcher     SlotFetcher
	transformer Transformer
	maxDays     int
	logger      *slog.Logger
}

// NewReporter creates a Reporter that refuses spans longer than maxDays.
func NewReporter(f SlotFetcher, t Transformer, maxDays int, logger *slog.Logger) *Reporter {
	return &Reporter{fetcher: f, transformer: t, maxDays: maxDays, logger: logger}
}

// Report fetches the daily slot of every UTC date in [start, end] and
// aggregates the classified records. Slots that are missing or fail are
// listed in the result and never fail the report.
func (r *Reporter) Report(ctx context.Context, start, end time.Time) (ReportResult, error) {
	if days := spanDays(start, end); r.maxDays > 0 && days > r.maxDays {
		return ReportResult{}, fmt.Errorf("%w: %d days requested, limit is %d", ErrRangeTooLarge, days, r.maxDays)
	}
	slots := domain.DailySlotsBetween(start, end)

	var res ReportResult
	var records []domain.HotspotRecord
	for _, fr := range r.fetcher.FetchAll(ctx, slots) {
		if err := ctx.Err(); err != nil {
			return ReportResult{}, err
		}
		id := fr.Slot.ID()
		switch {
		case fr.Outcome == domain.OutcomeMissing:
			res.Missing = append(res.Missing, id)
			continue
		case !fr.Usable():
			res.Failures = append(res.Failures, SlotFailure{Slot: id, Error: errString(fr.Err)})
			continue
		}

		batch, err := r.transformer.Transform(ctx, fr.Payload)
		if err != nil {
			if ctx.Err() != nil {
				return ReportResult{}, ctx.Err()
			}
			r.logger.Warn("report slot skipped", "slot", id, "error", err)
			res.Failures = append(res.Failures, SlotFailure{Slot: id, Error: err.Error()})
			continue
		}
		res.RowsDropped += batch.Dropped
		records = append(records, batch.Records...)
	}

	res.Report = domain.Aggregate(dedupe(records), start, end)
	r.logger.Info("report built",
		"start", res.Start,
		"end", res.End,
		"total", res.Total,
		"missing", len(res.Missing),
		"failed", len(res.Failures),
	)
	return res, nil
}

// dedupe collapses records sharing an identity key, keeping the later classification.
func dedupe(records []domain.HotspotRecord) []domain.HotspotRecord {
	index := make(map[domain.IdentityKey]int, len(records))
	out := make([]domain.HotspotRecord, 0, len(records))
	for _, rec := range records {
		key := rec.Key()
		if i, ok := index[key]; ok {
			if !rec.ClassifiedAt.Before(out[i].ClassifiedAt) {
				out[i] = rec
			}
			continue
		}
		index[key] = len(out)
		out = append(out, rec)
	}
	return out
}

// spanDays counts the UTC dates in [start, end] without enumerating them.
// Spans beyond the range of time.Duration saturate, which still exceeds any
// sensible limit.
func spanDays(start, end time.Time) int {
	first := domain.NewDailySlot(start).Start
	last := domain.NewDailySlot(end).Start
	if last.Before(first) {
		return 0
	}
	return int(last.Sub(first)/(24*time.Hour)) + 1
}
