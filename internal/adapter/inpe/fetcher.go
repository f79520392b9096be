// Package inpe downloads INPE hotspot CSV files into the raw data directory.
package inpe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/renameio/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/couchcryptid/hotspot-etl/internal/config"
	"github.com/couchcryptid/hotspot-etl/internal/domain"
	"github.com/couchcryptid/hotspot-etl/internal/observability"
)

// ErrNotPublished is returned by Fetch when the feed has no file for the slot yet.
var ErrNotPublished = errors.New("slot not published")

// Options configure a Fetcher.
type Options struct {
	DailyBaseURL   string
	TenMinBaseURL  string
	RawDir         string
	Concurrency    int
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// OptionsFromConfig maps service configuration onto fetcher options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DailyBaseURL:   cfg.DailyBaseURL,
		TenMinBaseURL:  cfg.TenMinBaseURL,
		RawDir:         cfg.RawDataDir,
		Concurrency:    cfg.FetchConcurrency,
		Timeout:        cfg.FetchTimeout,
		MaxRetries:     cfg.FetchMaxRetries,
		InitialBackoff: cfg.FetchInitialBackoff,
		MaxBackoff:     cfg.FetchMaxBackoff,
	}
}

// Fetcher retrieves feed slots with bounded concurrency, retry, and an
// idempotent on-disk cache. Raw files only ever appear complete: bodies are
// written to a pending file in the raw directory, fsynced, and renamed into place.
type Fetcher struct {
	opts       Options
	httpClient *http.Client
	sem        *semaphore.Weighted
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewFetcher creates a Fetcher. metrics may be nil.
func NewFetcher(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Fetcher{
		opts: opts,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		sem:     semaphore.NewWeighted(int64(opts.Concurrency)),
		logger:  logger,
		metrics: metrics,
	}
}

// Fetch resolves a single slot. A slot the feed has not published returns
// ErrNotPublished; exhausted retries return a *domain.PermanentFetchError.
func (f *Fetcher) Fetch(ctx context.Context, slot domain.Slot) (domain.RawPayload, error) {
	res := f.fetch(ctx, slot)
	if res.Outcome == domain.OutcomeMissing {
		return domain.RawPayload{}, fmt.Errorf("%s: %w", slot.ID(), ErrNotPublished)
	}
	return res.Payload, res.Err
}

// FetchAll resolves every slot concurrently. Results are returned in the order
// of slots; a failed slot never aborts its siblings.
func (f *Fetcher) FetchAll(ctx context.Context, slots []domain.Slot) []domain.FetchResult {
	results := make([]domain.FetchResult, len(slots))
	var g errgroup.Group
	for i, slot := range slots {
		g.Go(func() error {
			results[i] = f.fetch(ctx, slot)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (f *Fetcher) fetch(ctx context.Context, slot domain.Slot) domain.FetchResult {
	res := domain.FetchResult{Slot: slot}
	path := filepath.Join(f.opts.RawDir, slot.ID())

	if data, ok := f.cached(path); ok {
		res.Outcome = domain.OutcomeCached
		res.Payload = domain.RawPayload{Slot: slot, Data: data}
		f.observe(slot, res.Outcome)
		return res
	}

	if err := os.MkdirAll(f.opts.RawDir, 0o755); err != nil {
		res.Outcome = domain.OutcomeFailed
		res.Err = &domain.PermanentFetchError{Slot: slot, Err: fmt.Errorf("create raw dir: %w", err)}
		f.observe(slot, res.Outcome)
		return res
	}

	var data []byte
	operation := func() error {
		res.Attempts++
		var err error
		data, err = f.attempt(ctx, slot, path)
		return err
	}
	notify := func(err error, wait time.Duration) {
		if f.metrics != nil {
			f.metrics.FetchRetries.Inc()
		}
		f.logger.Warn("fetch retry", "slot", slot.ID(), "attempt", res.Attempts, "backoff", wait, "error", err)
	}

	err := backoff.RetryNotify(operation, f.policy(ctx), notify)
	switch {
	case err == nil:
		res.Outcome = domain.OutcomeFetched
		res.Payload = domain.RawPayload{Slot: slot, Data: data}
		f.logger.Debug("slot fetched", "slot", slot.ID(), "bytes", len(data), "attempts", res.Attempts)
	case errors.Is(err, ErrNotPublished):
		res.Outcome = domain.OutcomeMissing
		f.logger.Debug("slot not published", "slot", slot.ID())
	case ctx.Err() != nil:
		res.Outcome = domain.OutcomeFailed
		res.Err = ctx.Err()
	default:
		res.Outcome = domain.OutcomeFailed
		res.Err = &domain.PermanentFetchError{Slot: slot, Attempts: res.Attempts, Err: err}
		f.logger.Error("fetch failed", "slot", slot.ID(), "attempts", res.Attempts, "error", err)
	}
	f.observe(slot, res.Outcome)
	return res
}

// policy builds the retry schedule: exponential backoff from InitialBackoff,
// capped at MaxBackoff, for at most MaxRetries retries after the first attempt.
func (f *Fetcher) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.InitialBackoff
	b.MaxInterval = f.opts.MaxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.opts.MaxRetries)), ctx)
}

// cached returns a previously stored raw file when it is structurally valid.
func (f *Fetcher) cached(path string) ([]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	if err := domain.ValidatePayload(data); err != nil {
		f.logger.Warn("discarding invalid raw file", "path", path, "error", err)
		return nil, false
	}
	return data, true
}

// attempt performs one HTTP request. Errors wrapped in backoff.Permanent stop
// the retry loop.
func (f *Fetcher) attempt(ctx context.Context, slot domain.Slot, path string) ([]byte, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, backoff.Permanent(err)
	}
	defer f.sem.Release(1)

	start := time.Now()
	defer func() {
		if f.metrics != nil {
			f.metrics.FetchDuration.WithLabelValues(slot.Kind.String()).Observe(time.Since(start).Seconds())
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, slot.URL(f.baseURL(slot)), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if isTransient(err) {
			return nil, &domain.TransientFetchError{Slot: slot, Err: err}
		}
		return nil, backoff.Permanent(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(ErrNotPublished)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &domain.TransientFetchError{Slot: slot, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body)))
	}

	data, err := f.store(ctx, resp.Body, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		var transient *domain.TransientFetchError
		if errors.As(err, &transient) {
			transient.Slot = slot
			return nil, transient
		}
		return nil, backoff.Permanent(err)
	}
	return data, nil
}

// store streams body into a pending file next to path, validates it, and
// atomically replaces path with it. The pending file is removed on any failure.
func (f *Fetcher) store(ctx context.Context, body io.Reader, path string) ([]byte, error) {
	pending, err := renameio.NewPendingFile(path,
		renameio.WithTempDir(filepath.Dir(path)),
		renameio.WithPermissions(0o644),
	)
	if err != nil {
		return nil, fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	var buf bytes.Buffer
	if _, err := io.Copy(io.MultiWriter(pending, &buf), body); err != nil {
		return nil, &domain.TransientFetchError{Err: fmt.Errorf("read body: %w", err)}
	}
	if err := domain.ValidatePayload(buf.Bytes()); err != nil {
		return nil, &domain.TransientFetchError{Err: fmt.Errorf("invalid body: %w", err)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("replace raw file: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *Fetcher) baseURL(slot domain.Slot) string {
	if slot.Kind == domain.SlotTenMinute {
		return f.opts.TenMinBaseURL
	}
	return f.opts.DailyBaseURL
}

func (f *Fetcher) observe(slot domain.Slot, o domain.FetchOutcome) {
	if f.metrics != nil {
		f.metrics.SlotsFetched.WithLabelValues(slot.Kind.String(), o.String()).Inc()
	}
}

// isTransient reports whether a transport error is worth retrying.
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
