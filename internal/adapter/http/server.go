package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/hotspot-etl/internal/domain"
	"github.com/couchcryptid/hotspot-etl/internal/pipeline"
)

const (
	dateLayout = "2006-01-02"

	defaultRequestTimeout = 10 * time.Minute

	// writeSlack is added to the request timeout so a handler that hits its
	// deadline can still write the error response.
	writeSlack = 10 * time.Second
)

// WindowReader exposes the current contents of the time-window store.
type WindowReader interface {
	Snapshot() []domain.HotspotRecord
	Cutoff() time.Time
}

// ReportBuilder builds an aggregate report over an inclusive date range.
type ReportBuilder interface {
	Report(ctx context.Context, start, end time.Time) (pipeline.ReportResult, error)
}

// Refresher runs one monitoring refresh on demand.
type Refresher interface {
	Refresh(ctx context.Context) pipeline.RefreshSummary
}

// Deps are the services behind the API routes.
type Deps struct {
	Ready     sharedobs.ReadinessChecker
	Window    WindowReader
	Reports   ReportBuilder
	Refresher Refresher
}

// WindowResponse is the body of GET /api/v1/hotspots.
type WindowResponse struct {
	Cutoff  time.Time              `json:"cutoff"`
	Count   int                    `json:"count"`
	Records []domain.HotspotRecord `json:"records"`
}

// Server exposes health, readiness, metrics, and the hotspot API.
type Server struct {
	httpServer     *http.Server
	deps           Deps
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and the
// /api/v1 routes. Report and refresh requests are cancelled after
// requestTimeout; zero selects a 10 minute default.
func NewServer(addr string, requestTimeout time.Duration, deps Deps, logger *slog.Logger) *Server {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: requestTimeout + writeSlack,
			IdleTimeout:  60 * time.Second,
		},
		deps:           deps,
		requestTimeout: requestTimeout,
		logger:         logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/hotspots", s.handleHotspots)
	mux.HandleFunc("GET /api/v1/report", s.handleReport)
	mux.HandleFunc("POST /api/v1/refresh", s.handleRefresh)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleHotspots returns the window snapshot, optionally keeping only records
// at or above min_risk.
func (s *Server) handleHotspots(w http.ResponseWriter, r *http.Request) {
	minRisk := domain.RiskUnclassified
	if v := r.URL.Query().Get("min_risk"); v != "" {
		l, err := domain.ParseRiskLevel(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		minRisk = l
	}

	records := s.deps.Window.Snapshot()
	if minRisk != domain.RiskUnclassified {
		kept := records[:0]
		for _, rec := range records {
			if rec.Risk >= minRisk {
				kept = append(kept, rec)
			}
		}
		records = kept
	}
	writeJSON(w, http.StatusOK, WindowResponse{
		Cutoff:  s.deps.Window.Cutoff(),
		Count:   len(records),
		Records: records,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	start, err := parseDate(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	end, err := parseDate(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	res, err := s.deps.Reports.Report(ctx, start, end)
	switch {
	case errors.Is(err, pipeline.ErrRangeTooLarge):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, fmt.Errorf("report exceeded %s", s.requestTimeout))
		return
	case err != nil:
		s.logger.Error("report failed", "start", start.Format(dateLayout), "end", end.Format(dateLayout), "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	sum := s.deps.Refresher.Refresh(ctx)
	status := http.StatusOK
	switch {
	case sum.Canceled && errors.Is(ctx.Err(), context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case sum.Canceled:
		status = http.StatusConflict
	}
	writeJSON(w, status, sum)
}

func parseDate(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, fmt.Errorf("missing %s parameter", name)
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: want YYYY-MM-DD", name, v)
	}
	return t, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
