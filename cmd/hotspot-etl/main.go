package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hotspot-etl/internal/adapter/biome"
	httpadapter "github.com/couchcryptid/hotspot-etl/internal/adapter/http"
	"github.com/couchcryptid/hotspot-etl/internal/adapter/inpe"
	kafkaadapter "github.com/couchcryptid/hotspot-etl/internal/adapter/kafka"
	"github.com/couchcryptid/hotspot-etl/internal/config"
	"github.com/couchcryptid/hotspot-etl/internal/domain"
	"github.com/couchcryptid/hotspot-etl/internal/observability"
	"github.com/couchcryptid/hotspot-etl/internal/pipeline"
	"github.com/couchcryptid/hotspot-etl/internal/window"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	index, err := biome.Load(cfg.BiomesFile, biome.Options{
		NameProperty: cfg.BiomeNameProp,
		Sensitive:    domain.NewSensitiveSet(cfg.SensitiveBiomes...),
	})
	if err != nil {
		logger.Error("failed to load biome reference", "error", err)
		os.Exit(1)
	}
	logger.Info("biome reference loaded", "file", cfg.BiomesFile, "polygons", index.Len(), "biomes", index.Names())

	locator, err := biome.NewCachedLocator(index, cfg.BiomeCacheSize, metrics)
	if err != nil {
		logger.Error("failed to create biome cache", "error", err)
		os.Exit(1)
	}

	fetcher := inpe.NewFetcher(inpe.OptionsFromConfig(cfg), logger, metrics)
	transformer := pipeline.NewTransformer(
		domain.NewEnricher(locator),
		domain.NewClassifier(cfg.Thresholds, index),
		logger,
		metrics,
	)

	clock := clockwork.NewRealClock()
	store := window.New(cfg.WindowSpan, clock)

	// Kafka sink is feature-flagged via KAFKA_ENABLED.
	var writer *kafkaadapter.Writer
	opts := pipeline.MonitorOptions{
		Interval: cfg.RefreshInterval,
		Span:     cfg.WindowSpan,
		Clock:    clock,
	}
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		opts.Loader = writer
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka sink disabled")
	}

	monitor := pipeline.NewMonitor(fetcher, transformer, store, opts, logger, metrics)
	reporter := pipeline.NewReporter(fetcher, transformer, cfg.ReportMaxDays, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, cfg.RequestTimeout, httpadapter.Deps{
		Ready:     monitor,
		Window:    store,
		Reports:   reporter,
		Refresher: monitor,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start hotspot monitor.
	go func() {
		if err := monitor.Run(ctx); err != nil {
			logger.Error("monitor error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete", "window_records", store.Len(), "biome_cache_entries", locator.Len())
}
