// Command report builds an aggregate hotspot report for a date range from
// INPE daily files, without starting the service. Feed, cache, biome and
// threshold settings are read from the same environment as the service.
//
// Usage:
//
//	go run ./cmd/report -start 2024-08-01 -end 2024-08-31 -out report.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/hotspot-etl/internal/adapter/biome"
	"github.com/couchcryptid/hotspot-etl/internal/adapter/inpe"
	"github.com/couchcryptid/hotspot-etl/internal/config"
	"github.com/couchcryptid/hotspot-etl/internal/domain"
	"github.com/couchcryptid/hotspot-etl/internal/observability"
	"github.com/couchcryptid/hotspot-etl/internal/pipeline"
)

const dateLayout = "2006-01-02"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	startFlag := flag.String("start", "", "first UTC date of the report (YYYY-MM-DD)")
	endFlag := flag.String("end", "", "last UTC date of the report (YYYY-MM-DD)")
	out := flag.String("out", "", "output path for the JSON report (default stdout)")
	withRecords := flag.Bool("records", false, "include every classified record in the output")
	flag.Parse()

	if *startFlag == "" || *endFlag == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -start, -end")
	}
	start, err := time.Parse(dateLayout, *startFlag)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	end, err := time.Parse(dateLayout, *endFlag)
	if err != nil {
		return fmt.Errorf("invalid -end: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	index, err := biome.Load(cfg.BiomesFile, biome.Options{
		NameProperty: cfg.BiomeNameProp,
		Sensitive:    domain.NewSensitiveSet(cfg.SensitiveBiomes...),
	})
	if err != nil {
		return err
	}
	locator, err := biome.NewCachedLocator(index, cfg.BiomeCacheSize, metrics)
	if err != nil {
		return err
	}

	transformer := pipeline.NewTransformer(
		domain.NewEnricher(locator),
		domain.NewClassifier(cfg.Thresholds, index),
		logger,
		metrics,
	)
	reporter := pipeline.NewReporter(inpe.NewFetcher(inpe.OptionsFromConfig(cfg), logger, metrics), transformer, cfg.ReportMaxDays, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := reporter.Report(ctx, start, end)
	if err != nil {
		return err
	}
	if !*withRecords {
		res.Records = nil
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create %s: %w", *out, err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	log.Printf("report %s..%s: %d hotspots, %d missing days, %d failed days",
		res.Start, res.End, res.Total, len(res.Missing), len(res.Failures))
	return nil
}
