package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/hotspot-etl/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// INPE feed and local storage.
	DailyBaseURL   string
	TenMinBaseURL  string
	RawDataDir     string
	BiomesFile     string
	BiomeNameProp  string
	BiomeCacheSize int

	// Risk classification.
	SensitiveBiomes []string
	Thresholds      domain.Thresholds

	// Fetching.
	FetchConcurrency    int
	FetchTimeout        time.Duration
	FetchMaxRetries     int
	FetchInitialBackoff time.Duration
	FetchMaxBackoff     time.Duration

	// Monitoring window and reports.
	RefreshInterval time.Duration
	WindowSpan      time.Duration
	ReportMaxDays   int
	RequestTimeout  time.Duration

	// Optional Kafka sink for newly classified records.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DailyBaseURL:  sharedcfg.EnvOrDefault("INPE_DAILY_BASE_URL", "https://dataserver-coids.inpe.br/queimadas/queimadas/focos/csv/diario/Brasil/"),
		TenMinBaseURL: sharedcfg.EnvOrDefault("INPE_10MIN_BASE_URL", "https://dataserver-coids.inpe.br/queimadas/queimadas/focos/csv/10min/"),
		RawDataDir:    sharedcfg.EnvOrDefault("RAW_DATA_DIR", "output_data/raw"),
		BiomesFile:    sharedcfg.EnvOrDefault("BIOMES_FILE", "geodata/biomas_5000.json"),
		BiomeNameProp: sharedcfg.EnvOrDefault("BIOME_NAME_PROPERTY", "nom_bioma"),

		SensitiveBiomes: parseList(sharedcfg.EnvOrDefault("SENSITIVE_BIOMES", "Amazônia,Mata Atlântica,Cerrado,Pantanal")),

		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "classified-hotspots"),
	}

	ints := []struct {
		key string
		def int
		min int
		dst *int
	}{
		{"BIOME_CACHE_SIZE", 10000, 1, &cfg.BiomeCacheSize},
		{"FETCH_CONCURRENCY", 8, 1, &cfg.FetchConcurrency},
		{"FETCH_MAX_RETRIES", 3, 0, &cfg.FetchMaxRetries},
		{"REPORT_MAX_DAYS", 31, 1, &cfg.ReportMaxDays},
	}
	for _, v := range ints {
		if *v.dst, err = parseInt(v.key, v.def, v.min); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"FETCH_TIMEOUT", "60s", &cfg.FetchTimeout},
		{"FETCH_INITIAL_BACKOFF", "200ms", &cfg.FetchInitialBackoff},
		{"FETCH_MAX_BACKOFF", "5s", &cfg.FetchMaxBackoff},
		{"REFRESH_INTERVAL", "10m", &cfg.RefreshInterval},
		{"WINDOW_SPAN", "48h", &cfg.WindowSpan},
		{"REQUEST_TIMEOUT", "10m", &cfg.RequestTimeout},
	}
	for _, v := range durations {
		if *v.dst, err = parseDuration(v.key, v.def); err != nil {
			return nil, err
		}
	}

	floats := []struct {
		key string
		def float64
		dst *float64
	}{
		{"RISK_FRP_MEDIUM", 50, &cfg.Thresholds.Medium},
		{"RISK_FRP_HIGH", 200, &cfg.Thresholds.High},
		{"RISK_FRP_CRITICAL", 400, &cfg.Thresholds.Critical},
	}
	for _, v := range floats {
		if *v.dst, err = parseFloat(v.key, v.def); err != nil {
			return nil, err
		}
	}

	if cfg.KafkaEnabled, err = parseBool("KAFKA_ENABLED", false); err != nil {
		return nil, err
	}

	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid RISK_FRP_* thresholds: %w", err)
	}
	if cfg.FetchMaxBackoff < cfg.FetchInitialBackoff {
		return nil, errors.New("FETCH_MAX_BACKOFF must not be less than FETCH_INITIAL_BACKOFF")
	}
	if cfg.RawDataDir == "" {
		return nil, errors.New("RAW_DATA_DIR is required")
	}
	if cfg.BiomesFile == "" {
		return nil, errors.New("BIOMES_FILE is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

func parseInt(key string, def, minimum int) (int, error) {
	s := sharedcfg.EnvOrDefault(key, strconv.Itoa(def))
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s: must be an integer >= %d", key, minimum)
	}
	return n, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := sharedcfg.EnvOrDefault(key, strconv.FormatFloat(def, 'f', -1, 64))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be a number", key)
	}
	return f, nil
}

func parseBool(key string, def bool) (bool, error) {
	b, err := strconv.ParseBool(sharedcfg.EnvOrDefault(key, strconv.FormatBool(def)))
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", key)
	}
	return b, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
