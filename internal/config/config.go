package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all batch settings, populated from environment variables.
type Config struct {
	DataDir   string
	OutputDir string
	LogLevel  string
	LogFormat string

	Workers        int
	ToleranceHours int
	STLPeriod      int
	STLSeasonal    int

	// Optional overrides for the built-in deployment tables.
	ItemSpecsPath string
	RegionMapPath string

	// Optional Prometheus listener; empty disables the HTTP endpoint.
	MetricsAddr string

	// Major-event alerting (feature-flagged, off by default).
	AlertsEnabled   bool
	KafkaBrokers    []string
	KafkaAlertTopic string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	workers, err := parsePositiveInt("WORKERS", 6)
	if err != nil {
		return nil, err
	}
	tolerance, err := parseNonNegativeInt("TOLERANCE_HOURS", 2)
	if err != nil {
		return nil, err
	}
	period, err := parsePositiveInt("STL_PERIOD", 24)
	if err != nil {
		return nil, err
	}
	seasonal, err := parsePositiveInt("STL_SEASONAL", 13)
	if err != nil {
		return nil, err
	}
	if seasonal%2 == 0 || seasonal < 3 {
		return nil, fmt.Errorf("STL_SEASONAL must be odd and at least 3, got %d", seasonal)
	}

	cfg := &Config{
		DataDir:   envOrDefault("DATA_DIR", "data"),
		OutputDir: envOrDefault("OUTPUT_DIR", "output"),
		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),

		Workers:        workers,
		ToleranceHours: tolerance,
		STLPeriod:      period,
		STLSeasonal:    seasonal,

		ItemSpecsPath: os.Getenv("ITEM_SPECS_PATH"),
		RegionMapPath: os.Getenv("REGION_MAP_PATH"),

		MetricsAddr: os.Getenv("METRICS_ADDR"),

		AlertsEnabled:   os.Getenv("ALERTS_ENABLED") == "true",
		KafkaBrokers:    parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAlertTopic: envOrDefault("KAFKA_ALERT_TOPIC", "aqi-major-events"),
	}

	if cfg.AlertsEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("ALERTS_ENABLED requires KAFKA_BROKERS")
	}
	return cfg, nil
}

// Stage-1 output directories, mirroring the layout downstream plotting expects.

func (c *Config) AnomalyDir() string { return filepath.Join(c.OutputDir, "anomaly_csvs") }
func (c *Config) RegionDir() string  { return filepath.Join(c.OutputDir, "region_avg_csvs") }
func (c *Config) ReportDir() string  { return filepath.Join(c.OutputDir, "reports") }

// Stage-2 output directories.

func (c *Config) STLDataDir() string   { return filepath.Join(c.OutputDir, "stl_processed_data") }
func (c *Config) STLReportDir() string { return filepath.Join(c.OutputDir, "stl_reports") }

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parsePositiveInt(key string, fallback int) (int, error) {
	n, err := parseIntEnv(key, fallback)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

func parseNonNegativeInt(key string, fallback int) (int, error) {
	n, err := parseIntEnv(key, fallback)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", key, n)
	}
	return n, nil
}

func parseIntEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
