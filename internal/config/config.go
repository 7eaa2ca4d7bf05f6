package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL     string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Worker and queue settings.
	WorkerCount    int
	PollInterval   time.Duration
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	StaleJobAfter  time.Duration
	ReapInterval   time.Duration

	// Document locations and download behaviour.
	DocumentBaseURL   string
	WorkbookPath      string
	PDFPath           string
	MetadataPath      string
	DownloadTimeout   time.Duration
	DownloadCacheSize int
	ArchiveBucket     string

	// Import range.
	BackfillFirstWaterYear   int
	SpreadsheetLastWaterYear int
	PDFFirstMonth            time.Time

	// Kafka is optional; with no brokers the discovery consumer and the
	// outcome publisher are disabled.
	KafkaBrokers        []string
	KafkaDiscoveryTopic string
	KafkaEventsTopic    string
	KafkaGroupID        string
}

// KafkaEnabled reports whether any brokers are configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is read first if present.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:     strings.TrimSpace(sharedcfg.EnvOrDefault("DATABASE_URL", "")),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DocumentBaseURL: strings.TrimSpace(sharedcfg.EnvOrDefault("DOCUMENT_BASE_URL", "")),
		WorkbookPath:    sharedcfg.EnvOrDefault("WORKBOOK_PATH", ""),
		PDFPath:         sharedcfg.EnvOrDefault("PDF_PATH", ""),
		MetadataPath:    sharedcfg.EnvOrDefault("METADATA_PATH", ""),
		ArchiveBucket:   sharedcfg.EnvOrDefault("ARCHIVE_BUCKET", ""),

		KafkaDiscoveryTopic: sharedcfg.EnvOrDefault("KAFKA_DISCOVERY_TOPIC", "gauge-discovered"),
		KafkaEventsTopic:    sharedcfg.EnvOrDefault("KAFKA_EVENTS_TOPIC", "rainfall-import-events"),
		KafkaGroupID:        sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "rainfall-import"),
	}

	if brokers := strings.TrimSpace(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "")); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	durations := []struct {
		name string
		def  string
		dst  *time.Duration
	}{
		{"POLL_INTERVAL", "2s", &cfg.PollInterval},
		{"RETRY_BASE_DELAY", "1m", &cfg.RetryBaseDelay},
		{"RETRY_MAX_DELAY", "1h", &cfg.RetryMaxDelay},
		{"STALE_JOB_AFTER", "30m", &cfg.StaleJobAfter},
		{"REAP_INTERVAL", "1m", &cfg.ReapInterval},
		{"DOWNLOAD_TIMEOUT", "30s", &cfg.DownloadTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.name, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		name     string
		def      int
		min, max int
		dst      *int
	}{
		{"WORKER_COUNT", 4, 1, 64, &cfg.WorkerCount},
		{"DOWNLOAD_CACHE_SIZE", 64, 0, 10000, &cfg.DownloadCacheSize},
		{"BACKFILL_FIRST_WATER_YEAR", 1990, 1900, 2200, &cfg.BackfillFirstWaterYear},
		{"SPREADSHEET_LAST_WATER_YEAR", 2023, 1900, 2200, &cfg.SpreadsheetLastWaterYear},
	}
	for _, n := range ints {
		if *n.dst, err = parseInt(n.name, n.def, n.min, n.max); err != nil {
			return nil, err
		}
	}

	month := sharedcfg.EnvOrDefault("PDF_FIRST_MONTH", "2023-10")
	if cfg.PDFFirstMonth, err = time.Parse("2006-01", month); err != nil {
		return nil, fmt.Errorf("invalid PDF_FIRST_MONTH %q: want YYYY-MM", month)
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.DocumentBaseURL == "" {
		return nil, errors.New("DOCUMENT_BASE_URL is required")
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		return nil, errors.New("RETRY_MAX_DELAY must not be less than RETRY_BASE_DELAY")
	}
	if cfg.KafkaEnabled() && cfg.KafkaDiscoveryTopic == "" {
		return nil, errors.New("KAFKA_DISCOVERY_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func parseDuration(name, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(name, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive duration", name, s)
	}
	return d, nil
}

func parseInt(name string, def, lo, hi int) (int, error) {
	s := sharedcfg.EnvOrDefault(name, strconv.Itoa(def))
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s %q: want an integer in [%d, %d]", name, s, lo, hi)
	}
	return n, nil
}
