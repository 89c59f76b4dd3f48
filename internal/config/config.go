package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all tool settings, populated from environment variables.
// Command-line flags override DBURL and Email after loading.
type Config struct {
	DBURL   string
	Email   string
	WorkDir string

	HTTPTimeout      time.Duration // download stall timeout; total timeout of catalogue API calls
	DownloadAttempts int

	// BC Data Catalogue endpoints.
	CatalogueURL     string
	OrderURL         string
	OrderDownloadURL string // fmt template taking the order id
	PollInterval     time.Duration
	PollTimeout      time.Duration

	Ogr2ogrPath string
	SQLDir      string

	LogLevel        string
	LogFormat       string
	HTTPAddr        string
	ShutdownTimeout time.Duration
	PushgatewayURL  string

	KafkaBrokers     []string
	KafkaReportTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	httpTimeout, err := parseDuration("HTTP_TIMEOUT", "5m")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDuration("BCDATA_POLL_INTERVAL", "10s")
	if err != nil {
		return nil, err
	}
	pollTimeout, err := parseDuration("BCDATA_POLL_TIMEOUT", "30m")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	attempts, err := strconv.Atoi(envOrDefault("DOWNLOAD_ATTEMPTS", "3"))
	if err != nil || attempts < 1 || attempts > 10 {
		return nil, errors.New("invalid DOWNLOAD_ATTEMPTS: must be between 1 and 10")
	}

	cfg := &Config{
		DBURL:            os.Getenv("FWA_DB"),
		Email:            os.Getenv("BCDATA_EMAIL"),
		WorkDir:          envOrDefault("WORK_DIR", "."),
		HTTPTimeout:      httpTimeout,
		DownloadAttempts: attempts,
		CatalogueURL:     envOrDefault("BCDATA_CATALOGUE_URL", "https://catalogue.data.gov.bc.ca/api/3/action"),
		OrderURL:         envOrDefault("BCDATA_ORDER_URL", "https://apps.gov.bc.ca/pub/dwds-ofi/public/order/createOrderFiltered/"),
		OrderDownloadURL: envOrDefault("BCDATA_DOWNLOAD_URL", "https://apps.gov.bc.ca/pub/dwds-ofi/public/order/download/%s.zip"),
		PollInterval:     pollInterval,
		PollTimeout:      pollTimeout,
		Ogr2ogrPath:      envOrDefault("OGR2OGR_PATH", "ogr2ogr"),
		SQLDir:           os.Getenv("SQL_DIR"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "text"),
		HTTPAddr:         os.Getenv("HTTP_ADDR"),
		ShutdownTimeout:  shutdownTimeout,
		PushgatewayURL:   os.Getenv("PUSHGATEWAY_URL"),
		KafkaBrokers:     parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaReportTopic: envOrDefault("KAFKA_REPORT_TOPIC", "bcfishobs-reports"),
	}

	if !strings.Contains(cfg.OrderDownloadURL, "%s") {
		return nil, errors.New("BCDATA_DOWNLOAD_URL must contain a %s placeholder for the order id")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaReportTopic == "" {
		return nil, errors.New("KAFKA_REPORT_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
