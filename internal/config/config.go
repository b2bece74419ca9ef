package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// SourceTimeout bounds each external call independently.
	SourceTimeout time.Duration

	// Geocoding configuration.
	GeocoderURL       string
	GeocoderUserAgent string
	GeocoderRate      float64
	GeocoderCacheSize int

	// Parcel sources.
	ParcelsURL string
	DetailsURL string

	// SessionCacheSize caps how many interactive sessions are remembered.
	SessionCacheSize int

	// Kafka publishing of committed resolutions; disabled when no brokers are set.
	KafkaBrokers     []string
	KafkaTopic       string
	PublishEnabled   bool
	PublishQueueSize int
	PublishBatchSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	sourceTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("SOURCE_TIMEOUT", "5s"))
	if err != nil || sourceTimeout <= 0 {
		return nil, errors.New("invalid SOURCE_TIMEOUT")
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	geocoderRate, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("GEOCODER_RATE", "1"), 64)
	if err != nil || geocoderRate < 0 {
		return nil, errors.New("invalid GEOCODER_RATE")
	}

	parcelsURL := sharedcfg.EnvOrDefault("PARCELS_URL", "http://localhost:8000")

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		CORSOrigins:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("CORS_ORIGINS", "http://localhost:5173")),
		SourceTimeout:   sourceTimeout,

		GeocoderURL:       sharedcfg.EnvOrDefault("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
		GeocoderUserAgent: sharedcfg.EnvOrDefault("GEOCODER_USER_AGENT", "parcel-valuation-service/1.0"),
		GeocoderRate:      geocoderRate,
		GeocoderCacheSize: parsePositiveInt("GEOCODER_CACHE_SIZE", 1000),

		ParcelsURL: parcelsURL,
		DetailsURL: sharedcfg.EnvOrDefault("DETAILS_URL", parcelsURL),

		SessionCacheSize: parsePositiveInt("SESSION_CACHE_SIZE", 10000),

		KafkaTopic:       sharedcfg.EnvOrDefault("KAFKA_TOPIC", "valuation-records"),
		PublishQueueSize: parsePositiveInt("PUBLISH_QUEUE_SIZE", 1000),
		PublishBatchSize: batchSize,
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
		cfg.PublishEnabled = len(cfg.KafkaBrokers) > 0
	}

	for name, raw := range map[string]string{
		"GEOCODER_URL": cfg.GeocoderURL,
		"PARCELS_URL":  cfg.ParcelsURL,
		"DETAILS_URL":  cfg.DetailsURL,
	} {
		if err := validateURL(raw); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if cfg.PublishEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func parsePositiveInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
