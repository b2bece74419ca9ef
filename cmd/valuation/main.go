package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/parcel-valuation-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/parcel-valuation-service/internal/adapter/kafka"
	"github.com/couchcryptid/parcel-valuation-service/internal/adapter/nominatim"
	"github.com/couchcryptid/parcel-valuation-service/internal/adapter/parcels"
	"github.com/couchcryptid/parcel-valuation-service/internal/config"
	"github.com/couchcryptid/parcel-valuation-service/internal/observability"
	"github.com/couchcryptid/parcel-valuation-service/internal/pipeline"
	"github.com/couchcryptid/parcel-valuation-service/internal/valuation"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	client := nominatim.NewClient(nominatim.Options{
		BaseURL:       cfg.GeocoderURL,
		UserAgent:     cfg.GeocoderUserAgent,
		Timeout:       cfg.SourceTimeout,
		RatePerSecond: cfg.GeocoderRate,
	}, metrics, logger)
	geocoder := nominatim.NewCachedGeocoder(client, cfg.GeocoderCacheSize, metrics)
	logger.Info("geocoder configured", "url", cfg.GeocoderURL, "cache_size", cfg.GeocoderCacheSize, "rate", cfg.GeocoderRate)

	candidates := parcels.NewCandidateClient(cfg.ParcelsURL, cfg.SourceTimeout, logger)
	details := parcels.NewDetailClient(cfg.DetailsURL, cfg.SourceTimeout, logger)

	svc := valuation.NewService(geocoder, candidates, details, cfg.SourceTimeout, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Publishing is feature-flagged via KAFKA_BROKERS.
	var (
		publisher valuation.Publisher
		writer    *kafkaadapter.Writer
		queue     *pipeline.Pipeline
	)
	if cfg.PublishEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		queue = pipeline.New(writer, logger, metrics, cfg.PublishQueueSize, cfg.PublishBatchSize)
		publisher = queue
		queue.Start(ctx)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	sessions := valuation.NewSessions(svc, publisher, cfg.SessionCacheSize)
	api := httpadapter.NewAPI(svc, sessions, logger)

	var ready sharedobs.ReadinessChecker = svc
	if queue != nil {
		ready = observability.AllReady(svc, queue)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, api, httpadapter.Options{
		CORSOrigins:  cfg.CORSOrigins,
		WriteTimeout: svc.MaxDuration() + 5*time.Second,
	}, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	svc.Drain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if queue != nil {
		if err := queue.Close(shutdownCtx); err != nil {
			logger.Error("publish queue close error", "error", err)
		}
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
