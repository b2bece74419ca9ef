// Command resolve runs one point or address through the valuation workflow
// against the configured sources and prints the Resolution as JSON. It reads
// the same environment as the service.
//
// Usage:
//
//	go run ./cmd/resolve -lat 26.7153 -lng -80.0534
//	go run ./cmd/resolve -address "10 SE 3rd Street, Boca Raton"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/parcel-valuation-service/internal/adapter/nominatim"
	"github.com/couchcryptid/parcel-valuation-service/internal/adapter/parcels"
	"github.com/couchcryptid/parcel-valuation-service/internal/config"
	"github.com/couchcryptid/parcel-valuation-service/internal/domain"
	"github.com/couchcryptid/parcel-valuation-service/internal/observability"
	"github.com/couchcryptid/parcel-valuation-service/internal/valuation"
	"github.com/jonboulle/clockwork"
)

func main() {
	lat := flag.Float64("lat", 0, "latitude of the point")
	lng := flag.Float64("lng", 0, "longitude of the point")
	address := flag.String("address", "", "address to forward geocode, or fallback address with -lat/-lng")
	at := flag.String("at", "", "fixed RFC 3339 timestamp for resolved_at (reproducible output)")
	verbose := flag.Bool("v", false, "log source calls to stderr")
	flag.Parse()

	pointSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "lat" || f.Name == "lng" {
			pointSet = true
		}
	})
	if !pointSet && *address == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if *at != "" {
		ts, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -at: %v\n", err)
			os.Exit(1)
		}
		domain.SetClock(clockwork.NewFakeClockAt(ts))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if code := run(cfg, logger, domain.GeoPoint{Lat: *lat, Lon: *lng}, pointSet, *address); code != 0 {
		os.Exit(code)
	}
}

func run(cfg *config.Config, logger *slog.Logger, point domain.GeoPoint, pointSet bool, address string) int {
	metrics := observability.NewMetricsForTesting()
	geocoder := nominatim.NewClient(nominatim.Options{
		BaseURL:       cfg.GeocoderURL,
		UserAgent:     cfg.GeocoderUserAgent,
		Timeout:       cfg.SourceTimeout,
		RatePerSecond: cfg.GeocoderRate,
	}, metrics, logger)
	svc := valuation.NewService(
		geocoder,
		parcels.NewCandidateClient(cfg.ParcelsURL, cfg.SourceTimeout, logger),
		parcels.NewDetailClient(cfg.DetailsURL, cfg.SourceTimeout, logger),
		cfg.SourceTimeout, logger, metrics,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 3*cfg.SourceTimeout)
	defer cancel()

	var res valuation.Resolution
	if pointSet {
		if err := point.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "invalid point: %v\n", err)
			return 1
		}
		res = svc.Resolve(ctx, point, address)
	} else {
		res = svc.ResolveAddress(ctx, address)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		return 1
	}
	if !res.Matched() {
		fmt.Fprintln(os.Stderr, "no parcel contains the point")
	}
	return 0
}
