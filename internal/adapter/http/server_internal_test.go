package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/parcel-valuation-service/internal/domain"
	"github.com/couchcryptid/parcel-valuation-service/internal/observability"
	"github.com/couchcryptid/parcel-valuation-service/internal/valuation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

type alwaysReady struct{}

func (alwaysReady) CheckReadiness(context.Context) error { return nil }

// slowSources answers each source call just before the deadline, except
// details and reverse geocoding, which run into it.
type slowSources struct {
	delay time.Duration
}

func (s slowSources) wait(ctx context.Context) error {
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s slowSources) ForwardGeocode(ctx context.Context, _ string) (domain.GeocodingResult, error) {
	if err := s.wait(ctx); err != nil {
		return domain.GeocodingResult{}, err
	}
	return domain.GeocodingResult{Point: domain.GeoPoint{Lat: 26.7153, Lon: -80.0534}, DisplayName: "10 SE 3rd Street"}, nil
}

func (slowSources) ReverseGeocode(ctx context.Context, _ domain.GeoPoint) (domain.GeocodingResult, error) {
	<-ctx.Done()
	return domain.GeocodingResult{}, ctx.Err()
}

func (s slowSources) FetchCandidates(ctx context.Context, _ domain.GeoPoint) ([]domain.ParcelCandidate, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return []domain.ParcelCandidate{{
		ID: "p-1",
		Geometry: geom.NewPolygonFlat(geom.XY, []float64{
			-80.06, 26.71, -80.05, 26.71, -80.05, 26.72, -80.06, 26.72, -80.06, 26.71,
		}, []int{10}),
		Properties: map[string]any{"estimated_value": "425000", "confidence": "92%"},
	}}, nil
}

func (slowSources) FetchDetails(ctx context.Context, _ string) (domain.ParcelDetails, error) {
	<-ctx.Done()
	return domain.ParcelDetails{}, ctx.Err()
}

func newSlowAPI(timeout time.Duration) *API {
	src := slowSources{delay: timeout * 9 / 10}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := valuation.NewService(src, src, src, timeout, logger, observability.NewMetricsForTesting())
	return NewAPI(svc, valuation.NewSessions(svc, nil, 4), logger)
}

func TestNewServer_WriteTimeoutCoversSlowestResolution(t *testing.T) {
	api := newSlowAPI(6 * time.Second)

	srv := NewServer(":0", alwaysReady{}, api, Options{WriteTimeout: 17 * time.Second}, slog.Default())

	assert.Equal(t, 3*6*time.Second+writeMargin, srv.httpServer.WriteTimeout)
}

func TestNewServer_KeepsLargerWriteTimeout(t *testing.T) {
	srv := NewServer(":0", alwaysReady{}, newSlowAPI(time.Second), Options{WriteTimeout: time.Minute}, slog.Default())

	assert.Equal(t, time.Minute, srv.httpServer.WriteTimeout)
}

func TestPredict_SlowSourcesStillGetAResponse(t *testing.T) {
	const timeout = 100 * time.Millisecond
	srv := NewServer(":0", alwaysReady{}, newSlowAPI(timeout), Options{WriteTimeout: 2 * timeout}, slog.Default())

	ts := httptest.NewUnstartedServer(srv.httpServer.Handler)
	ts.Config.WriteTimeout = srv.httpServer.WriteTimeout
	ts.Start()
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/predict", "application/json", strings.NewReader(`{"address":"10 SE 3rd Street"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "425000", body["estimated_price"])
	assert.Equal(t, "10 SE 3rd Street", body["address"])
}
