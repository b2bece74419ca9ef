// Package valuation runs the parcel resolution workflow: it fans out to the
// geocoder and the candidate source, resolves containment, enriches the match,
// and reconciles everything into one record.
package valuation

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/parcel-valuation-service/internal/domain"
	"github.com/couchcryptid/parcel-valuation-service/internal/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultSourceTimeout bounds each external call when none is configured.
const DefaultSourceTimeout = 5 * time.Second

// sequentialSourceCalls is the longest chain of dependent source calls in one
// resolution: forward geocode, then reverse geocode alongside the candidate
// fetch, then details.
const sequentialSourceCalls = 3

// Resolution is the immutable outcome of one interaction. It replaces the
// previous one wholesale; nothing updates a Resolution in place.
type Resolution struct {
	ID         string                  `json:"id"`
	Seq        uint64                  `json:"seq,omitempty"`
	Point      *domain.GeoPoint        `json:"point,omitempty"` // nil when an address could not be located
	Record     domain.ValuationRecord  `json:"record"`
	Parcel     *domain.ParcelCandidate `json:"parcel,omitempty"`
	ResolvedAt time.Time               `json:"resolved_at"`
}

// Matched reports whether a parcel contains the point.
func (r Resolution) Matched() bool {
	return r.Parcel != nil
}

// Service resolves points into valuation records.
type Service struct {
	geocoder   domain.Geocoder
	candidates domain.CandidateFetcher
	details    domain.DetailFetcher
	logger     *slog.Logger
	metrics    *observability.Metrics
	timeout    time.Duration
	draining   atomic.Bool
}

// NewService wires the three sources. A nil geocoder or detail fetcher disables
// that source; its fields fall back as if it had failed.
func NewService(g domain.Geocoder, c domain.CandidateFetcher, d domain.DetailFetcher, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}
	return &Service{
		geocoder:   g,
		candidates: c,
		details:    d,
		logger:     logger,
		metrics:    metrics,
		timeout:    timeout,
	}
}

// MaxDuration is the worst-case time one resolution can take when every
// source call runs to its timeout. HTTP write deadlines must exceed it.
func (s *Service) MaxDuration() time.Duration {
	return sequentialSourceCalls * s.timeout
}

// CheckReadiness reports an error once the service has started draining.
func (s *Service) CheckReadiness(_ context.Context) error {
	if s.draining.Load() {
		return errors.New("service is shutting down")
	}
	return nil
}

// Drain marks the service as not ready so load balancers stop routing to it.
func (s *Service) Drain() {
	s.draining.Store(true)
}

// Resolve produces a Resolution for point. It never fails: every source error
// degrades into that source's fallback value. priorAddress is the last-resort
// address, typically what the user typed or what was shown before.
func (s *Service) Resolve(ctx context.Context, point domain.GeoPoint, priorAddress string) Resolution {
	start := time.Now()
	s.metrics.InFlight.Inc()
	defer s.metrics.InFlight.Dec()

	var (
		geocoded   = domain.UnknownAddress
		candidates []domain.ParcelCandidate
	)

	// Errors never escape the branches, so the group only synchronizes.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		geocoded = s.reverseGeocode(gctx, point)
		return nil
	})
	g.Go(func() error {
		candidates = s.fetchCandidates(gctx, point)
		return nil
	})
	_ = g.Wait()

	s.metrics.CandidatesPerPoint.Observe(float64(len(candidates)))

	in := domain.ReconcileInput{Geocoded: geocoded, PriorAddress: priorAddress}
	parcel, matched := domain.Resolve(point, candidates)
	if matched {
		in.Parcel = parcel
		in.Matched = true
		in.Details = s.fetchDetails(ctx, parcel.ID)
	}

	res := Resolution{
		ID:         uuid.NewString(),
		Point:      &point,
		Record:     domain.Reconcile(in),
		ResolvedAt: domain.Now(),
	}
	outcome := "unmatched"
	if matched {
		res.Parcel = &parcel
		outcome = "matched"
	}

	s.metrics.Resolutions.WithLabelValues(outcome).Inc()
	s.metrics.ResolutionDuration.Observe(time.Since(start).Seconds())
	s.logger.Debug("point resolved",
		"resolution_id", res.ID,
		"lat", point.Lat,
		"lon", point.Lon,
		"candidates", len(candidates),
		"parcel_id", parcel.ID,
		"outcome", outcome,
	)
	return res
}

// ResolveAddress forward geocodes a typed address and resolves the resulting
// point, keeping the typed address as the fallback. If the address cannot be
// located the no-match record for it is returned.
func (s *Service) ResolveAddress(ctx context.Context, address string) Resolution {
	if point, ok := s.forwardGeocode(ctx, address); ok {
		return s.Resolve(ctx, point, address)
	}

	rec := domain.Reconcile(domain.ReconcileInput{
		Geocoded:     domain.UnknownAddress,
		PriorAddress: address,
	})
	s.metrics.Resolutions.WithLabelValues("unlocated").Inc()
	return Resolution{
		ID:         uuid.NewString(),
		Record:     rec,
		ResolvedAt: domain.Now(),
	}
}

// reverseGeocode returns the display address or the Unknown sentinel.
func (s *Service) reverseGeocode(ctx context.Context, point domain.GeoPoint) string {
	if s.geocoder == nil {
		return domain.UnknownAddress
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	result, err := s.geocoder.ReverseGeocode(ctx, point)
	s.observe("geocode", start, err, result.Found())
	if err != nil {
		s.logger.Warn("reverse geocoding failed", "lat", point.Lat, "lon", point.Lon, "error", err)
		return domain.UnknownAddress
	}
	if !result.Found() {
		return domain.UnknownAddress
	}
	return result.DisplayName
}

func (s *Service) forwardGeocode(ctx context.Context, address string) (domain.GeoPoint, bool) {
	if s.geocoder == nil || address == "" {
		return domain.GeoPoint{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	result, err := s.geocoder.ForwardGeocode(ctx, address)
	s.observe("geocode", start, err, result.Found())
	if err != nil {
		s.logger.Warn("forward geocoding failed", "address", address, "error", err)
		return domain.GeoPoint{}, false
	}
	if !result.Found() || result.Point.Validate() != nil {
		return domain.GeoPoint{}, false
	}
	return result.Point, true
}

// fetchCandidates treats any failure exactly like an empty response.
func (s *Service) fetchCandidates(ctx context.Context, point domain.GeoPoint) []domain.ParcelCandidate {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	candidates, err := s.candidates.FetchCandidates(ctx, point)
	s.observe("candidates", start, err, len(candidates) > 0)
	if err != nil {
		s.logger.Warn("parcel candidate fetch failed", "lat", point.Lat, "lon", point.Lon, "error", err)
		return nil
	}
	return candidates
}

func (s *Service) fetchDetails(ctx context.Context, parcelID string) domain.ParcelDetails {
	if s.details == nil {
		return domain.ParcelDetails{}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	details, err := s.details.FetchDetails(ctx, parcelID)
	s.observe("details", start, err, details != (domain.ParcelDetails{}))
	if err != nil {
		s.logger.Warn("parcel detail fetch failed", "parcel_id", parcelID, "error", err)
		return domain.ParcelDetails{}
	}
	return details
}

func (s *Service) observe(source string, start time.Time, err error, found bool) {
	s.metrics.SourceDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case !found:
		outcome = "empty"
	}
	s.metrics.SourceRequests.WithLabelValues(source, outcome).Inc()
}
