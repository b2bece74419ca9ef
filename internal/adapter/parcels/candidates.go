package parcels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/parcel-valuation-service/internal/domain"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// CandidateClient implements domain.CandidateFetcher against an endpoint that
// returns a GeoJSON FeatureCollection of parcels around a point. The bounding
// box is chosen server-side.
type CandidateClient struct {
	http httpGetter
}

// NewCandidateClient creates a candidate fetcher rooted at baseURL.
func NewCandidateClient(baseURL string, timeout time.Duration, logger *slog.Logger) *CandidateClient {
	return &CandidateClient{http: newHTTPGetter(baseURL, timeout, logger)}
}

// FetchCandidates returns the polygonal parcels near point, in response order.
// Features without a usable Polygon or MultiPolygon geometry are skipped.
func (c *CandidateClient) FetchCandidates(ctx context.Context, point domain.GeoPoint) ([]domain.ParcelCandidate, error) {
	params := url.Values{
		"lat": {strconv.FormatFloat(point.Lat, 'f', -1, 64)},
		"lng": {strconv.FormatFloat(point.Lon, 'f', -1, 64)},
	}

	var fc featureCollection
	if err := c.http.getJSON(ctx, c.http.baseURL+"/parcels?"+params.Encode(), &fc); err != nil {
		return nil, fmt.Errorf("parcel candidates: %w", err)
	}

	return decodeCandidates(fc, c.http.logger), nil
}

// GeoJSON wire types. Properties stay untyped: datasets differ per county.

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         json.RawMessage `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

func decodeCandidates(fc featureCollection, logger *slog.Logger) []domain.ParcelCandidate {
	out := make([]domain.ParcelCandidate, 0, len(fc.Features))
	for i, f := range fc.Features {
		g, err := decodeGeometry(f.Geometry)
		if err != nil {
			logger.Debug("skipping parcel feature", "index", i, "error", err)
			continue
		}
		out = append(out, domain.ParcelCandidate{
			ID:          featureID(f),
			Geometry:    g,
			RawGeometry: f.Geometry,
			Properties:  f.Properties,
		})
	}
	return out
}

func decodeGeometry(raw json.RawMessage) (geom.T, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("missing geometry")
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return g, nil
	default:
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}
}

// featureID prefers the GeoJSON id member (string or number) and falls back to
// the parcel identifier properties.
func featureID(f feature) string {
	raw := bytes.TrimSpace(f.ID)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				return s
			}
		} else {
			return string(raw)
		}
	}
	id, _ := domain.LookupString(f.Properties, domain.ParcelIDKeys...)
	return id
}
