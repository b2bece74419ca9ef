package pipeline_test

import (
	"context"

	"github.com/couchcryptid/parcel-valuation-service/internal/domain"
)

var validPoint = domain.GeoPoint{Lat: 26.7153, Lon: -80.0534}

type emptyCandidates struct{}

func (emptyCandidates) FetchCandidates(context.Context, domain.GeoPoint) ([]domain.ParcelCandidate, error) {
	return nil, nil
}
