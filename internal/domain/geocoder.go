package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Point       GeoPoint
	DisplayName string
}

// Found reports whether the provider returned anything usable.
func (r GeocodingResult) Found() bool {
	return r.DisplayName != ""
}

// Geocoder converts between coordinates and human-readable addresses.
type Geocoder interface {
	// ForwardGeocode converts a free-text address to coordinates.
	ForwardGeocode(ctx context.Context, address string) (GeocodingResult, error)

	// ReverseGeocode converts coordinates to a display address.
	ReverseGeocode(ctx context.Context, point GeoPoint) (GeocodingResult, error)
}

// CandidateFetcher returns parcels near a point. Order carries no meaning.
type CandidateFetcher interface {
	FetchCandidates(ctx context.Context, point GeoPoint) ([]ParcelCandidate, error)
}

// DetailFetcher returns extended attributes for a parcel.
// A parcel without details is not an error: implementations return the zero
// ParcelDetails.
type DetailFetcher interface {
	FetchDetails(ctx context.Context, parcelID string) (ParcelDetails, error)
}
