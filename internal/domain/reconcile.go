package domain

import "strings"

// ReconcileInput gathers everything one resolution learned about a point.
type ReconcileInput struct {
	// Geocoded is the reverse-geocoded address, or UnknownAddress.
	Geocoded string

	// Parcel is the containing parcel; meaningful only when Matched is true.
	Parcel  ParcelCandidate
	Matched bool

	// Details is the enrichment for Parcel. Ignored when Matched is false.
	Details ParcelDetails

	// PriorAddress is the address the caller already had (typed by the user or
	// carried over from a previous screen). May be empty.
	PriorAddress string
}

// Reconcile merges the sources into a fully populated ValuationRecord.
// See the package documentation for the precedence table.
func Reconcile(in ReconcileInput) ValuationRecord {
	rec := EmptyRecord()
	rec.Address = resolveAddress(in)

	if !in.Matched {
		return rec
	}

	d := in.Details
	rec.Municipality = strings.TrimSpace(d.Municipality)
	rec.Zoning = strings.TrimSpace(d.Zoning)
	rec.Owner = strings.TrimSpace(d.OwnerName)
	rec.LastSaleDate = strings.TrimSpace(d.LastSaleDate)
	rec.LastSalePrice = strings.TrimSpace(d.LastSalePrice)

	if v, ok := in.Parcel.Property(EstimatedValueKeys...); ok {
		rec.EstimatedPrice = v
	}
	if v, ok := in.Parcel.Property(ConfidenceKeys...); ok {
		rec.Confidence = v
	}
	return rec
}

func resolveAddress(in ReconcileInput) string {
	if in.Matched {
		if a := strings.TrimSpace(in.Details.LocationAddress); a != "" {
			return a
		}
	}
	if a := strings.TrimSpace(in.Geocoded); a != "" && a != UnknownAddress {
		return a
	}
	if in.Matched {
		if a, ok := in.Parcel.Property(SiteAddressKeys...); ok {
			return a
		}
	}
	if a := strings.TrimSpace(in.PriorAddress); a != "" {
		return a
	}
	return UnknownAddress
}
