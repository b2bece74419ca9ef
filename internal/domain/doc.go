// Package domain models parcel resolution and valuation reconciliation.
//
// # Sources
//
// A resolution combines three independent HTTP sources, each best effort:
//
//	Reverse geocoder   point -> display address ("Unknown" when unavailable)
//	Parcel candidates  point -> GeoJSON features near the point (empty on failure)
//	Parcel details     parcel id -> owner, zoning, sale history (empty on failure)
//
// Adapters report failures as errors; the valuation workflow converts them into
// the fallback values above so no source can fail a resolution.
//
// # Coordinates
//
// GeoJSON and go-geom order coordinates as (x, y) = (longitude, latitude).
// [GeoPoint] stores latitude first for readability, and [GeoPoint.Coord] is the
// only place the order is flipped. Getting this wrong silently matches the
// wrong parcel, or none.
//
// # Containment
//
// [Resolve] returns the first candidate whose Polygon or MultiPolygon contains
// the point. Ring boundaries count as inside; points inside a hole do not.
// Overlapping parcels are not reconciled: iteration order decides. Overlaps
// usually indicate incomplete parcel data rather than a real ownership rule.
//
// # Precedence
//
// [Reconcile] applies one rule per field, highest precedence first:
//
//	address         details.LocationAddress > geocoded address > parcel site address
//	                > prior address > "Unknown"
//	municipality,   details (trimmed) > ""; always "" without a matched parcel
//	zoning, owner,
//	last sale
//	estimated price, parcel properties > "N/A"; never taken from details
//	confidence
//
// Every field of a [ValuationRecord] has a default, so the record is always
// renderable.
package domain
