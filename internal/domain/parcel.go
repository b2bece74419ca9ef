package domain

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
)

// Property keys accepted for the values a parcel feature carries itself.
// Parcel datasets disagree on naming, so each field has aliases checked in order.
var (
	SiteAddressKeys    = []string{"site_address", "SITE_ADDR", "SITE_ADDR_STR", "address"}
	EstimatedValueKeys = []string{"estimated_value", "estimated_price", "EST_VALUE"}
	ConfidenceKeys     = []string{"confidence", "confidence_score"}
	ParcelIDKeys       = []string{"parcel_id", "PCN", "PARID"}
)

// ParcelCandidate is a parcel returned by a bounding-box query, not yet known
// to contain the query point.
type ParcelCandidate struct {
	ID string `json:"id"`

	// Geometry is the decoded Polygon or MultiPolygon used for containment.
	Geometry geom.T `json:"-"`

	// RawGeometry is the GeoJSON geometry exactly as received, passed through
	// for map overlays.
	RawGeometry json.RawMessage `json:"geometry,omitempty"`

	Properties map[string]any `json:"properties,omitempty"`
}

// Property returns the first non-empty value among keys, rendered as a string.
func (c ParcelCandidate) Property(keys ...string) (string, bool) {
	return LookupString(c.Properties, keys...)
}

// ParcelDetails holds extended attributes from the detail source. Any field may
// be empty.
type ParcelDetails struct {
	Municipality    string `json:"municipality"`
	Zoning          string `json:"zoning"`
	OwnerName       string `json:"owner_name"`
	LastSaleDate    string `json:"last_sale_date"`
	LastSalePrice   string `json:"last_sale_price"`
	LocationAddress string `json:"location_address"`
}

// LookupString returns the first value among keys that renders to a non-blank
// string. Numbers are formatted without exponent so prices survive intact.
func LookupString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		if s := stringify(v); s != "" {
			return s, true
		}
	}
	return "", false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
