package parcels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/couchcryptid/parcel-valuation-service/internal/domain"
)

// Accepted keys per detail field. Sources mix snake_case, camelCase and the
// upper-case column names of county exports.
var (
	municipalityKeys    = []string{"municipality", "MUNICIPALITY", "city"}
	zoningKeys          = []string{"zoning", "ZONING"}
	ownerKeys           = []string{"owner_name", "ownerName", "owner", "OWNER_NAME"}
	lastSaleDateKeys    = []string{"last_sale_date", "lastSaleDate", "SALE_DATE"}
	lastSalePriceKeys   = []string{"last_sale_price", "lastSalePrice", "SALE_PRICE"}
	locationAddressKeys = []string{"location_address", "locationAddress", "LOCATION_ADDRESS"}
)

// DetailClient implements domain.DetailFetcher.
type DetailClient struct {
	http httpGetter
}

// NewDetailClient creates a detail fetcher rooted at baseURL.
func NewDetailClient(baseURL string, timeout time.Duration, logger *slog.Logger) *DetailClient {
	return &DetailClient{http: newHTTPGetter(baseURL, timeout, logger)}
}

// FetchDetails returns the extended attributes of a parcel. A 404 means the
// source has nothing for this parcel and yields empty details without error.
func (c *DetailClient) FetchDetails(ctx context.Context, parcelID string) (domain.ParcelDetails, error) {
	if parcelID == "" {
		return domain.ParcelDetails{}, nil
	}

	var body map[string]any
	err := c.http.getJSON(ctx, c.http.baseURL+"/parcels/"+url.PathEscape(parcelID)+"/details", &body)
	if errors.Is(err, errNotFound) {
		c.http.logger.Debug("no parcel details", "parcel_id", parcelID)
		return domain.ParcelDetails{}, nil
	}
	if err != nil {
		return domain.ParcelDetails{}, fmt.Errorf("parcel details %s: %w", parcelID, err)
	}

	return detailsFromMap(body), nil
}

func detailsFromMap(m map[string]any) domain.ParcelDetails {
	get := func(keys []string) string {
		v, _ := domain.LookupString(m, keys...)
		return v
	}
	return domain.ParcelDetails{
		Municipality:    get(municipalityKeys),
		Zoning:          get(zoningKeys),
		OwnerName:       get(ownerKeys),
		LastSaleDate:    get(lastSaleDateKeys),
		LastSalePrice:   get(lastSalePriceKeys),
		LocationAddress: get(locationAddressKeys),
	}
}
