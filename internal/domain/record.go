package domain

// Sentinel values used when a source cannot supply a field.
const (
	UnknownAddress = "Unknown"
	NotAvailable   = "N/A"
)

// ValuationRecord is the single merged artifact handed to the UI. Every field is
// always populated, if only with its default.
type ValuationRecord struct {
	Address        string `json:"address"`
	Municipality   string `json:"municipality"`
	Zoning         string `json:"zoning"`
	Owner          string `json:"owner"`
	LastSaleDate   string `json:"last_sale_date"`
	LastSalePrice  string `json:"last_sale_price"`
	EstimatedPrice string `json:"estimated_price"`
	Confidence     string `json:"confidence"`
}

// EmptyRecord returns the record shown before any source has answered.
func EmptyRecord() ValuationRecord {
	return ValuationRecord{
		Address:        UnknownAddress,
		EstimatedPrice: NotAvailable,
		Confidence:     NotAvailable,
	}
}
