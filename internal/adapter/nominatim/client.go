// Package nominatim implements domain.Geocoder against a Nominatim-compatible
// geocoding API (OpenStreetMap's public instance or a self-hosted one).
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/parcel-valuation-service/internal/domain"
	"github.com/couchcryptid/parcel-valuation-service/internal/observability"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public OpenStreetMap instance, which allows at most one
// request per second per application.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Client implements domain.Geocoder using the Nominatim search and reverse APIs.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// RatePerSecond caps outbound requests. Zero disables limiting.
	RatePerSecond float64
}

// NewClient creates a Nominatim geocoding client.
func NewClient(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: opts.UserAgent,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
}

// ForwardGeocode converts a free-text address to coordinates.
func (c *Client) ForwardGeocode(ctx context.Context, address string) (domain.GeocodingResult, error) {
	params := url.Values{
		"q":      {address},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}

	var places []place
	if err := c.doRequest(ctx, c.baseURL+"/search?"+params.Encode(), "forward", &places); err != nil {
		return domain.GeocodingResult{}, err
	}
	if len(places) == 0 {
		c.observe("forward", "empty")
		return domain.GeocodingResult{}, nil
	}
	result, err := places[0].toResult()
	if err != nil {
		c.observe("forward", "error")
		return domain.GeocodingResult{}, err
	}
	c.observe("forward", outcome(result))
	return result, nil
}

// ReverseGeocode converts coordinates to a display address.
func (c *Client) ReverseGeocode(ctx context.Context, point domain.GeoPoint) (domain.GeocodingResult, error) {
	params := url.Values{
		"lat":    {strconv.FormatFloat(point.Lat, 'f', 6, 64)},
		"lon":    {strconv.FormatFloat(point.Lon, 'f', 6, 64)},
		"format": {"jsonv2"},
	}

	var p place
	if err := c.doRequest(ctx, c.baseURL+"/reverse?"+params.Encode(), "reverse", &p); err != nil {
		return domain.GeocodingResult{}, err
	}
	// Nominatim answers 200 with an "error" member when nothing is near the point.
	if p.Error != "" || p.DisplayName == "" {
		c.observe("reverse", "empty")
		return domain.GeocodingResult{}, nil
	}
	c.observe("reverse", "success")
	return domain.GeocodingResult{Point: point, DisplayName: p.DisplayName}, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL, method string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		c.observe(method, "error")
		return fmt.Errorf("%s geocode rate limit: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, "error")
		return fmt.Errorf("%s geocode request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.observe(method, "error")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("nominatim API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.observe(method, "error")
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) observe(method, outcome string) {
	c.metrics.GeocodeRequests.WithLabelValues(method, outcome).Inc()
}

func outcome(r domain.GeocodingResult) string {
	if r.Found() {
		return "success"
	}
	return "empty"
}

// Nominatim API response types. Coordinates arrive as strings.

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

func (p place) toResult() (domain.GeocodingResult, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse lat %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse lon %q: %w", p.Lon, err)
	}
	return domain.GeocodingResult{
		Point:       domain.GeoPoint{Lat: lat, Lon: lon},
		DisplayName: p.DisplayName,
	}, nil
}
