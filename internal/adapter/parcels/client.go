// Package parcels implements the parcel candidate and parcel detail sources
// over HTTP.
package parcels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// errNotFound marks a 404 from a source where absence is a valid answer.
var errNotFound = errors.New("not found")

// httpGetter holds the transport shared by both parcel clients.
type httpGetter struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func newHTTPGetter(baseURL string, timeout time.Duration, logger *slog.Logger) httpGetter {
	return httpGetter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// getJSON fetches fullURL and decodes the body into out with UseNumber, so
// numeric attributes keep their original text.
func (g httpGetter) getJSON(ctx context.Context, fullURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/geo+json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("parcel request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("parcel API error: status %d: %s", resp.StatusCode, body)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
