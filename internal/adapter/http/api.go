package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/couchcryptid/parcel-valuation-service/internal/domain"
	"github.com/couchcryptid/parcel-valuation-service/internal/valuation"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 16

// API serves the valuation endpoints.
type API struct {
	svc      *valuation.Service
	sessions *valuation.Sessions
	logger   *slog.Logger
}

func NewAPI(svc *valuation.Service, sessions *valuation.Sessions, logger *slog.Logger) *API {
	return &API{svc: svc, sessions: sessions, logger: logger}
}

// Routes mounts the valuation endpoints on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/api/valuation", a.handleValuation)
	r.Post("/predict", a.handlePredict)
	r.Route("/api/sessions/{session}", func(r chi.Router) {
		r.Post("/point", a.handleSessionPoint)
		r.Post("/address", a.handleSessionAddress)
		r.Get("/current", a.handleSessionCurrent)
	})
}

// handleValuation resolves a single point outside any session.
func (a *API) handleValuation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	point, err := parsePoint(q.Get("lat"), q.Get("lng"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, a.svc.Resolve(r.Context(), point, q.Get("address")))
}

type predictRequest struct {
	Address string `json:"address"`
}

type predictResponse struct {
	EstimatedPrice string `json:"estimated_price"`
	Confidence     string `json:"confidence"`
	Address        string `json:"address"`
}

// handlePredict returns the estimate for a typed address in the flat
// {estimated_price, confidence, address} shape.
func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	res := a.svc.ResolveAddress(r.Context(), req.Address)
	sharedobs.WriteJSON(w, http.StatusOK, predictResponse{
		EstimatedPrice: res.Record.EstimatedPrice,
		Confidence:     res.Record.Confidence,
		Address:        res.Record.Address,
	})
}

type pointRequest struct {
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Address string   `json:"address"`
}

type sessionResponse struct {
	Committed  bool                 `json:"committed"`
	Resolution valuation.Resolution `json:"resolution"`
}

func (a *API) handleSessionPoint(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}
	point := domain.GeoPoint{Lat: *req.Lat, Lon: *req.Lng}
	if err := point.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session := a.sessions.Get(chi.URLParam(r, "session"))
	res, committed := session.Resolve(r.Context(), point, req.Address)
	sharedobs.WriteJSON(w, http.StatusOK, sessionResponse{Committed: committed, Resolution: res})
}

func (a *API) handleSessionAddress(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	session := a.sessions.Get(chi.URLParam(r, "session"))
	res, committed := session.ResolveAddress(r.Context(), req.Address)
	sharedobs.WriteJSON(w, http.StatusOK, sessionResponse{Committed: committed, Resolution: res})
}

func (a *API) handleSessionCurrent(w http.ResponseWriter, r *http.Request) {
	session, ok := a.sessions.Lookup(chi.URLParam(r, "session"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	res, ok := session.Current()
	if !ok {
		writeError(w, http.StatusNotFound, "no resolution yet")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

func parsePoint(latRaw, lngRaw string) (domain.GeoPoint, error) {
	if latRaw == "" || lngRaw == "" {
		return domain.GeoPoint{}, errors.New("lat and lng are required")
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return domain.GeoPoint{}, errors.New("lat must be a number")
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return domain.GeoPoint{}, errors.New("lng must be a number")
	}
	point := domain.GeoPoint{Lat: lat, Lon: lng}
	return point, point.Validate()
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
