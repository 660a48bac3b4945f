// Package api serves stored volatility runs and surfaces over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/contactkeval/option-volsurface/internal/data"
	"github.com/contactkeval/option-volsurface/internal/logger"
	"github.com/contactkeval/option-volsurface/internal/pricing"
	"github.com/contactkeval/option-volsurface/internal/storage"
	"github.com/contactkeval/option-volsurface/internal/surface"
	"github.com/contactkeval/option-volsurface/internal/volatility"
)

// RunStore is the read side of storage the handlers need.
type RunStore interface {
	GetRun(ctx context.Context, id string) (*storage.Run, error)
	LatestRun(ctx context.Context, underlying string) (*storage.Run, error)
	ListRuns(ctx context.Context, underlying string, limit int) ([]*storage.Run, error)
}

// Refresher computes and stores a new run.
type Refresher interface {
	Refresh(ctx context.Context, underlying string) (*storage.Run, error)
}

// Handler holds the dependencies of every route.
type Handler struct {
	store      RunStore
	refresher  Refresher
	underlying string // used when a refresh names none
	resolution int    // default grid resolution
}

func NewHandler(store RunStore, refresher Refresher, underlying string, resolution int) *Handler {
	return &Handler{store: store, refresher: refresher, underlying: underlying, resolution: resolution}
}

type errorResponse struct {
	Type string `json:"type"`
	Msg  string `json:"message"`
}

func NewErrorResponse(errType string, message string) *errorResponse {
	return &errorResponse{
		Type: errType,
		Msg:  message,
	}
}

// SurfaceResponse carries a grid built from a stored run. Warning is set
// when the grid is all null for lack of samples.
type SurfaceResponse struct {
	RunID      string        `json:"run_id"`
	Underlying string        `json:"underlying"`
	Samples    int           `json:"samples"`
	Grid       *surface.Grid `json:"grid"`
	Warning    string        `json:"warning,omitempty"`
}

// SmileResponse is one expiry's volatilities against strike for one kind.
type SmileResponse struct {
	RunID          string       `json:"run_id"`
	Underlying     string       `json:"underlying"`
	Expiry         string       `json:"expiry"`
	Kind           pricing.Kind `json:"kind"`
	TimeToMaturity float64      `json:"time_to_maturity"`
	Points         []SmilePoint `json:"points"`
}

// SmilePoint adds moneyness to a stored smile point.
type SmilePoint struct {
	volatility.SmilePoint
	Moneyness float64 `json:"moneyness"`
}

// FuturesResponse is the futures curve a run was priced next to.
type FuturesResponse struct {
	RunID           string             `json:"run_id"`
	Underlying      string             `json:"underlying"`
	UnderlyingPrice float64            `json:"underlying_price"`
	Futures         []data.FuturePrice `json:"futures"`
}

func setResponse(response interface{}, statusCode int, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		return fmt.Errorf("setResponse: encode: %w", err)
	}

	return nil
}

func setErrorResponse(errType string, statusCode int, err error, w http.ResponseWriter) {
	if errors.Is(err, storage.ErrNotFound) {
		statusCode = http.StatusNotFound
	}
	if statusCode >= 500 {
		logger.Errorf("%s: %v", errType, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := NewErrorResponse(errType, err.Error())
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		logger.Errorf("setErrorResponse: encode: %v", encodeErr)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		setErrorResponse("listRuns: invalid limit", http.StatusBadRequest, err, w)
		return
	}

	runs, err := h.store.ListRuns(r.Context(), r.URL.Query().Get("underlying"), limit)
	if err != nil {
		setErrorResponse("listRuns: failed to list runs", http.StatusInternalServerError, err, w)
		return
	}

	if err := setResponse(runs, http.StatusOK, w); err != nil {
		logger.Errorf("listRuns: %v", err)
	}
}

func (h *Handler) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.LatestRun(r.Context(), r.URL.Query().Get("underlying"))
	if err != nil {
		setErrorResponse("latestRun: failed to get run", http.StatusInternalServerError, err, w)
		return
	}

	if err := setResponse(run, http.StatusOK, w); err != nil {
		logger.Errorf("latestRun: %v", err)
	}
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	run, err := h.store.GetRun(r.Context(), vars["id"])
	if err != nil {
		setErrorResponse("getRun: failed to get run", http.StatusInternalServerError, err, w)
		return
	}

	if err := setResponse(run, http.StatusOK, w); err != nil {
		logger.Errorf("getRun: %v", err)
	}
}

func (h *Handler) handleSurface(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	resolution, err := intParam(r, "resolution", h.resolution)
	if err != nil || resolution < 2 || resolution > 500 {
		setErrorResponse("surface: invalid resolution", http.StatusBadRequest,
			fmt.Errorf("resolution must be an integer between 2 and 500"), w)
		return
	}

	run, err := h.store.GetRun(r.Context(), vars["id"])
	if err != nil {
		setErrorResponse("surface: failed to get run", http.StatusInternalServerError, err, w)
		return
	}

	points := surface.PointsFromRecords(run.Records, run.UnderlyingPrice, run.ValuationTime)
	grid, err := surface.BuildGrid(points, resolution)
	resp := SurfaceResponse{RunID: run.ID, Underlying: run.Underlying, Samples: len(points), Grid: grid}
	if err != nil {
		if !errors.Is(err, surface.ErrInsufficientSamples) {
			setErrorResponse("surface: failed to build grid", http.StatusInternalServerError, err, w)
			return
		}
		resp.Warning = err.Error()
	}

	if err := setResponse(resp, http.StatusOK, w); err != nil {
		logger.Errorf("surface: %v", err)
	}
}

func (h *Handler) handleExpiries(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	run, err := h.store.GetRun(r.Context(), vars["id"])
	if err != nil {
		setErrorResponse("expiries: failed to get run", http.StatusInternalServerError, err, w)
		return
	}

	if err := setResponse(volatility.Expiries(run.Records), http.StatusOK, w); err != nil {
		logger.Errorf("expiries: %v", err)
	}
}

func (h *Handler) handleSmile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	query := r.URL.Query()

	expiry, err := time.Parse(volatility.ExpiryLayout, query.Get("expiry"))
	if err != nil {
		setErrorResponse("smile: invalid expiry", http.StatusBadRequest,
			fmt.Errorf("expiry must be a date formatted YYYY-MM-DD"), w)
		return
	}
	kind := pricing.Call
	if raw := query.Get("kind"); raw != "" {
		if kind, err = pricing.ParseKind(raw); err != nil {
			setErrorResponse("smile: invalid kind", http.StatusBadRequest, err, w)
			return
		}
	}

	run, err := h.store.GetRun(r.Context(), vars["id"])
	if err != nil {
		setErrorResponse("smile: failed to get run", http.StatusInternalServerError, err, w)
		return
	}

	key := expiry.Format(volatility.ExpiryLayout)
	known := false
	for _, e := range volatility.Expiries(run.Records) {
		known = known || e == key
	}
	if !known {
		setErrorResponse("smile: unknown expiry", http.StatusNotFound,
			fmt.Errorf("run %s has no records expiring %s", run.ID, key), w)
		return
	}

	resp := SmileResponse{
		RunID:          run.ID,
		Underlying:     run.Underlying,
		Expiry:         key,
		Kind:           kind,
		TimeToMaturity: volatility.TimeToMaturity(expiry, run.ValuationTime),
		Points:         []SmilePoint{},
	}
	for _, p := range volatility.Smile(run.Records, key, kind) {
		resp.Points = append(resp.Points, SmilePoint{SmilePoint: p, Moneyness: p.Strike / run.UnderlyingPrice})
	}

	if err := setResponse(resp, http.StatusOK, w); err != nil {
		logger.Errorf("smile: %v", err)
	}
}

func (h *Handler) handleFutures(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	run, err := h.store.GetRun(r.Context(), vars["id"])
	if err != nil {
		setErrorResponse("futures: failed to get run", http.StatusInternalServerError, err, w)
		return
	}

	resp := FuturesResponse{
		RunID:           run.ID,
		Underlying:      run.Underlying,
		UnderlyingPrice: run.UnderlyingPrice,
		Futures:         run.Futures,
	}
	if resp.Futures == nil {
		resp.Futures = []data.FuturePrice{}
	}
	if err := setResponse(resp, http.StatusOK, w); err != nil {
		logger.Errorf("futures: %v", err)
	}
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	underlying := r.URL.Query().Get("underlying")
	if underlying == "" {
		underlying = h.underlying
	}

	run, err := h.refresher.Refresh(r.Context(), underlying)
	if err != nil {
		setErrorResponse("refresh: failed to refresh "+underlying, http.StatusBadGateway, err, w)
		return
	}

	if err := setResponse(run, http.StatusCreated, w); err != nil {
		logger.Errorf("refresh: %v", err)
	}
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// SetupHandler registers every route on router.
func SetupHandler(router *mux.Router, h *Handler) {
	router.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/runs", h.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/latest", h.handleLatestRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", h.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/surface", h.handleSurface).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/expiries", h.handleExpiries).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/smile", h.handleSmile).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/futures", h.handleFutures).Methods(http.MethodGet)
	api.HandleFunc("/refresh", h.handleRefresh).Methods(http.MethodPost)
}

// NewRouter returns a router with every route and request logging.
func NewRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(logRequests)
	SetupHandler(router, h)
	return router
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("%s %s", r.Method, r.URL.RequestURI())
		next.ServeHTTP(w, r)
	})
}
