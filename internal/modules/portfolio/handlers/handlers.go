// Package handlers provides HTTP handlers for portfolio management.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jeremycod/rustfolio-sub000/internal/modules/portfolio"
)

// Handler handles portfolio HTTP requests.
type Handler struct {
	repo *portfolio.Repository
	log  zerolog.Logger
}

// NewHandler creates a new portfolio handler.
func NewHandler(repo *portfolio.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "portfolio").Logger(),
	}
}

// RegisterRoutes registers all portfolio routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Get("/positions", h.HandleListPositions)
			r.Put("/positions", h.HandleUpsertPosition)
		})
	})
}

type createPortfolioRequest struct {
	Name            string `json:"name"`
	BenchmarkTicker string `json:"benchmark_ticker"`
}

// HandleCreate handles POST /api/portfolios.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createPortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "name is required"})
		return
	}

	p, err := h.repo.CreatePortfolio(r.Context(), req.Name, req.BenchmarkTicker)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create portfolio")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	h.writeData(w, http.StatusCreated, p)
}

// HandleList handles GET /api/portfolios.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.repo.ListPortfolios(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list portfolios")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	h.writeData(w, http.StatusOK, portfolios)
}

// HandleGet handles GET /api/portfolios/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.GetPortfolio(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get portfolio")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	if p == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "portfolio not found"})
		return
	}
	h.writeData(w, http.StatusOK, p)
}

// HandleListPositions handles GET /api/portfolios/{id}/positions.
func (h *Handler) HandleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.repo.ListPositions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list positions")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	h.writeData(w, http.StatusOK, positions)
}

type upsertPositionRequest struct {
	Ticker      string          `json:"ticker"`
	Quantity    decimal.Decimal `json:"quantity"`
	MarketValue decimal.Decimal `json:"market_value"`
	Manual      bool            `json:"manual"`
}

// HandleUpsertPosition handles PUT /api/portfolios/{id}/positions.
func (h *Handler) HandleUpsertPosition(w http.ResponseWriter, r *http.Request) {
	var req upsertPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Ticker == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "ticker is required"})
		return
	}

	pos, err := h.repo.UpsertPosition(r.Context(), portfolio.Position{
		PortfolioID: chi.URLParam(r, "id"),
		Ticker:      req.Ticker,
		Quantity:    req.Quantity,
		MarketValue: req.MarketValue,
		Manual:      req.Manual,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upsert position")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	h.writeData(w, http.StatusOK, pos)
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
