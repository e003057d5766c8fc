// Package handlers provides HTTP handlers for optimization endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jeremycod/rustfolio-sub000/internal/modules/optimization"
	"github.com/jeremycod/rustfolio-sub000/internal/modules/risk"
)

// Handler handles optimization HTTP requests.
type Handler struct {
	service *optimization.Service
	log     zerolog.Logger
}

// NewHandler creates a new optimization handler.
func NewHandler(service *optimization.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "optimization").Logger(),
	}
}

// RegisterRoutes registers all optimization routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimization", func(r chi.Router) {
		r.Get("/portfolios/{id}", h.HandleGetAnalysis)
		r.Post("/portfolios/{id}/refresh", h.HandleRefresh)
	})
}

// HandleGetAnalysis handles GET /api/optimization/portfolios/{id}.
func (h *Handler) HandleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	analysis, err := h.service.GetAnalysis(r.Context(), portfolioID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, risk.ErrPortfolioNotFound) {
			status = http.StatusNotFound
		}
		h.log.Error().Err(err).Str("portfolio_id", portfolioID).Msg("Failed to generate optimization analysis")
		h.writeJSON(w, status, map[string]interface{}{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": analysis,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleRefresh handles POST /api/optimization/portfolios/{id}/refresh,
// invalidating the cached analysis.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")
	h.service.Invalidate(portfolioID)
	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"data": map[string]string{"status": "invalidated"},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
