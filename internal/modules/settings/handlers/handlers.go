// Package handlers provides HTTP handlers for risk threshold settings.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jeremycod/rustfolio-sub000/internal/modules/settings"
)

// Handler handles settings HTTP requests.
type Handler struct {
	repo *settings.Repository
	log  zerolog.Logger
}

// NewHandler creates a new settings handler.
func NewHandler(repo *settings.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "settings").Logger(),
	}
}

// RegisterRoutes registers all settings routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/settings", func(r chi.Router) {
		r.Get("/portfolios/{id}/thresholds", h.HandleGetThresholds)
		r.Put("/portfolios/{id}/thresholds/{metric}", h.HandleSetThreshold)
	})
}

// HandleGetThresholds handles GET /api/settings/portfolios/{id}/thresholds.
func (h *Handler) HandleGetThresholds(w http.ResponseWriter, r *http.Request) {
	thresholds, err := h.repo.GetRiskThresholds(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load risk thresholds")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	h.writeData(w, thresholds)
}

// HandleSetThreshold handles PUT /api/settings/portfolios/{id}/thresholds/{metric}.
func (h *Handler) HandleSetThreshold(w http.ResponseWriter, r *http.Request) {
	metric := chi.URLParam(r, "metric")
	switch metric {
	case "volatility", "max_drawdown", "beta", "risk_score":
	default:
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "unknown metric"})
		return
	}

	var threshold settings.MetricThreshold
	if err := json.NewDecoder(r.Body).Decode(&threshold); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid threshold payload"})
		return
	}

	if err := h.repo.SetRiskThreshold(r.Context(), chi.URLParam(r, "id"), metric, threshold); err != nil {
		h.log.Error().Err(err).Msg("Failed to set risk threshold")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	h.writeData(w, threshold)
}

func (h *Handler) writeData(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
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
