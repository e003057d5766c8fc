// Package handlers provides HTTP handlers for risk endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeremycod/rustfolio-sub000/internal/modules/prices"
	"github.com/jeremycod/rustfolio-sub000/internal/modules/risk"
)

// Handler handles risk HTTP requests.
type Handler struct {
	service *risk.Service
	log     zerolog.Logger
}

// NewHandler creates a new risk handler.
func NewHandler(service *risk.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "risk").Logger(),
	}
}

// HandleGetPositionRisk handles GET /api/risk/positions/{ticker}.
// Query params: days (window length), benchmark (ticker for beta).
func (h *Handler) HandleGetPositionRisk(w http.ResponseWriter, r *http.Request, ticker string) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}
	benchmark := r.URL.Query().Get("benchmark")

	result, err := h.service.GetPositionRisk(r.Context(), ticker, days, benchmark)
	if err != nil {
		h.writeError(w, err, "Failed to compute position risk")
		return
	}
	h.writeData(w, result)
}

// HandleGetPortfolioRisk handles GET /api/risk/portfolios/{id}.
func (h *Handler) HandleGetPortfolioRisk(w http.ResponseWriter, r *http.Request, portfolioID string) {
	result, err := h.service.GetPortfolioRisk(r.Context(), portfolioID)
	if err != nil {
		h.writeError(w, err, "Failed to compute portfolio risk")
		return
	}
	h.writeData(w, result)
}

// HandleGetCorrelationMatrix handles GET /api/risk/portfolios/{id}/correlation.
func (h *Handler) HandleGetCorrelationMatrix(w http.ResponseWriter, r *http.Request, portfolioID string) {
	result, err := h.service.GetCorrelationMatrix(r.Context(), portfolioID)
	if err != nil {
		h.writeError(w, err, "Failed to compute correlation matrix")
		return
	}
	h.writeData(w, result)
}

// HandleGetRiskHistory handles GET /api/risk/portfolios/{id}/history.
// Query params: ticker (empty for portfolio-level), days (default 90).
func (h *Handler) HandleGetRiskHistory(w http.ResponseWriter, r *http.Request, portfolioID string) {
	days := 90
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}
	ticker := r.URL.Query().Get("ticker")
	since := time.Now().AddDate(0, 0, -days)

	history, err := h.service.RiskHistory(r.Context(), portfolioID, ticker, since)
	if err != nil {
		h.writeError(w, err, "Failed to load risk history")
		return
	}
	h.writeData(w, history)
}

func (h *Handler) writeData(w http.ResponseWriter, data interface{}) {
	response := map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	status := http.StatusInternalServerError
	var blocked *prices.BlockedError
	switch {
	case errors.Is(err, risk.ErrPortfolioNotFound):
		status = http.StatusNotFound
	case errors.Is(err, risk.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &blocked):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", blocked.RetryAfter.UTC().Format(http.TimeFormat))
	}

	h.log.Error().Err(err).Msg(msg)
	h.writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
