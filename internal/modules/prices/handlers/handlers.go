// Package handlers provides HTTP handlers for price data and the
// failure cache.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jeremycod/rustfolio-sub000/internal/modules/prices"
)

// Handler handles price HTTP requests.
type Handler struct {
	service *prices.Service
	log     zerolog.Logger
}

// NewHandler creates a new prices handler.
func NewHandler(service *prices.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "prices").Logger(),
	}
}

// RegisterRoutes registers all price routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/prices", func(r chi.Router) {
		r.Get("/failures", h.HandleListFailures)
		r.Route("/{ticker}", func(r chi.Router) {
			r.Get("/latest", h.HandleGetLatest)
			r.Get("/history", h.HandleGetHistory)
			r.Post("/refresh", h.HandleRefresh)
		})
	})
}

// HandleGetLatest handles GET /api/prices/{ticker}/latest.
func (h *Handler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	point, err := h.service.Latest(r.Context(), ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get latest price")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	if point == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "no price data for ticker"})
		return
	}
	h.writeData(w, point)
}

// HandleGetHistory handles GET /api/prices/{ticker}/history?days=365.
// Serves stale data when a refresh fails but cached points exist.
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	days := 365
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}

	to := time.Now()
	points, err := h.service.WindowWithRefresh(r.Context(), ticker, to.AddDate(0, 0, -days), to)
	if err != nil {
		h.writeFetchError(w, ticker, err)
		return
	}
	h.writeData(w, points)
}

// HandleRefresh handles POST /api/prices/{ticker}/refresh.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	if err := h.service.EnsureFresh(r.Context(), ticker); err != nil {
		h.writeFetchError(w, ticker, err)
		return
	}
	h.writeData(w, map[string]string{"status": "fresh"})
}

// HandleListFailures handles GET /api/prices/failures.
func (h *Handler) HandleListFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := h.service.ActiveFailures(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list fetch failures")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	h.writeData(w, failures)
}

func (h *Handler) writeFetchError(w http.ResponseWriter, ticker string, err error) {
	status := http.StatusBadGateway
	var blocked *prices.BlockedError
	if errors.As(err, &blocked) {
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", blocked.RetryAfter.UTC().Format(http.TimeFormat))
	}

	h.log.Warn().Err(err).Str("ticker", ticker).Msg("Price fetch failed")
	h.writeJSON(w, status, map[string]interface{}{"error": err.Error()})
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
