package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Get("/positions/{ticker}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetPositionRisk(w, r, chi.URLParam(r, "ticker"))
		})

		r.Route("/portfolios/{id}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetPortfolioRisk(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/correlation", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetCorrelationMatrix(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetRiskHistory(w, r, chi.URLParam(r, "id"))
			})
		})
	})
}
