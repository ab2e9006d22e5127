package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", h.CreateSession)
		r.Get("/support/failed-analyses", h.FailedAnalyses)
		r.Get("/support/reports/{intentId}", func(w http.ResponseWriter, r *http.Request) {
			h.ArchivedReport(w, r, chi.URLParam(r, "intentId"))
		})
		r.Route("/sessions/{sessionId}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.GetSession(w, r, chi.URLParam(r, "sessionId"))
			})
			r.Post("/document", func(w http.ResponseWriter, r *http.Request) {
				h.UploadDocument(w, r, chi.URLParam(r, "sessionId"))
			})
			r.Post("/payment", func(w http.ResponseWriter, r *http.Request) {
				h.ConfirmPayment(w, r, chi.URLParam(r, "sessionId"))
			})
			r.Post("/analysis/retry", func(w http.ResponseWriter, r *http.Request) {
				h.RetryAnalysis(w, r, chi.URLParam(r, "sessionId"))
			})
			r.Post("/reset", func(w http.ResponseWriter, r *http.Request) {
				h.Reset(w, r, chi.URLParam(r, "sessionId"))
			})
			r.Get("/transitions", func(w http.ResponseWriter, r *http.Request) {
				h.ListTransitions(w, r, chi.URLParam(r, "sessionId"))
			})
		})
	})

	return r
}
