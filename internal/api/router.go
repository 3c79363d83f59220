package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dallylee/pt-authority-hub-landing/internal/auth"
)

// Routes mounts every endpoint. Console routes under /api/pt go through mw.
func (h *Handler) Routes(mw auth.Middleware) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(h.log))
	r.Use(cors(h.cfg.CORSAllowedOrigin))

	r.Get("/healthz", healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(15 * time.Second))

			r.Post("/leads/ingest", h.ingestLead)
			r.Post("/lead", h.ingestLead)
			r.Get("/spots", h.spotsRemaining)
			r.Get("/reviews", h.reviewSummary)

			r.Post("/auth/request-link", h.requestLink)
			r.Get("/auth/consume", h.consumeLink)
			r.Post("/auth/logout", h.logout)
		})

		r.Post("/upload", h.upload)
		r.Get("/download", h.download)

		r.Route("/pt", func(r chi.Router) {
			r.Use(mw.Wrap)

			r.With(requireScope(auth.ScopeLeadsRead)).Get("/leads", h.listLeads)
			r.With(requireScope(auth.ScopeLeadsRead)).Get("/leads/{id}", h.getLead)
			r.With(requireScope(auth.ScopeLeadsWrite)).Patch("/leads/{id}", h.updateLead)
			r.With(requireScope(auth.ScopeLeadsWrite)).Post("/leads/{id}/send-analysis", h.sendAnalysis)
		})
	})

	return r
}
