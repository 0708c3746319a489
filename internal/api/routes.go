package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, health *HealthChecker, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Post("/import", h.ImportSession)
			r.Post("/generate", h.GenerateSessionID)
			r.Get("/{sid}", h.GetSession)
			r.Delete("/{sid}", h.DeleteSession)
		})

		r.Route("/analytics", func(r chi.Router) {
			// Static segments first so they never match {sid}.
			r.Get("/reports", h.ListReports)
			r.Get("/queue", h.QueueStatus)

			r.Post("/{sid}/compute", h.Compute)
			r.Get("/{sid}/jobs", h.JobStatus)
			r.Get("/{sid}/raw-shipping", h.RawShipping)
			r.Get("/{sid}/{report}", h.Report)
		})
	})

	return r
}
