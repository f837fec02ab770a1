package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the HTTP router.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// Server identity header - distinguishes real server from test doubles
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "outreach-engine-v1.0")
			next.ServeHTTP(w, req)
		})
	})

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://techaura.com", "http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/followups", func(r chi.Router) {
			r.Get("/stats", h.GetStats)
			r.Get("/pending", h.GetPending)
			r.Post("/register", h.RegisterQuestion)
			r.Post("/response", h.UserResponse)
			r.Post("/cancel", h.CancelFollowUps)
			r.Post("/complete", h.MarkComplete)
		})
		r.Route("/gates", func(r chi.Router) {
			r.Post("/evaluate", h.EvaluateGate)
			r.Get("/suppression/{userHash}", h.CheckSuppression)
		})
	})

	return r
}
