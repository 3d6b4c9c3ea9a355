package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ananyabot/ananya/internal/telegram"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Post(telegram.WebhookPath, apiHandler.WebhookHandler)
	if apiHandler.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", apiHandler.deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", apiHandler.HealthHandler)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/status", apiHandler.GetStatusHandler)
			r.Post("/status", apiHandler.SetStatusHandler)
			r.Get("/stats", apiHandler.StatsHandler)
			r.Get("/users/{id}", apiHandler.GetUserHandler)

			r.Get("/prompts", apiHandler.ListPromptsHandler)
			r.Post("/prompts", apiHandler.SavePromptHandler)
			r.Delete("/prompts/{name}", apiHandler.DeletePromptHandler)

			r.Post("/webhook", apiHandler.SetWebhookHandler)
			r.Delete("/webhook", apiHandler.DeleteWebhookHandler)
		})
	})

	return r
}
