// Package api assembles the HTTP router: middleware, CORS, rate limiting,
// API docs, and the route table.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/albapepper/medminder/internal/api/handler"
	"github.com/albapepper/medminder/internal/auth"
	"github.com/albapepper/medminder/internal/config"
)

//go:embed openapi.json
var openAPISpec []byte

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(h *handler.Handler, authn *auth.Authenticator, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS: the web client sends the session cookie cross-origin.
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Authorization", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag", "Retry-After"},
		AllowCredentials: true,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	// Swagger UI over the embedded OpenAPI document.
	r.Get("/docs/doc.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(openAPISpec)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
		httpSwagger.DocExpansion("none"),
	))

	// Sessions
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})

	// API v1 routes, all behind a session
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authn.Middleware)

		// Medications
		r.Route("/medications", func(r chi.Router) {
			r.Get("/", h.ListMedications)
			r.Post("/", h.CreateMedication)
			r.Get("/low-stock", h.LowStock)
			r.Get("/{id}", h.GetMedication)
			r.Patch("/{id}", h.UpdateMedication)
			r.Delete("/{id}", h.DeleteMedication)
			r.Post("/{id}/refill", h.RefillMedication)
		})

		// Dose logs
		r.Route("/logs", func(r chi.Router) {
			r.Get("/", h.ListLogs)
			r.Post("/", h.CreateLog)
			r.Get("/today", h.TodayLogs)
		})

		// Family contacts
		r.Route("/family", func(r chi.Router) {
			r.Get("/", h.ListContacts)
			r.Post("/", h.CreateContact)
			r.Patch("/{id}", h.UpdateContact)
			r.Delete("/{id}", h.DeleteContact)
		})

		// Notifications
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Post("/check", h.CheckLowStock)
			r.Post("/{id}/read", h.MarkNotificationRead)
		})

		// SMTP settings
		r.Route("/email-settings", func(r chi.Router) {
			r.Get("/", h.GetEmailSettings)
			r.Put("/", h.SaveEmailSettings)
			r.Delete("/", h.DeleteEmailSettings)
			r.Post("/test", h.TestEmailConfig)
			r.Post("/test-saved", h.TestSavedEmail)
		})

		// Reminders
		r.Get("/reminders/due", h.DueReminders)

		// Voice input
		r.Post("/voice/transcribe", h.Transcribe)
		r.Post("/voice/parse", h.ParseMedication)
	})

	return r
}
