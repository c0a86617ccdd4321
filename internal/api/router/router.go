// Package router wires the HTTP surface: public booking routes, the Stripe
// webhook, metrics, and the JWT-guarded admin group.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wayfarerhq/tripbook/internal/http/handlers"
	httpmiddleware "github.com/wayfarerhq/tripbook/internal/http/middleware"
	"github.com/wayfarerhq/tripbook/internal/payments"
	"github.com/wayfarerhq/tripbook/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Health             *handlers.HealthHandler
	Availability       *handlers.AvailabilityHandler
	Plans              *handlers.PlansHandler
	Payments           *handlers.PaymentsHandler
	AdminPlans         *handlers.AdminPlansHandler
	StripeWebhook      *payments.StripeWebhookHandler
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	CORSAllowedOrigins []string
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Get("/health", cfg.Health.Check)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}
	r.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)

	r.Get("/availability", cfg.Availability.Query)

	r.Route("/plans", func(r chi.Router) {
		r.Post("/", cfg.Plans.Create)
		r.Route("/{planID}", func(r chi.Router) {
			r.Get("/", cfg.Plans.Get)
			r.Post("/slot", cfg.Plans.SelectSlot)
			r.Put("/contact", cfg.Plans.UpdateContact)
			r.Put("/tier", cfg.Plans.UpdateTier)
			r.Post("/confirm", cfg.Plans.Confirm)
			r.Post("/checkout", cfg.Payments.CreateCheckout)
			r.Get("/payment", cfg.Payments.PaymentStatus)
			r.Get("/calendar.ics", cfg.Plans.CalendarICS)
			r.Get("/document", cfg.Payments.Document)
		})
	})

	// Admin endpoints (JWT-guarded)
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		admin.Post("/plans/{planID}/cancel", cfg.AdminPlans.Cancel)
	})

	return r
}
