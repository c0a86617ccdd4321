package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wayfarerhq/tripbook/internal/api/router"
	"github.com/wayfarerhq/tripbook/internal/app/bootstrap"
	"github.com/wayfarerhq/tripbook/internal/availability"
	"github.com/wayfarerhq/tripbook/internal/booking"
	appconfig "github.com/wayfarerhq/tripbook/internal/config"
	"github.com/wayfarerhq/tripbook/internal/events"
	"github.com/wayfarerhq/tripbook/internal/gcal"
	"github.com/wayfarerhq/tripbook/internal/http/handlers"
	"github.com/wayfarerhq/tripbook/internal/notify"
	"github.com/wayfarerhq/tripbook/internal/observability/metrics"
	"github.com/wayfarerhq/tripbook/internal/payments"
	"github.com/wayfarerhq/tripbook/internal/plans"
	"github.com/wayfarerhq/tripbook/internal/specialists"
	"github.com/wayfarerhq/tripbook/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting tripbook API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := bootstrap.BuildDBPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	// Repositories
	planRepo := plans.NewRepository(pool)
	specialistRepo := specialists.NewRepository(pool)
	processedStore := events.NewProcessedStore(pool)

	// Calendar and availability
	rdb := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	googleClient := gcal.NewGoogleClient(cfg.GoogleClientID, cfg.GoogleClientSecret, logger.Component("gcal"))
	calculator := availability.NewCalculator(googleClient, cfg.MinLeadDays, logger.Component("availability"))
	if rdb != nil {
		calculator = calculator.WithCache(availability.NewBusyCache(rdb, cfg.BusyCacheTTL, logger.Component("availability")))
	}

	// Notifications
	emailSender := bootstrap.BuildEmailSender(ctx, cfg, logger.Component("notify"))
	dispatcher := notify.NewDispatcher(emailSender, logger.Component("notify"))

	// Booking
	bookingSvc := booking.NewService(planRepo, specialistRepo, googleClient, dispatcher, bookingMetrics, logger.Component("booking"))

	// Payments
	stripeClient := payments.NewStripeClient(cfg.StripeSecretKey, logger.Component("payments"))
	checkoutSvc := payments.NewCheckoutService(planRepo, stripeClient, cfg.PriceTable(), cfg.StripeReturnURL, logger.Component("payments"))
	outboxStore := events.NewOutboxStore(pool)
	reconciler := payments.NewReconciler(planRepo, stripeClient, dispatcher, bookingMetrics, logger.Component("payments")).
		WithOutbox(outboxStore)
	if rdb != nil {
		deliverer := events.NewDeliverer(outboxStore, events.NewRedisPublisher(rdb, ""), logger.Component("events"))
		go deliverer.Start(ctx)
	}
	documentSvc := payments.NewDocumentService(stripeClient, logger.Component("payments"))
	stripeWebhook := payments.NewStripeWebhookHandler(cfg.StripeWebhookSecret, reconciler, processedStore, logger.Component("payments"))

	r := router.New(&router.Config{
		Logger:             logger,
		Health:             handlers.NewHealthHandler(),
		Availability:       handlers.NewAvailabilityHandler(specialistRepo, calculator, cfg.SlotDurationMinutes, logger.Component("http")),
		Plans:              handlers.NewPlansHandler(bookingSvc, planRepo, specialistRepo, cfg.PriceTable(), logger.Component("http")),
		Payments:           handlers.NewPaymentsHandler(checkoutSvc, reconciler, documentSvc, planRepo, logger.Component("http")),
		AdminPlans:         handlers.NewAdminPlansHandler(bookingSvc, logger.Component("http")),
		StripeWebhook:      stripeWebhook,
		MetricsHandler:     promhttp.Handler(),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
