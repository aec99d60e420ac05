package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kazuya8222/embld-revenue/internal/api/handlers"
	"github.com/kazuya8222/embld-revenue/internal/auth"
	"github.com/kazuya8222/embld-revenue/internal/config"
	"github.com/kazuya8222/embld-revenue/internal/metrics"
	"github.com/kazuya8222/embld-revenue/internal/middleware"
	"github.com/kazuya8222/embld-revenue/internal/payments"
	"github.com/kazuya8222/embld-revenue/internal/services"
)

type RouterDeps struct {
	Cfg       config.Config
	Log       *zap.Logger
	Tokens    *auth.TokenVerifier
	Webhooks  *services.WebhookService
	Analytics *services.AnalyticsService
	Payouts   *services.PayoutService
	Earnings  *services.EarningsService
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover(d.Log), middleware.HTTPMetrics, middleware.AccessLog(d.Log))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	// Stripe deliveries are signed and must never be throttled away.
	revenue := payments.NewVerifier(d.Cfg.RevenueWebhookSecret())
	connect := payments.NewVerifier(d.Cfg.StripeConnectWebhookSecret)
	r.Route("/api/stripe", func(r chi.Router) {
		r.Method(http.MethodPost, "/revenue-webhook", handlers.NewWebhookHandler(revenue, d.Webhooks.HandleRevenueEvent, d.Log))
		r.Method(http.MethodPost, "/connect-webhook", handlers.NewWebhookHandler(connect, d.Webhooks.HandleConnectEvent, d.Log))
	})

	analytics := handlers.NewAnalyticsHandler(d.Analytics, d.Log)
	earnings := handlers.NewEarningsHandler(d.Earnings, d.Log)
	admin := handlers.NewAdminHandler(d.Payouts, d.Log)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
		}))
		r.Use(middleware.RateLimit(d.Cfg.RateRPS), middleware.Auth(d.Tokens))

		r.Get("/revenue/analytics", analytics.Revenue)
		r.Get("/revenue/payouts", earnings.Payouts)
		r.Get("/revenue/balance", earnings.Balance)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(d.Cfg.AdminEmail))
			r.Get("/payouts", admin.ListPayouts)
			r.Post("/payouts/retry-failed", admin.RetryFailed)
			r.Post("/payouts/{id}/retry", admin.RetryPayout)
			r.Get("/transfers", earnings.Recipients)
			r.Post("/transfers", admin.Transfer)
		})
	})

	return r
}
