package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kazuya8222/embld-revenue/internal/api"
	"github.com/kazuya8222/embld-revenue/internal/auth"
	"github.com/kazuya8222/embld-revenue/internal/config"
	"github.com/kazuya8222/embld-revenue/internal/db"
	"github.com/kazuya8222/embld-revenue/internal/logger"
	"github.com/kazuya8222/embld-revenue/internal/metrics"
	"github.com/kazuya8222/embld-revenue/internal/payments"
	"github.com/kazuya8222/embld-revenue/internal/repository/postgres"
	"github.com/kazuya8222/embld-revenue/internal/services"
	"github.com/kazuya8222/embld-revenue/internal/worker"
)

func main() {
	app := &cli.App{
		Name:  "embld-revenue",
		Usage: "Stripe revenue reconciliation and payout service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env", Aliases: []string{"e"}, Usage: "Environment (dev, prod)"},
			&cli.StringFlag{Name: "database-url", Aliases: []string{"d"}, Usage: "Postgres connection URL"},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "port", Aliases: []string{"p"}, Usage: "HTTP port"},
				},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and exit",
				Action: migrate,
			},
			{
				Name:  "token",
				Usage: "Mint a short-lived access token for local testing",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user-id", Required: true},
					&cli.StringFlag{Name: "email"},
					&cli.DurationFlag{Name: "ttl", Value: time.Hour},
				},
				Action: token,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads env and .env, then applies flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("env") {
		cfg.Env = c.String("env")
	}
	if c.IsSet("database-url") {
		cfg.DatabaseURL = c.String("database-url")
	}
	if c.IsSet("port") {
		cfg.HTTPPort = c.String("port")
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if cfg.Migrate {
		if err := db.RunMigrations(ctx, pool, log); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.StripeConnectWebhookSecret == "" {
		log.Warn("STRIPE_CONNECT_WEBHOOK_SECRET not set; connect webhook will reject every delivery")
	}
	if cfg.AdminEmail == "" {
		log.Warn("ADMIN_EMAIL not set; admin routes are disabled")
	}

	repos := postgres.NewRepositories(pool)
	stripeClient := payments.NewClient(cfg.StripeSecretKey)
	wp := worker.NewPool(cfg.WorkerCount, log.Named("worker"))

	initiator := services.NewTransferInitiator(repos.Users, repos.Payouts, stripeClient, log.Named("transfers"))
	ledger := services.NewLedgerService(repos.Transactions, repos.Payouts, repos.Analytics, initiator, log.Named("ledger"))
	accounts := services.NewAccountService(repos.Users, stripeClient, log.Named("accounts"))
	webhooks := services.NewWebhookService(ledger, accounts, repos.Payouts, repos.AuditLogs, log.Named("webhook"))
	payouts := services.NewPayoutService(repos.Payouts, repos.Transactions, repos.Users, stripeClient, initiator, wp, log.Named("payouts"))
	analytics := services.NewAnalyticsService(repos.Analytics)
	earnings := services.NewEarningsService(repos.Payouts, repos.Analytics, repos.Users, stripeClient, log.Named("earnings"))

	metrics.Init()
	r := api.NewRouter(api.RouterDeps{
		Cfg:       cfg,
		Log:       log,
		Tokens:    auth.NewTokenVerifier(cfg.SupabaseJWTSecret),
		Webhooks:  webhooks,
		Analytics: analytics,
		Payouts:   payouts,
		Earnings:  earnings,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("server: %w", err)
		}
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	// Queued payout retries share the same deadline; unfinished ones are
	// left pending or failed for the next retry.
	if err := wp.Shutdown(shutdownCtx); err != nil {
		log.Warn("worker pool did not drain", zap.Error(err))
	}
	return serveErr
}

func migrate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	pool, err := db.NewPool(c.Context, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()
	return db.RunMigrations(c.Context, pool, log)
}

func token(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.SupabaseJWTSecret == "" {
		return errors.New("SUPABASE_JWT_SECRET is required")
	}
	tok, err := auth.NewTokenVerifier(cfg.SupabaseJWTSecret).Sign(c.String("user-id"), c.String("email"), c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
