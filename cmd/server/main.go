// Package main is the entry point of the payout ledger service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"payout-ledger/internal/api"
	"payout-ledger/internal/api/middleware"
	"payout-ledger/internal/bot"
	"payout-ledger/internal/config"
	"payout-ledger/internal/events"
	"payout-ledger/internal/ledger"
	"payout-ledger/internal/metrics"
	"payout-ledger/internal/pkg/db"
	"payout-ledger/internal/scheduler"
	"payout-ledger/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.Log)

	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := db.NewPool(ctx, &cfg.Database, cfg.Ledger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := db.Migrate(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	rates, err := service.ParseReferralRates(cfg.Referral.Rates)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid referral rates")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	publisher := events.NewPublisher(cfg.Kafka)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}()

	l := ledger.New(dbPool)
	referralService := service.NewReferralService(dbPool, l, rates, publisher, m)
	purchaseService := service.NewPurchaseService(dbPool, l, referralService, publisher, m)
	payoutService := service.NewPayoutService(dbPool, l, cfg.Payout.BatchLimit, publisher, m)
	accountService := service.NewAccountService(dbPool, l, payoutService)
	adminService := service.NewAdminService(dbPool, l, payoutService, m)

	router := api.SetupRouter(api.Deps{
		Accounts:  accountService,
		Purchases: purchaseService,
		Admin:     adminService,
		Auth:      middleware.NewAuthenticator(cfg.Auth),
		Limiter:   middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		Metrics:   m,
		Gatherer:  registry,
		Health:    dbPool.HealthCheck,
		Mode:      cfg.Server.Mode,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server is starting...")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(payoutService, cfg.Scheduler)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create payout scheduler")
		}
		g.Go(func() error {
			return sched.Start(gctx)
		})
	} else {
		log.Info().Msg("Payout scheduler disabled")
	}

	if cfg.Telegram.Token != "" {
		console, err := bot.New(cfg, adminService)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create admin console bot")
		}
		g.Go(func() error {
			console.Start()
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			console.Stop()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Service stopped with error")
		return
	}
	log.Info().Msg("Service stopped gracefully")
}

func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
