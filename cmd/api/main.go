package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/solpumpai/backend/internal/admin"
	"github.com/solpumpai/backend/internal/anthropic"
	"github.com/solpumpai/backend/internal/auth"
	"github.com/solpumpai/backend/internal/config"
	"github.com/solpumpai/backend/internal/licensing"
	"github.com/solpumpai/backend/internal/metering"
	"github.com/solpumpai/backend/internal/payments"
	"github.com/solpumpai/backend/internal/repository"
	"github.com/solpumpai/backend/internal/rollup"
	"github.com/solpumpai/backend/internal/router"
	"github.com/solpumpai/backend/internal/solana"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database")

	if err := repository.InitSchema(ctx, pool); err != nil {
		slog.Error("Schema init failed", "error", err)
		os.Exit(1)
	}

	// River migrations (rollup job queue)
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}

	// Repositories
	licenseRepo := repository.NewLicenseRepo(pool)
	usageRepo := repository.NewUsageRepo(pool)
	verificationRepo := repository.NewVerificationRepo(pool)
	paymentRepo := repository.NewPaymentRepo(pool)

	// External collaborators
	chain := solana.NewClient(cfg.SolanaRPCURL)
	ai := anthropic.NewClient(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey)

	// Core services
	licSvc := licensing.NewService(licenseRepo, verificationRepo, chain, licensing.Config{
		TokenMint:        cfg.TokenMint,
		MinimumTokens:    cfg.MinimumTokens,
		ReverifyInterval: cfg.ReverifyInterval,
		StartingGrant:    cfg.StartingGrant,
	}, logger)

	gate := metering.NewGate(licenseRepo, usageRepo, ai, metering.DefaultPricing(), logger)

	creditSvc := payments.NewService(licSvc, licenseRepo, paymentRepo, chain, payments.Config{
		BurnWallet: cfg.BurnWallet,
		BurnWindow: cfg.BurnWindow,
	}, logger)

	// Usage rollup worker
	workers := river.NewWorkers()
	river.AddWorker(workers, rollup.NewWorker(usageRepo, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(time.Hour),
				func() (river.JobArgs, *river.InsertOpts) { return rollup.Args{}, nil },
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	// Admin surface
	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)
	authHandler := auth.NewHandler(authSvc, logger)
	adminHandler := admin.NewHandler(authSvc, licenseRepo, verificationRepo, usageRepo, paymentRepo, logger)
	adminRouter := router.New(authHandler, adminHandler)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", adminRouter)
	RegisterLicenseRoutes(mux, licSvc, gate, creditSvc, usageRepo, cfg, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-License-Key"},
		AllowCredentials: false,
	}).Handler(mux)

	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
