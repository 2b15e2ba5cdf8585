package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"koperasi/internal/auth"
	"koperasi/internal/backend"
	"koperasi/internal/cli"
	"koperasi/internal/config"
	"koperasi/internal/dashboard"
	apphttp "koperasi/internal/http"
	applog "koperasi/internal/log"
	"koperasi/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadConfig((*config.Config).ValidateServer)
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)

	loc := cfg.Location()
	localNow := func() time.Time { return time.Now().In(loc) }

	amqpClient, err := cli.OpenAMQP(cfg, logger.Logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	var pub backend.ChangePublisher
	if amqpClient != nil {
		pub = amqpClient
	} else {
		logger.Info("Change feed disabled - no AMQP_URL provided")
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	ledgerBackend, err := cli.OpenLedger(startCtx, cfg, pub, logger.WithComponent(applog.ComponentBackend).Logger)
	cancelStart()
	if err != nil {
		logger.Error("Failed to open ledger", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	store := ledgerBackend.Store

	bookkeeper := services.NewBookkeeper(store,
		services.WithLogger(logger.WithComponent(applog.ComponentLedger).Logger),
		services.WithSingleActiveLoan(cfg.SingleActiveLoan),
	)

	view, err := services.NewLedgerView(context.Background(), store, logger.WithComponent(applog.ComponentLedger).Logger)
	if err != nil {
		logger.Error("Failed to start ledger view", "error", err)
		os.Exit(1)
	}

	aggregator := dashboard.NewAggregator(store, localNow, logger.WithComponent(applog.ComponentDashboard).Logger)
	if err := aggregator.Start(context.Background()); err != nil {
		logger.Error("Failed to start dashboard aggregator", "error", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.Config{
		Secret:            cfg.AuthJWTSecret,
		StaffEmail:        cfg.AuthStaffEmail,
		StaffPasswordHash: cfg.AuthStaffPasswordHash,
		TokenTTL:          cfg.AuthTokenTTL,
	})
	if err != nil {
		logger.Error("Failed to initialize auth", "error", err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:              store,
		Bookkeeper:         bookkeeper,
		Directory:          services.NewCustomerDirectory(store, localNow),
		Ledger:             view,
		Dashboard:          aggregator,
		Auth:               authService,
		Logger:             logger.WithComponent(applog.ComponentHTTP),
		Location:           loc,
		Now:                localNow,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		view.Close()
		aggregator.Close()
		if err := ledgerBackend.Cleanup(); err != nil {
			logger.Error("Failed to close ledger", "error", err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("Failed to close AMQP client", "error", err)
			}
		}
	})

	logger.Info("Starting koperasi server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", loc.String(),
		"single_active_loan", cfg.SingleActiveLoan)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
