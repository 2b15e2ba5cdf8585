package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"koperasi/internal/cli"
	"koperasi/internal/config"
	applog "koperasi/internal/log"
	"koperasi/internal/notify"
	"koperasi/internal/sheets"
	gsheet "koperasi/internal/sheets/google"
	memsheets "koperasi/internal/sheets/memory"
	"koperasi/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadConfig((*config.Config).ValidateWorker)
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)

	logger.Info("Starting koperasi-worker")

	loc := cfg.Location()
	localNow := func() time.Time { return time.Now().In(loc) }

	// The worker only reads the ledger, so it opens it without a publisher.
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	ledgerBackend, err := cli.OpenLedger(startCtx, cfg, nil, logger.WithComponent(applog.ComponentBackend).Logger)
	cancelStart()
	if err != nil {
		logger.Error("Failed to open ledger", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer ledgerBackend.Cleanup()

	var tabs sheets.TabWriter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
			TabPrefix:       cfg.GoogleTabPrefix,
		}, logger.WithComponent(applog.ComponentSheets).Logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		tabs = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		tabs = memsheets.New()
		logger.Info("Google Sheets disabled - mirroring into memory only")
	}

	amqpClient, err := cli.OpenAMQP(cfg, logger.WithComponent(applog.ComponentAMQP).Logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(ledgerBackend.Store, tabs, localNow, logger.WithComponent(applog.ComponentSheets).Logger)

	var reporter *worker.DailyReporter
	if cfg.ReportEnabled() {
		mailer := notify.NewMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			To:       cfg.ReportRecipients,
		})
		reporter, err = worker.NewDailyReporter(ledgerBackend.Store, mailer, cfg.ReportTime, localNow, logger.Logger)
		if err != nil {
			logger.Error("Failed to schedule daily report", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("Daily report disabled - no REPORT_RECIPIENTS provided")
	}

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, nil)

	// Catch up on anything committed while the worker was down.
	logger.Info("Performing startup sync")
	if err := syncWorker.SyncAll(ctx); err != nil {
		logger.Error("Startup sync failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeLedgerChanged(gctx, syncWorker.HandleLedgerChanged)
	})
	g.Go(func() error {
		return syncWorker.PeriodicSync(gctx, cfg.SyncInterval)
	})
	if reporter != nil {
		g.Go(func() error {
			return reporter.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("Worker stopped", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
