package main

import (
	"os"

	"bookkeeper/internal/amqp"
	"bookkeeper/internal/backend"
	"bookkeeper/internal/cli"
	"bookkeeper/internal/log"
	gsheet "bookkeeper/internal/sheets/google"
	"bookkeeper/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting ledger-sync-worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateSheets(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err, log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	// The worker reads the store directly; it never publishes events itself.
	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	backendConfig.AMQPURL = ""
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	defer result.Cleanup()

	mirror, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer consumer.Close()

	ledgerSync := worker.NewLedgerSync(result.Store, mirror, cfg.SyncInterval, logger)
	if err := ledgerSync.Run(ctx, consumer); err != nil {
		logger.Error("Ledger sync stopped", log.FieldError, err)
		os.Exit(1)
	}

	stats := ledgerSync.Stats()
	logger.Info("Worker shutdown complete",
		log.FieldOperation, log.OpShutdown,
		"events_processed", stats.EventsProcessed,
		"events_failed", stats.EventsFailed,
		"resyncs", stats.Resyncs)
}
