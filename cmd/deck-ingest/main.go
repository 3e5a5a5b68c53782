// Package main is the entry point for the sentrydeck ingest pipeline.
// It runs one ingest run over the configured source files and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sentrydeck/internal/config"
	"sentrydeck/internal/etl"
	"sentrydeck/internal/notify"
	"sentrydeck/internal/source"
	"sentrydeck/internal/storage"
)

var version = "dev"

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("deck-ingest %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		"sources", len(cfg.Sources.Manifest),
		"batch_size", cfg.Ingest.BatchSize,
		"s3", cfg.UseS3(),
		"notify", cfg.Notify.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	logger.Info("running database migrations")
	if err := storage.NewMigrator(store).Run(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	var fetcher source.Fetcher
	if cfg.UseS3() {
		fetcher, err = source.NewS3Fetcher(ctx, cfg.Sources.S3, logger)
		if err != nil {
			logger.Error("failed to initialize s3 fetcher", "error", err)
			os.Exit(1)
		}
	} else {
		fetcher = source.NewDirFetcher(cfg.Sources.Dir)
	}

	var notifier etl.Notifier
	if cfg.Notify.Enabled {
		kafkaNotifier, err := notify.NewKafkaNotifier(cfg.Notify, logger)
		if err != nil {
			logger.Error("failed to initialize notifier", "error", err)
			os.Exit(1)
		}
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	runner := etl.NewRunner(store, fetcher, notifier, cfg.Ingest, logger)
	report, err := runner.Run(ctx, cfg.Sources.Manifest)
	if err != nil {
		logger.Error("ingest run failed",
			"run_id", report.RunID,
			"error", err,
		)
		os.Exit(1)
	}

	if _, err := store.PurgeRuns(ctx, cfg.Retention); err != nil {
		logger.Warn("run retention purge failed", "error", err)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
