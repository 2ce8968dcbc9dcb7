package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"storylock/internal/app"
	"storylock/internal/config"
	"storylock/internal/logger"
	"storylock/internal/store"
)

func main() {
	verify := flag.Bool("verify", true, "open the engine backends after migrating and ping them")
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding, OutputPath: cfg.LogOutput})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, cfg, log, *verify); err != nil {
		log.Error("migrate failed", zap.Error(err))
		stop()
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger, verify bool) error {
	if cfg.LedgerBackend == config.LedgerMemory {
		log.Info("memory backend selected, nothing to migrate")
	} else {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := store.ApplyMigrations(ctx, db, store.Migrations()); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		log.Info("migrations applied")
	}

	if !verify {
		return nil
	}
	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer func() { _ = rt.Close() }()
	if err := rt.Ping(ctx); err != nil {
		return fmt.Errorf("ping backends: %w", err)
	}
	log.Info("engine backends reachable", zap.String("ledger_backend", cfg.LedgerBackend))
	return nil
}
