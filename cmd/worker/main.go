package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"avatarstudio/internal/adapter/repo"
	"avatarstudio/internal/infra"
	"avatarstudio/internal/pipeline"
)

// The worker reconciles tasks whose executor died: pending rows idle for
// longer than STALE_PENDING_AFTER_SECONDS are failed so users can retrigger.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	sweeper := pipeline.NewSweeper(
		repo.NewImageRepository(runner),
		repo.NewCollectionRepository(runner),
		cfg.StalePendingAfter,
		logger,
	)

	logger.Info().
		Dur("interval", cfg.SweepInterval).
		Dur("stale_after", cfg.StalePendingAfter).
		Msg("worker started")
	if err := sweeper.Run(ctx, cfg.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("worker stopped")
}
