package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"sevirun/internal/config"
	"sevirun/internal/db"
	"sevirun/internal/logging"
	"sevirun/internal/migrate"
	"sevirun/internal/seed"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("seed")

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString, logger)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	if err := migrate.Apply(ctx, pool); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}
	if err := seed.Apply(ctx, pool, logger); err != nil {
		logger.Fatal("seed apply", zap.Error(err))
	}
}
