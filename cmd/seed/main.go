package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Karunakar20/dino-ventures/internal/config"
	"github.com/Karunakar20/dino-ventures/internal/db"
	"github.com/Karunakar20/dino-ventures/internal/ledger"
	"github.com/Karunakar20/dino-ventures/internal/observability"
	"github.com/Karunakar20/dino-ventures/internal/repository"
	"github.com/Karunakar20/dino-ventures/internal/seed"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	repo := repository.NewRepository(pool).WithLockTimeout(cfg.LockTimeout)
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	engine := ledger.NewEngine(repo, ledger.Config{DuplicatePolicy: cfg.DuplicatePolicy})
	return seed.Run(ctx, repo, engine)
}
