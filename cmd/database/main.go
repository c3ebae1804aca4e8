package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcoot/gamelobby-go/internal/config"
	"github.com/mcoot/gamelobby-go/internal/factory"
)

func main() {
	cfg, err := config.Load(os.Getenv("GAMELOBBY_CONFIG"))
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger().With(slog.String("process", "database"))
	slog.SetDefault(logger)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := factory.NewDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("database starting",
		slog.String("addr", app.Server.Addr()),
		slog.String("storage", cfg.Storage.Type),
		slog.String("blob_store", cfg.Marketplace.BlobStore))

	if err := app.Run(ctx); err != nil {
		logger.Error("database error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("database stopped")
}
