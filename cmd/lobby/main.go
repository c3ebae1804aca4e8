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

	logger := cfg.Log.NewLogger().With(slog.String("process", "lobby"))
	slog.SetDefault(logger)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := factory.NewLobby(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create lobby", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("lobby starting",
		slog.String("addr", app.Server.Addr()),
		slog.Int("game_port_min", cfg.Game.PortMin),
		slog.Int("game_port_max", cfg.Game.PortMax),
		slog.Bool("status_api", app.API != nil))

	if err := app.Run(ctx); err != nil {
		logger.Error("lobby error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("lobby stopped")
}
