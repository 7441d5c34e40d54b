package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/Busskov/study-clock/internal/identity"
	"github.com/Busskov/study-clock/internal/server"
	"github.com/Busskov/study-clock/internal/store"
	"github.com/Busskov/study-clock/pkg/config"
	"github.com/Busskov/study-clock/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(logger)

	messageStore, err := store.NewBadgerStore(cfg.Store.Path, logger)
	if err != nil {
		logger.Error("Failed to open message store", slog.Any("error", err))
		os.Exit(1)
	}
	defer messageStore.Close()

	provider := identity.NewTokenProvider(logger, cfg.Server.Auth.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := server.NewApp(logger, ctx, cfg, messageStore, provider)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
