package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tycoon/internal/config"
	"tycoon/internal/engine"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadGameFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	e, err := engine.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open session failed", "err", err)
		os.Exit(1)
	}
	defer e.Close()

	if cfg.RunOnce {
		if err := e.RunOnce(ctx); err != nil {
			logger.Error("run-once failed", "err", err)
			e.Close()
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	logger.Info("worker started",
		"save_key", cfg.SaveKey,
		"tick_every", cfg.TickEvery.String(),
		"autosave_every", cfg.AutosaveEvery.String(),
		"volatility", cfg.Volatility,
	)
	if err := e.Run(ctx); err != nil {
		logger.Error("worker failed", "err", err)
		e.Close()
		os.Exit(1)
	}
	logger.Info("worker shutdown")
}
