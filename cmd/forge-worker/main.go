package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"forge/internal/config"
	"forge/internal/game"
	"forge/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("store open failed", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	svc := game.NewService(st, logger)

	if cfg.RunOnce {
		if _, err := svc.PruneIdempotencyKeys(ctx, cfg.IdempotencyTTL); err != nil {
			logger.Error("prune failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.Every)
	defer ticker.Stop()

	logger.Info("worker started", "every", cfg.Every.String(), "idempotency_ttl", cfg.IdempotencyTTL.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			n, err := svc.PruneIdempotencyKeys(ctx, cfg.IdempotencyTTL)
			if err != nil {
				logger.Error("prune failed", "err", err)
				continue
			}
			logger.Info("maintenance pass complete", "pruned", n)
		}
	}
}
