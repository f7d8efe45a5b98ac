package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"forge/internal/api"
	"forge/internal/auth"
	"forge/internal/broadcast"
	"forge/internal/config"
	"forge/internal/game"
	"forge/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
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

	codes, err := auth.ParseAccessCodes(cfg.AccessCodes)
	if err != nil {
		logger.Error("access codes invalid", "err", err)
		os.Exit(1)
	}

	hub := broadcast.NewHub(logger)
	sinks := broadcast.Fanout{hub}
	if cfg.DiscordWebhookID != "" {
		discord, err := broadcast.NewDiscordSink(cfg.DiscordWebhookID, cfg.DiscordWebhookToken)
		if err != nil {
			logger.Error("discord sink failed", "err", err)
			os.Exit(1)
		}
		sinks = append(sinks, discord)
	}
	if cfg.TelegramToken != "" {
		telegram, err := broadcast.NewTelegramSink(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			logger.Error("telegram sink failed", "err", err)
			os.Exit(1)
		}
		sinks = append(sinks, telegram)
	}

	authClient := auth.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
	gameSvc := game.NewService(st, logger, game.WithAnnouncer(sinks))

	server := api.New(logger, authClient, codes, gameSvc, http.HandlerFunc(hub.ServeWS))
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("forge api listening", "addr", cfg.Addr, "store", cfg.Store.Driver, "access_codes", codes.Len(), "sinks", len(sinks))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
