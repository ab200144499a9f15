package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/qualtrack/qualtrack/server/internal/api"
	"github.com/qualtrack/qualtrack/server/internal/auth"
	"github.com/qualtrack/qualtrack/server/internal/catalog"
	"github.com/qualtrack/qualtrack/server/internal/config"
	"github.com/qualtrack/qualtrack/server/internal/engine"
	"github.com/qualtrack/qualtrack/server/internal/notify"
	"github.com/qualtrack/qualtrack/server/internal/store"
	"github.com/qualtrack/qualtrack/server/internal/stream"
	"github.com/qualtrack/qualtrack/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("qualtrack-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"database", cfg.Server.Database.Path,
		"catalog", cfg.Server.Catalog.Path,
		"auth_mode", cfg.Server.Auth.Mode,
		"stream_interval", cfg.Server.Stream.Interval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Measurement store.
	st, err := store.Open(cfg.Server.Database.Path)
	if err != nil {
		slog.Error("failed to open store", "path", cfg.Server.Database.Path, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	// Metric catalog with hot reload, so target and debt changes apply on
	// the next ingestion cycle without a restart.
	cat, err := catalog.Load(cfg.Server.Catalog.Path)
	if err != nil {
		slog.Error("failed to load catalog", "path", cfg.Server.Catalog.Path, "err", err)
		os.Exit(1)
	}
	go func() {
		if err := cat.Watch(ctx); err != nil {
			slog.Error("catalog watcher stopped", "err", err)
		}
	}()

	// Ingestion engine and notification rules.
	eng := engine.New(st, cat)
	notifier := notify.New(cfg.Server.Notify)

	// Live measurement count: SSE per observer plus a WebSocket hub.
	streamer := stream.New(st, cfg.Server.Stream.Interval)
	hub := ws.New(st, cfg.Server.Stream.Interval)
	go hub.Run(ctx)

	handler := api.New(api.Deps{
		Engine:   eng,
		Store:    st,
		Catalog:  cat,
		Notifier: notifier,
		Streamer: streamer,
		Hub:      hub,
		APIKey: auth.APIKey(
			cfg.Server.Auth.Mode,
			cfg.Server.Auth.EffectiveHeader(),
			cfg.Server.Auth.Key(),
		),
		Session: auth.Session(st),
	})

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: handler,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("qualtrack-server shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}
