package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hedge_go/internal/app"
	"hedge_go/internal/infra"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	path := os.Getenv("HEDGE_CONFIG")
	if path == "" {
		path = infra.DefaultConfigPath
	}

	cfg, err := infra.LoadConfig(path)
	if err != nil {
		slog.Error("❌ Failed to load config", slog.String("path", path), slog.Any("error", err))
		os.Exit(1)
	}

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(cfg); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Shutdown()

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Metrics + pprof server
	http.Handle("/metrics", bootstrap.Metrics.Handler())
	srv := &http.Server{Addr: cfg.Metrics.Listen, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("🕵️ Metrics and pprof server started", slog.String("addr", cfg.Metrics.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	// 4. Venues, router, book cache
	if err := bootstrap.BuildExecution(ctx); err != nil {
		slog.Error("❌ Execution setup failed", slog.Any("error", err))
		return
	}

	// 5. Streaming books
	bootstrap.StartWorkers(ctx)

	// 6. One monitor per configured pair
	if err := bootstrap.StartMonitors(ctx); err != nil {
		slog.Error("❌ Failed to start monitors", slog.Any("error", err))
		return
	}

	slog.InfoContext(ctx, "✨ Hedge engine fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Metrics server shutdown failed", slog.Any("error", err))
	}
}
