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

	"github.com/joho/godotenv"

	"github.com/driftware/harvester/internal/api"
	"github.com/driftware/harvester/internal/config"
	"github.com/driftware/harvester/internal/dispatch"
	"github.com/driftware/harvester/internal/proxy"
	"github.com/driftware/harvester/internal/queue"
	"github.com/driftware/harvester/internal/ratelimit"
	"github.com/driftware/harvester/internal/sandbox"
	"github.com/driftware/harvester/internal/session"
	"github.com/driftware/harvester/internal/store"
	"github.com/driftware/harvester/pkg/models"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using system environment")
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := config.Load()

	provider, err := sandbox.NewProvider(cfg.SandboxImage)
	if err != nil {
		slog.Error("failed to create sandbox provider", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	if err := provider.EnsureImage(ctx); err != nil {
		cancel()
		slog.Error("sandbox image unavailable", "image", cfg.SandboxImage, "error", err)
		os.Exit(1)
	}
	cancel()
	slog.Info("sandbox image ready", "image", cfg.SandboxImage)

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to open work-queue database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("work-queue database ready", "path", cfg.DatabasePath)

	httpProbe := session.HTTPProbe(5 * time.Second)
	probe := func(ctx context.Context, sess *models.Session) error {
		if !provider.Alive(ctx, sess.ContainerID) {
			return errors.New("sandbox container is not running")
		}
		return httpProbe(ctx, sess)
	}

	registry := session.NewRegistry(session.Options{
		Provider:       provider,
		Probe:          probe,
		MaxSessions:    cfg.MaxSessions,
		DefaultTimeout: cfg.SessionTimeout,
	})

	dispatcher := dispatch.NewDispatcher(cfg.DispatchTimeout)
	driver := queue.NewDriver(registry, dispatcher, db)
	proxyServer := proxy.NewServer(registry)
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerHour, cfg.RateLimitBurst)

	handler := api.NewHandler(registry, dispatcher, driver)
	router := handler.SetupRoutes(proxyServer, rateLimiter)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("orchestrator listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("forced server shutdown", "error", err)
	}

	registry.ReleaseAll(shutdownCtx)
	slog.Info("stopped")
}
