package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/driftware/harvester/internal/agent"
)

func main() {
	godotenv.Load()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	addr := os.Getenv("AGENT_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	opts := agent.Options{
		Headless: os.Getenv("AGENT_HEADLESS") == "true",
		StartURL: os.Getenv("AGENT_START_URL"),
	}

	ag := agent.New(opts)
	defer ag.Shutdown()

	srv := &http.Server{
		Addr:         addr,
		Handler:      ag.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		slog.Info("agent listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("agent server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down agent")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
