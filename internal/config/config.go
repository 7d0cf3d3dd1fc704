package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries everything the orchestrator reads from the environment.
type Config struct {
	// ListenAddr is the orchestrator's HTTP bind address.
	ListenAddr string
	// SandboxImage is the container image sandboxes are provisioned from.
	SandboxImage string
	// MaxSessions caps concurrently live sandboxes.
	MaxSessions int64
	// SessionTimeout is the default idle lifetime of a session in seconds.
	SessionTimeout int
	// DatabasePath is where the work-queue database lives.
	DatabasePath string
	// DispatchTimeout bounds a single operation's round trip to an agent.
	DispatchTimeout time.Duration
	// RateLimitPerHour and RateLimitBurst shape the per-client limiter.
	RateLimitPerHour int
	RateLimitBurst   int
}

// Load reads configuration from the environment, filling defaults for
// anything unset.
func Load() Config {
	return Config{
		ListenAddr:       envStr("HARVESTER_LISTEN_ADDR", ":8090"),
		SandboxImage:     envStr("HARVESTER_SANDBOX_IMAGE", "harvester-sandbox:latest"),
		MaxSessions:      int64(envInt("HARVESTER_MAX_SESSIONS", 10)),
		SessionTimeout:   envInt("HARVESTER_SESSION_TIMEOUT", 1800),
		DatabasePath:     envStr("HARVESTER_DB_PATH", "./harvester.db"),
		DispatchTimeout:  time.Duration(envInt("HARVESTER_DISPATCH_TIMEOUT", 120)) * time.Second,
		RateLimitPerHour: envInt("HARVESTER_RATE_LIMIT", 100),
		RateLimitBurst:   envInt("HARVESTER_RATE_BURST", 10),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
