package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tomqwilliamson/baap-notify/internal/config"
	"github.com/tomqwilliamson/baap-notify/internal/coordination"
	"github.com/tomqwilliamson/baap-notify/internal/identity"
	"github.com/tomqwilliamson/baap-notify/internal/logging"
	"github.com/tomqwilliamson/baap-notify/internal/notify"
	"github.com/tomqwilliamson/baap-notify/internal/presence"
	"github.com/tomqwilliamson/baap-notify/internal/redis"
	"github.com/tomqwilliamson/baap-notify/internal/server"
	"github.com/tomqwilliamson/baap-notify/internal/version"
)

const heartbeatInterval = 15 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, registry *presence.Registry, stopHeartbeat context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		registry.Stop()

		if stopHeartbeat != nil {
			stopHeartbeat()
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	registry := presence.NewRegistry(clock, cfg.MaxConnections, cfg.SendBufferSize)
	svc := notify.NewService(registry)
	resolver := identity.NewResolver(cfg.JWTSecret)

	opts := []func(*server.Server){}
	var stopHeartbeat context.CancelFunc

	// Redis is optional: it adds instance coordination and a readiness check.
	if cfg.RedisURL != "" {
		redisClient := setupRedis(context.Background(), cfg)
		defer func() { _ = redisClient.Close() }()

		instanceID := uuid.NewString()
		instances := coordination.NewInstanceRegistry(redisClient, instanceID, heartbeatInterval, version.Get().Version)

		var heartbeatCtx context.Context
		heartbeatCtx, stopHeartbeat = context.WithCancel(context.Background())
		go instances.Start(heartbeatCtx)
		slog.Info("Instance coordination enabled", "instance_id", instanceID)

		opts = append(opts,
			server.WithInstances(instances),
			server.WithRedisHealthCheck(redisClient),
		)
	}

	srv := server.NewServer(cfg, registry, svc, resolver, opts...)

	done := runGracefulShutdown(srv, registry, stopHeartbeat)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
