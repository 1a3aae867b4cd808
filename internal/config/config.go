package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, sourced from environment variables.
type Config struct {
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string

	// JWTSecret verifies bearer tokens at WebSocket connect time.
	// Empty means every connection is treated as anonymous.
	JWTSecret string

	// RedisURL enables the instance heartbeat registry when set.
	RedisURL string

	// MaxConnections caps concurrent WebSocket connections per instance.
	MaxConnections int

	// SendBufferSize is the per-connection outbound message buffer.
	// A client that falls this far behind is evicted.
	SendBufferSize int

	// MaxConnectionsPerIP caps concurrent WebSocket connections per source IP.
	MaxConnectionsPerIP int

	// ConnectionRatePerIP is the sustained new-connection rate per IP,
	// in connections per second. ConnectionRateBurst allows short spikes.
	ConnectionRatePerIP float64
	ConnectionRateBurst int
}

const (
	defaultMaxConnections      = 1000
	defaultSendBufferSize      = 16
	defaultMaxConnectionsPerIP = 20
	defaultConnectionRate      = 5.0
	defaultConnectionBurst     = 10
)

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		JWTSecret: getEnv("JWT_SECRET", ""),
		RedisURL:  getEnv("REDIS_URL", ""),
	}

	var err error
	cfg.MaxConnections, err = getEnvInt("MAX_CONNECTIONS", defaultMaxConnections)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConnections <= 0 {
		return nil, fmt.Errorf("MAX_CONNECTIONS must be positive, got %d", cfg.MaxConnections)
	}

	cfg.SendBufferSize, err = getEnvInt("SEND_BUFFER_SIZE", defaultSendBufferSize)
	if err != nil {
		return nil, err
	}
	if cfg.SendBufferSize <= 0 {
		return nil, fmt.Errorf("SEND_BUFFER_SIZE must be positive, got %d", cfg.SendBufferSize)
	}

	cfg.MaxConnectionsPerIP, err = getEnvInt("MAX_CONNECTIONS_PER_IP", defaultMaxConnectionsPerIP)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConnectionsPerIP <= 0 {
		return nil, fmt.Errorf("MAX_CONNECTIONS_PER_IP must be positive, got %d", cfg.MaxConnectionsPerIP)
	}

	cfg.ConnectionRatePerIP, err = getEnvFloat("CONNECTION_RATE_PER_IP", defaultConnectionRate)
	if err != nil {
		return nil, err
	}
	if cfg.ConnectionRatePerIP <= 0 {
		return nil, fmt.Errorf("CONNECTION_RATE_PER_IP must be positive, got %g", cfg.ConnectionRatePerIP)
	}

	cfg.ConnectionRateBurst, err = getEnvInt("CONNECTION_RATE_BURST", defaultConnectionBurst)
	if err != nil {
		return nil, err
	}
	if cfg.ConnectionRateBurst <= 0 {
		return nil, fmt.Errorf("CONNECTION_RATE_BURST must be positive, got %d", cfg.ConnectionRateBurst)
	}

	if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 16 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}
