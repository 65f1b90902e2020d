// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything the auction daemon needs to start.
type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Auction  AuctionConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	// DSN is a lib/pq connection string. Empty means run on the in-memory
	// stores (development mode).
	DSN string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type AuctionConfig struct {
	LockWait      time.Duration
	LockHold      time.Duration
	SweepInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults
// suitable for local development.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: envOr("SERVER_HOST", "0.0.0.0"),
			Port: 8080,
		},
		Redis: RedisConfig{
			Addr:     envOr("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Database: DatabaseConfig{
			DSN: os.Getenv("DATABASE_DSN"),
		},
		Logging: LoggingConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
		},
		Auction: AuctionConfig{
			LockWait:      10 * time.Second,
			LockHold:      5 * time.Second,
			SweepInterval: time.Minute,
		},
	}

	if raw := os.Getenv("SERVER_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("SERVER_PORT %q: %w", raw, err)
		}
		cfg.Server.Port = port
	}
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB %q: %w", raw, err)
		}
		cfg.Redis.DB = db
	}
	for _, d := range []struct {
		env    string
		target *time.Duration
	}{
		{"AUCTION_LOCK_WAIT", &cfg.Auction.LockWait},
		{"AUCTION_LOCK_HOLD", &cfg.Auction.LockHold},
		{"AUCTION_SWEEP_INTERVAL", &cfg.Auction.SweepInterval},
	} {
		if raw := os.Getenv(d.env); raw != "" {
			dur, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("%s %q: %w", d.env, raw, err)
			}
			*d.target = dur
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
