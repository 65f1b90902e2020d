// Command auctiond runs the live auction service: HTTP API, websocket
// fan-out, Redis-backed bid state and lock, and the settlement sweeper.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/bidwire/auction/internal/app"
	"github.com/bidwire/auction/internal/config"
	"github.com/bidwire/auction/internal/httpapi"
	lockredis "github.com/bidwire/auction/internal/lock/redis"
	"github.com/bidwire/auction/internal/realtime"
	"github.com/bidwire/auction/internal/storage/postgres"
	storeredis "github.com/bidwire/auction/internal/store/redis"
	"github.com/bidwire/auction/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "auctiond: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}, "auctiond")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	defer redisClient.Close()

	deps := app.Deps{
		Locker:        lockredis.New(redisClient),
		Ephemeral:     storeredis.New(redisClient),
		LockWait:      cfg.Auction.LockWait,
		LockHold:      cfg.Auction.LockHold,
		SweepInterval: cfg.Auction.SweepInterval,
	}

	if cfg.Database.DSN != "" {
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()

		pg := postgres.New(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		deps.Auctions = pg
		deps.Users = pg
	} else {
		log.Warn("DATABASE_DSN not set; using in-memory durable stores")
	}

	hub := realtime.NewHub(log)
	deps.Publisher = hub

	application, err := app.New(deps, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	if err := application.Attach(hub); err != nil {
		return err
	}

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           httpapi.NewHandler(application, hub),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop services: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}
