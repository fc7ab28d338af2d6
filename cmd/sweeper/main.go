package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"tidemark.app/feed/common/id"
	"tidemark.app/feed/common/logger"
	"tidemark.app/feed/common/otel"
	"tidemark.app/feed/core/config"
	"tidemark.app/feed/core/db"
	"tidemark.app/feed/internal/buffer"
	"tidemark.app/feed/internal/service"
	"tidemark.app/feed/internal/sweeper"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeSweeper)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "feed sweeper starting",
		"env", cfg.Env,
		"interval", cfg.Sweep.Interval,
		"workers", cfg.Sweep.Workers)

	// Different node ID than the server so snowflake IDs never collide
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "prefix", cfg.Redis.KeyPrefix)

	buf := buffer.NewRedis(redisClient, cfg.Redis.KeyPrefix, cfg.Aggregation.SampleCap, cfg.Aggregation.ClaimTTL)

	finalizer := service.NewFinalizer(
		buf,
		service.NewDBTxRunner(database),
		service.LogStrandedReporter{},
		cfg.Sweep.MaxAttempts,
		cfg.Sweep.BaseBackoff,
	)

	sw := sweeper.New(buf, finalizer, sweeper.Config{
		Interval: cfg.Sweep.Interval,
		Thresholds: buffer.CloseThresholds{
			IdleAfter: cfg.Aggregation.IdleAfter,
			MaxAge:    cfg.Aggregation.MaxAge,
			MaxEvents: cfg.Aggregation.MaxEvents,
		},
		BatchSize: cfg.Sweep.BatchSize,
		Workers:   cfg.Sweep.Workers,
	})

	go sw.Run(ctx)

	slog.InfoContext(ctx, "sweeper initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down sweeper...")

	sw.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "sweeper shutdown complete")
}
