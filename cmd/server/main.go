package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/david/grant-matcher/internal/api"
	"github.com/david/grant-matcher/internal/cache"
	"github.com/david/grant-matcher/internal/db"
	"github.com/david/grant-matcher/internal/logger"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	zlog, err := logger.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, zlog); err != nil {
		zlog.Fatal("Migration failed", zap.Error(err))
	}

	// Matching still works without Redis, just uncached.
	rdb, err := cache.NewRedisClient(ctx, cache.RedisConfig{
		Addr:     envOr("REDIS_ADDR", "127.0.0.1:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	if err != nil {
		zlog.Warn("Redis unavailable, running without result cache", zap.Error(err))
		rdb = nil
	}

	srv := api.NewServer(pool, rdb, zlog)
	zlog.Info("Server starting", zap.String("port", port))
	if err := srv.Start(port); err != nil {
		zlog.Fatal("Server stopped", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
