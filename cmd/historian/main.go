// cmd/historian/main.go pops match actions from Redis and persists them to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/zerou/internal/cache"
	"github.com/jason-s-yu/zerou/internal/config"
	"github.com/jason-s-yu/zerou/internal/database"
	"github.com/jason-s-yu/zerou/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := config.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cache.ConnectRedis(); err != nil {
		logger.WithError(err).Fatal("redis unavailable")
	}
	defer cache.Rdb.Close()

	pool, err := database.ConnectDB(ctx)
	if err != nil {
		logger.WithError(err).Fatal("postgres unavailable")
	}
	defer pool.Close()

	store := database.NewMatchStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("failed to prepare schema")
	}

	queue := cache.QueueName()
	hs := historian.NewService(
		historian.NewRedisSource(cache.Rdb, queue),
		store,
		historian.ConfigFromEnv(),
		logrus.NewEntry(logger).WithField("queue", queue),
	)
	if err := hs.Run(ctx); err != nil {
		logger.WithError(err).Error("historian stopped with error")
	}
	logger.Info("Historian shutdown complete.")
}
