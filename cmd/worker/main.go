// Package main runs the background worker: the identity event consumer and
// the daily retention scheduler.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/studiobook/backend/config"
	"github.com/studiobook/backend/internal/appointmenttypes"
	"github.com/studiobook/backend/internal/jobs"
	"github.com/studiobook/backend/internal/locations"
	"github.com/studiobook/backend/internal/memberships"
	"github.com/studiobook/backend/internal/organizations"
	"github.com/studiobook/backend/internal/sync"
	"github.com/studiobook/backend/internal/users"
	"github.com/studiobook/backend/internal/webhooks"
	"github.com/studiobook/backend/internal/worker"
	"github.com/studiobook/backend/pkg/database"
	"github.com/studiobook/backend/pkg/queue"
	"github.com/studiobook/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	// Identity sync and retention purges cross tenant boundaries, so the
	// worker connects as studiobook_worker (BYPASSRLS, see migration 004)
	// rather than the application role.
	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.WorkerDSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	ledger := webhooks.NewRepository(pool)
	userRepo := users.NewRepository(pool)
	orgRepo := organizations.NewRepository(pool)
	membershipRepo := memberships.NewRepository(pool)
	typeRepo := appointmenttypes.NewRepository(pool)
	locationRepo := locations.NewRepository(pool)

	processor := sync.NewProcessor(ledger, userRepo, orgRepo, membershipRepo,
		cfg.Sync.DependencyAttempts, cfg.Sync.DependencyBackoff, logger)

	jobQueue := queue.NewQueue(rdb.Client, cfg.Sync.QueueAttempts, logger)
	identityWorker := worker.NewIdentityWorker(jobQueue, processor, logger)

	scheduler := jobs.NewScheduler(membershipRepo, typeRepo, locationRepo, cfg.Retention.Days, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go identityWorker.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
