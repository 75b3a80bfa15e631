package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/ff-menu/ff-menu/internal/app"
	"github.com/ff-menu/ff-menu/internal/catalog"
	jobmetrics "github.com/ff-menu/ff-menu/internal/jobs"
	"github.com/ff-menu/ff-menu/internal/platform/blob"
	"github.com/ff-menu/ff-menu/internal/platform/cache"
	"github.com/ff-menu/ff-menu/internal/platform/db"
	"github.com/ff-menu/ff-menu/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	blobStore, err := blob.New(blob.Config{
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Bucket:          cfg.S3BucketName,
		UseSSL:          cfg.S3UseSSL,
		PublicURL:       cfg.S3PublicURL,
		DefaultImage:    catalog.DefaultImageURL,
	}, logger)
	if err != nil {
		logger.Error("init blob store", slog.Any("error", err))
		os.Exit(1)
	}

	// The worker never mutates the catalog, so images are removed inline.
	menuService := catalog.NewService(
		catalog.NewRepository(pool),
		catalog.NewMenuCache(redisClient, cfg.MenuCacheTTL),
		blobStore,
		nil,
		logger,
	)

	metrics := jobmetrics.NewMetrics(nil)
	blobJob := &jobs.BlobDeleteJob{Images: blobStore, Logger: logger, Metrics: metrics}
	warmupJob := &jobs.MenuWarmupJob{Menu: menuService, Logger: logger, Metrics: metrics}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.JobsConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBlobDelete, Handler: blobJob.Handle},
			{Type: jobs.TaskMenuWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.MenuWarmupCron, Task: jobs.NewMenuWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.Int("concurrency", cfg.JobsConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
