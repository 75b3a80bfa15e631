package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ff-menu/ff-menu/internal/app"
	"github.com/ff-menu/ff-menu/internal/auth"
	"github.com/ff-menu/ff-menu/internal/catalog"
	"github.com/ff-menu/ff-menu/internal/observability"
	"github.com/ff-menu/ff-menu/internal/platform/blob"
	"github.com/ff-menu/ff-menu/internal/platform/cache"
	"github.com/ff-menu/ff-menu/internal/platform/db"
	"github.com/ff-menu/ff-menu/internal/shared"
	"github.com/ff-menu/ff-menu/jobs"
	"github.com/ff-menu/ff-menu/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.DBAutoMigrate {
		applied, err := migrations.Apply(ctx, dbpool)
		if err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied", slog.Any("versions", applied))
	}

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

	metrics := observability.NewMetrics()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	var cleaner catalog.ImageCleaner = blobStore
	var inspector jobs.QueueInspector
	if cfg.JobsEnabled {
		jobClient := jobs.NewClient(redisOpts)
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		cleaner = jobClient

		asynqInspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := asynqInspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		inspector = asynqInspector
	}

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	authService := auth.NewService(auth.NewRepository(dbpool))
	if cfg.AdminPassword != "" {
		if _, err := authService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			logger.Error("ensure admin user", slog.Any("error", err))
			os.Exit(1)
		}
	}
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	catalogService := catalog.NewService(
		catalog.NewRepository(dbpool),
		catalog.NewMenuCache(redisClient, cfg.MenuCacheTTL),
		cleaner,
		metrics,
		logger,
	)
	catalogHandler := catalog.NewHandler(logger, catalogService, blobStore, catalog.HandlerConfig{
		ImportMaxBytes: cfg.ImportMaxBytes,
		UploadMaxBytes: cfg.UploadMaxBytes,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		CatalogHandler: catalogHandler,
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
