package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/noah-isme/admissions-api/api/swagger"
	schema "github.com/noah-isme/admissions-api/db"
	"github.com/noah-isme/admissions-api/internal/handler"
	"github.com/noah-isme/admissions-api/internal/repository"
	"github.com/noah-isme/admissions-api/internal/service"
	"github.com/noah-isme/admissions-api/pkg/cache"
	"github.com/noah-isme/admissions-api/pkg/config"
	"github.com/noah-isme/admissions-api/pkg/database"
	"github.com/noah-isme/admissions-api/pkg/events"
	"github.com/noah-isme/admissions-api/pkg/jobs"
	"github.com/noah-isme/admissions-api/pkg/logger"
	"github.com/noah-isme/admissions-api/pkg/storage"
)

// @title Admissions API
// @version 1.0.0
// @description Graduate admissions application workflow: eligibility, step gates, document review and deadline sweep.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := migrate(ctx, db, logr); err != nil {
			return err
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	store, err := storage.NewObjectStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}

	publisher := events.New(cfg.Events, logr)
	defer publisher.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	validate := validator.New()

	users := repository.NewUserRepository(db)
	apps := repository.NewApplicationRepository(db)
	steps := repository.NewStepRepository(db)
	uploads := repository.NewUserDocumentRepository(db)
	processes := repository.NewProcessRepository(db)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Catalog.CacheTTL, logr, cfg.Catalog.CacheEnabled && redisClient != nil)
	catalog := service.NewDocumentCatalog(processes, cacheSvc, logr)
	guard := service.NewWindowGuard(apps, metrics, nil)

	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	appSvc := service.NewApplicationService(service.ApplicationServiceDeps{
		Applications: apps,
		Steps:        steps,
		Uploads:      uploads,
		Catalog:      catalog,
		Guard:        guard,
		Publisher:    publisher,
		Audit:        users,
		Validator:    validate,
		Metrics:      metrics,
		Logger:       logr,
	})
	stepSvc := service.NewStepService(steps, uploads, catalog, guard, users, validate, metrics, logr)
	sweepSvc := service.NewSweepService(apps, publisher, users, metrics, logr, service.SweepConfig{
		Interval: cfg.Sweep.Interval,
		Timeout:  cfg.Sweep.Timeout,
	})

	var docSvc *service.UserDocumentService
	cleanup := jobs.NewQueue("object-cleanup", func(ctx context.Context, job jobs.Job) error {
		return docSvc.HandleCleanupJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Storage.CleanupWorkers,
		MaxRetries: cfg.Storage.CleanupRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	docSvc = service.NewUserDocumentService(service.UserDocumentServiceDeps{
		Documents: uploads,
		Catalog:   catalog,
		Guard:     guard,
		Store:     store,
		Tickets:   storage.NewUploadTicketSigner(cfg.Storage.TicketSecret, cfg.Storage.TicketTTL),
		Cleanup:   cleanup,
		Audit:     users,
		Validator: validate,
		Metrics:   metrics,
		Logger:    logr,
	})

	cleanup.Start(ctx)
	defer cleanup.Stop()

	if cfg.Sweep.Enabled {
		sweepSvc.StartScheduler(ctx)
		logr.Info("deadline sweep scheduled", zap.Duration("interval", cfg.Sweep.Interval))
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := newRouter(cfg, logr, routes{
		auth:        handler.NewAuthHandler(authSvc),
		application: handler.NewApplicationHandler(appSvc, sweepSvc),
		step:        handler.NewStepHandler(stepSvc),
		document:    handler.NewUserDocumentHandler(docSvc),
		metrics:     handler.NewMetricsHandler(metrics, db),
		tokens:      authSvc,
		observer:    metrics,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func migrate(ctx context.Context, db *sqlx.DB, logr *zap.Logger) error {
	applied, err := database.ApplyMigrations(ctx, db, schema.Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logr.Info("migrations applied", zap.Strings("files", applied))
	return nil
}
