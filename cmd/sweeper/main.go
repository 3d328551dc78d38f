// Command sweeper runs one deadline sweep and exits. It is meant for cron
// deployments where the API's in-process scheduler is disabled.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/admissions-api/internal/repository"
	"github.com/noah-isme/admissions-api/internal/service"
	"github.com/noah-isme/admissions-api/pkg/config"
	"github.com/noah-isme/admissions-api/pkg/database"
	"github.com/noah-isme/admissions-api/pkg/events"
	"github.com/noah-isme/admissions-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logr)
	stop()
	if err != nil {
		logr.Error("sweep failed", zap.Error(err))
		_ = logr.Sync()
		os.Exit(1)
	}
	_ = logr.Sync()
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Sweep.Timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	publisher := events.New(cfg.Events, logr)
	defer publisher.Close() //nolint:errcheck

	sweeper := service.NewSweepService(repository.NewApplicationRepository(db), publisher, nil, nil, logr, service.SweepConfig{Timeout: cfg.Sweep.Timeout})
	rejected, err := sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	logr.Info("sweep finished", zap.Int("rejected", rejected))
	return nil
}
