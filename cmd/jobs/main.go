// Command jobs runs one pass of the scheduled work: due recurring charges
// and webhook events waiting for a retry. Run it from cron.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/bootstrap"
	"github.com/wekeepgrowing/bursar/internal/config"
	"github.com/wekeepgrowing/bursar/internal/infrastructure/database"
	"github.com/wekeepgrowing/bursar/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.NewZapLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	zapLogger = zapLogger.With(zap.String("command", "jobs"))

	db, err := database.NewConnection(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, zapLogger); err != nil {
			zapLogger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	if err := database.Migrate(db, zapLogger); err != nil {
		zapLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	repos := database.NewRepositories(db, zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, closePublisher, err := bootstrap.NewPublisher(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to start event publisher", zap.Error(err))
	}
	defer closePublisher()

	useCases, err := bootstrap.NewUseCases(cfg, repos, publisher, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize use cases", zap.Error(err))
	}

	failed := false

	summary, err := useCases.Recurring.RunDue(ctx, time.Now())
	if err != nil {
		zapLogger.Error("Recurring billing run failed", zap.Error(err))
		failed = true
	} else {
		zapLogger.Info("Recurring billing run complete",
			zap.Int("charged", summary.Charged),
			zap.Int("retrying", summary.Retrying),
			zap.Int("failed", summary.Failed))
	}

	retried, err := useCases.Webhooks.RetryPending(ctx, cfg.Recurring.BatchSize)
	if err != nil {
		zapLogger.Error("Webhook retry failed", zap.Error(err))
		failed = true
	} else {
		zapLogger.Info("Webhook retry complete", zap.Int("succeeded", retried))
	}

	if failed {
		closePublisher()
		_ = database.Close(db, zapLogger)
		os.Exit(1)
	}
}
