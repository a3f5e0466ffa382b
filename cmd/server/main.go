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
	httpServer "github.com/wekeepgrowing/bursar/internal/infrastructure/http"
	"github.com/wekeepgrowing/bursar/pkg/logger"
)

func main() {
	// A missing .env is fine; deployments set the environment directly.
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher, closePublisher, err := bootstrap.NewPublisher(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to start event publisher", zap.Error(err))
	}
	defer closePublisher()

	useCases, err := bootstrap.NewUseCases(cfg, repos, publisher, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize use cases", zap.Error(err))
	}

	httpSrv := httpServer.NewServer(cfg, zapLogger, useCases)

	go func() {
		if err := httpSrv.Start(); err != nil {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("Shutting down server...")

	timeout := cfg.Server.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	zapLogger.Info("Server shut down successfully")
}
