package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fcaptcha/clickguard/internal/config"
	"github.com/fcaptcha/clickguard/internal/flagstore"
	infraLogger "github.com/fcaptcha/clickguard/internal/logger"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const janitorInterval = time.Minute

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	cfg, err := config.Load(os.Getenv("CLICKGUARD_CONFIG_DIR"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := infraLogger.New(cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, closeBackend := openBackend(ctx, cfg, logger)
	defer closeBackend()

	s := newServer(cfg, backend, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("clickguard server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
	// pages still open record their visit before the store goes away
	s.pages.Close()
}

// openBackend connects to Redis when configured. Without Redis, or when it
// cannot be reached, flags live in process memory.
func openBackend(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (flagstore.Backend, func()) {
	if cfg.Redis.URL != "" {
		rdb, err := flagstore.DialRedis(ctx, cfg.Redis.URL)
		if err == nil {
			logger.Info("using redis flag store")
			return rdb, func() {
				if err := rdb.Close(); err != nil {
					logger.WithError(err).Warn("failed to close redis client")
				}
			}
		}
		logger.WithError(err).Warn("redis unavailable, falling back to in-memory flag store")
	}

	mem := flagstore.NewMemory()
	go mem.RunJanitor(ctx, janitorInterval)
	logger.Info("using in-memory flag store")
	return mem, func() {}
}
