package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"evbooking/backend/libs/logging"
	"evbooking/backend/services/booking-service/internal/app"
	"evbooking/backend/services/booking-service/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger("booking-service")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to init booking service", zap.Error(err))
	}
	defer application.Close()

	logger.Info("booking service starting",
		zap.String("addr", cfg.HTTPAddress()),
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("sweeper", cfg.Sweeper.Enabled),
	)
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("booking service stopped with error", zap.Error(err))
		os.Exit(1)
	}
}
