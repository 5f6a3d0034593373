package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mochaeng/payment-dispatcher/internal/app"
	"github.com/mochaeng/payment-dispatcher/internal/config"
	"github.com/mochaeng/payment-dispatcher/internal/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger := logger.New(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := app.NewApp(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}

	server := app.Mount()
	if err := app.Run(ctx, server); err != nil {
		logger.Fatal("application stopped with error", zap.Error(err))
	}
}
