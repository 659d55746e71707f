package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"aerialcapture/internal/app"
	"aerialcapture/internal/config"
	"aerialcapture/internal/logger"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	appLogger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to start pipeline: %v", err)
		appLogger.Close()
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		appLogger.Error("Pipeline stopped with error: %v", err)
		appLogger.Close()
		os.Exit(1)
	}
}
