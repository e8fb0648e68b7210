// @title TeleDrive
// @version 0.1
// @description Gallery service for files kept in Telegram Saved Messages.

// @host localhost:8080
// @BasePath /api
// @query.collection.format multi
// @schemes http

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	_ "tush00nka/teledrive/docs"
	"tush00nka/teledrive/internal/app"
	"tush00nka/teledrive/internal/config"
	"tush00nka/teledrive/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	sugar, err := logger.New(logger.Config{Development: cfg.IsDevelopment()})
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer sugar.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, sugar); err != nil {
		sugar.Fatalw("server failed", "error", err)
	}
}
