package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"moneyrag/internal/api"
	"moneyrag/internal/api/handlers"
	"moneyrag/internal/service"
	"moneyrag/pkg/config"
	"moneyrag/pkg/logger"

	"go.uber.org/zap"
)

// @title MoneyRAG API
// @version 1.0
// @description Personal finance analysis: CSV ingestion, merchant enrichment and an LLM agent over SQL + semantic search

// @host localhost:8080
// @BasePath /api/v1

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting MoneyRAG service")

	// Sessions own all state; providers and databases are built per session.
	sessionService := service.NewSessionService(cfg, appLogger)

	sessionHandler := handlers.NewSessionHandler(sessionService, appLogger)

	// Setup router
	app := api.SetupRouter(sessionHandler, &cfg.Server, appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
	sessionService.CleanupAll()
}
