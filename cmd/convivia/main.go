package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/api"
	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/backend"
	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/config"
	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/service"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// Local development overrides, ignored when no .env exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Initialize assistant backend client
	backendClient := backend.NewClient(cfg.Backend, logger)

	// Initialize chat service
	chatService := service.NewChatService(backendClient, logger)

	// Setup router
	router := api.SetupRouter(chatService, api.RouterConfig{
		APIKey:       cfg.Admin.APIKey,
		AllowOrigins: cfg.CORS.AllowOrigins,
		MaxFiles:     cfg.Upload.MaxFiles,
		MaxFileSize:  cfg.Upload.MaxFileSize,
	})

	// Create HTTP server. No write timeout: SSE responses stay open for
	// the lifetime of a streamed reply.
	srv := &http.Server{
		Addr:        cfg.Address(),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting Convivencia chat server",
			zap.String("address", cfg.Address()),
			zap.String("backend", cfg.Backend.BaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
