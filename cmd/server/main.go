package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alcyxob/attachment-offload/internal/api"
	"alcyxob/attachment-offload/internal/app"
	"alcyxob/attachment-offload/internal/config"
	"alcyxob/attachment-offload/internal/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// @title Attachment Offload API
// @version 1.0
// @description Offloads attachment content to S3-compatible object storage.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	configPath := "."
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logging.Fatal("could not load config", zap.Error(err))
	}

	if err := logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		logging.Fatal("could not initialize logger", zap.Error(err))
	}
	defer logging.Sync()
	logging.Info("starting attachment offload server")

	if cfg.JWT.Secret == "" {
		logging.Fatal("jwt.secret must be set")
	}

	// --- Dependencies ---
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	a, err := app.New(ctx, cfg)
	cancel()
	if err != nil {
		logging.Fatal("could not initialize application", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			logging.Error("failed to disconnect MongoDB", zap.Error(err))
		}
	}()

	// --- Routes ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, cfg.JWT.Secret, api.Services{
		Auth:        a.Auth,
		Attachments: a.Attachments,
		Registry:    a.Registry,
		Migrator:    a.Migrator,
		Upload:      a.Upload,
		Status:      a.Status,
	})

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logging.Info("server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("listen failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info("shutting down server")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		logging.Error("server forced to shutdown", zap.Error(err))
	}
	logging.Info("server exiting")
}
