package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"netbench/pkg/bench"
	"netbench/pkg/storage"
)

const (
	defaultPort        = "8080"
	defaultStoragePath = "./data/runs"
)

func main() {
	port := getEnv("PORT", defaultPort)
	storagePath := getEnv("STORAGE_PATH", defaultStoragePath)

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	store, err := storage.NewFileStorage(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", storagePath).Msg("failed to initialize run storage")
	}

	manager := bench.NewManager(store, logger)

	apiHandler := &APIHandler{
		manager:   manager,
		logger:    logger,
		startTime: time.Now(),
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/health", apiHandler.HealthCheck)
	router.POST("/runs", apiHandler.StartRun)
	router.GET("/runs", apiHandler.ListRuns)
	router.GET("/runs/:id", apiHandler.GetRun)
	router.GET("/runs/:id/report", apiHandler.GetReport)
	router.POST("/runs/:id/stop", apiHandler.StopRun)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", port).Str("storage", storagePath).Msg("starting netbench server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	// End the active run first so its report is persisted.
	manager.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
