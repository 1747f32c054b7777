package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"library_turnover/backend/internal/gateway"
	"library_turnover/backend/internal/shared"
)

func main() {
	envErr := shared.LoadEnv(".env")

	cfg, err := shared.LoadGatewayConfig()
	if err != nil {
		log.Fatalf("FATAL: failed to load gateway configuration: %v", err)
	}
	if err := shared.ValidateGatewayConfig(cfg); err != nil {
		log.Fatalf("FATAL: invalid gateway configuration: %v", err)
	}

	logger := shared.MustLogger(&cfg.ServiceConfig)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger.Desugar())

	if envErr != nil {
		logger.Warnw(".env file not found, using system environment variables", "error", envErr)
	}
	if shared.IsDevelopment(&cfg.ServiceConfig) {
		shared.PrintGatewayConfig(logger, cfg)
	}

	logger.Info("starting gateway")

	// 1. Initialize gRPC Clients
	serviceClients, err := gateway.NewServiceClients(logger, cfg)
	if err != nil {
		logger.Fatalw("failed to create service clients", "error", err)
	}
	defer serviceClients.Close(logger)

	// 2. Setup Routes and Middleware
	router := gateway.SetupRoutes(serviceClients, cfg, logger)

	// 3. Configure Server. Executions can outlive the default write timeout.
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// 4. Start Server in a Goroutine
	go func() {
		logger.Infow("gateway listening", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("HTTP server error", "error", err)
		}
	}()

	// 5. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down gateway")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorw("gateway shutdown", "error", err)
	}

	logger.Info("gateway stopped")
}
