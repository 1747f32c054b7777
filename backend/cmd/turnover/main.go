// ============================================================================
// backend/cmd/turnover/main.go
// Entry point for the Turnover Service
// ============================================================================

package main

import (
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"library_turnover/backend/internal/cache"
	"library_turnover/backend/internal/docstore"
	"library_turnover/backend/internal/shared"
	"library_turnover/backend/internal/turnover"
	"library_turnover/backend/internal/turnoverrpc"
)

func main() {
	// Load environment variables
	envErr := shared.LoadEnv(".env")

	// Load service configuration
	config, err := shared.LoadServiceConfig("turnover-service")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := shared.ValidateServiceConfig(config); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := shared.MustLogger(config)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger.Desugar())

	if envErr != nil {
		logger.Warnw(".env file not found, using system environment variables", "error", envErr)
	}
	if shared.IsDevelopment(config) {
		shared.PrintConfig(logger, config)
	}

	// Connect to MongoDB
	mongoClient, db, err := shared.ConnectMongoDB(logger, &config.MongoDB)
	if err != nil {
		logger.Fatalw("failed to connect to MongoDB", "error", err)
	}
	defer func() {
		if err := shared.DisconnectMongoDB(mongoClient); err != nil {
			logger.Errorw("error disconnecting from MongoDB", "error", err)
		}
	}()

	store := docstore.NewMongoStore(mongoClient, db, logger, config.MongoDB.QueryTimeout)

	// Create gRPC server with configuration
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(config.GRPC.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(config.GRPC.MaxSendMsgSize),
		grpc.ChainUnaryInterceptor(
			turnoverrpc.UnaryValidator(),
			turnoverrpc.UnaryLogger(logger),
		),
	)

	// Initialize and register Turnover Service
	turnoverService := turnover.NewTurnoverService(store, cache.NewBus(), logger, config.Engine)
	turnoverrpc.RegisterTurnoverServiceServer(grpcServer, turnoverService)

	// Register health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(turnoverrpc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	// Register reflection service (useful for debugging with grpcurl)
	reflection.Register(grpcServer)

	// Start listening
	listener, err := net.Listen("tcp", ":"+config.ServicePort)
	if err != nil {
		logger.Fatalw("failed to listen", "port", config.ServicePort, "error", err)
	}

	go func() {
		logger.Infow("turnover service listening", "port", config.ServicePort)
		if err := grpcServer.Serve(listener); err != nil {
			logger.Fatalw("failed to serve", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down turnover service")
	healthServer.SetServingStatus(turnoverrpc.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Waits for running turnovers to return
	grpcServer.GracefulStop()

	logger.Info("turnover service stopped")
}
