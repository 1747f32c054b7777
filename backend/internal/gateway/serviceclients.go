package gateway

import (
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"library_turnover/backend/internal/shared"
	"library_turnover/backend/internal/turnoverrpc"
)

// ServiceClients holds the gRPC clients the gateway talks to.
type ServiceClients struct {
	TurnoverClient *turnoverrpc.TurnoverServiceClient

	// Keep connections to close them later when the gateway shuts down
	conns []*grpc.ClientConn
}

// ConnectGRPC creates a client connection to a backend service. Connections
// are lazy, so a service that is down surfaces as Unavailable on the first call.
func ConnectGRPC(log *zap.SugaredLogger, addr string, cfg shared.GRPCConfig) (*grpc.ClientConn, error) {
	log.Infow("connecting to gRPC service", "addr", addr)

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	var callOpts []grpc.CallOption
	if cfg.MaxRecvMsgSize > 0 {
		callOpts = append(callOpts, grpc.MaxCallRecvMsgSize(cfg.MaxRecvMsgSize))
	}
	if cfg.MaxSendMsgSize > 0 {
		callOpts = append(callOpts, grpc.MaxCallSendMsgSize(cfg.MaxSendMsgSize))
	}
	if len(callOpts) > 0 {
		opts = append(opts, grpc.WithDefaultCallOptions(callOpts...))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return conn, nil
}

// NewServiceClients connects to every backend service named in the config
func NewServiceClients(log *zap.SugaredLogger, cfg *shared.GatewayConfig) (*ServiceClients, error) {
	conn, err := ConnectGRPC(log, cfg.TurnoverServiceAddr, cfg.GRPC)
	if err != nil {
		return nil, err
	}

	return &ServiceClients{
		TurnoverClient: turnoverrpc.NewTurnoverServiceClient(conn),
		conns:          []*grpc.ClientConn{conn},
	}, nil
}

// NewServiceClientsFromConn wraps an existing connection (in-process servers, tests)
func NewServiceClientsFromConn(cc grpc.ClientConnInterface) *ServiceClients {
	return &ServiceClients{TurnoverClient: turnoverrpc.NewTurnoverServiceClient(cc)}
}

// Close closes all underlying gRPC connections.
func (sc *ServiceClients) Close(log *zap.SugaredLogger) {
	for _, conn := range sc.conns {
		if err := conn.Close(); err != nil {
			log.Warnw("error closing gRPC connection", "error", err)
		}
	}
}
