package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
	"gitlab.com/timkado/api/gatekeeper-relay/pkg/safego"
)

// RelayServiceName is the service name reported by the health endpoint besides "".
const RelayServiceName = "gatekeeper.relay.Relay"

// ErrDisabled is returned by Start when no gRPC port is configured.
var ErrDisabled = errors.New("gRPC server disabled")

// Server exposes grpc.health.v1 and server reflection for orchestration probes.
type Server struct {
	gsrv        *grpc.Server
	health      *health.Server
	logger      domain.Logger
	cfgProvider config.Provider
	appCtx      context.Context
	cancelCtx   context.CancelFunc
}

// NewServer creates the gRPC server. It is not listening until Start.
func NewServer(appCtx context.Context, logger domain.Logger, cfgProvider config.Provider) *Server {
	gsrv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gsrv, hs)
	reflection.Register(gsrv)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(RelayServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	serverCtx, cancel := context.WithCancel(appCtx)
	return &Server{
		gsrv:        gsrv,
		health:      hs,
		logger:      logger,
		cfgProvider: cfgProvider,
		appCtx:      serverCtx,
		cancelCtx:   cancel,
	}
}

// Start listens on the configured port. A zero port returns ErrDisabled.
func (s *Server) Start() error {
	grpcPort := s.cfgProvider.Get().Server.GRPCPort
	if grpcPort == 0 {
		s.logger.Info(s.appCtx, "gRPC port is 0; gRPC health server will not start")
		return ErrDisabled
	}
	addr := fmt.Sprintf(":%d", grpcPort)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error(s.appCtx, "Failed to listen for gRPC", "address", addr, "error", err.Error())
		return fmt.Errorf("failed to listen for gRPC on %s: %w", addr, err)
	}
	s.logger.Info(s.appCtx, "gRPC server starting", "address", addr)
	s.Serve(lis)
	return nil
}

// Serve serves on lis in the background until GracefulStop or the app context ends.
func (s *Server) Serve(lis net.Listener) {
	s.SetServing(true)

	safego.Execute(s.appCtx, s.logger, "GRPCServerServe", func() {
		if err := s.gsrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error(s.appCtx, "gRPC server failed to serve", "error", err.Error())
		}
		s.cancelCtx()
	})

	safego.Execute(s.appCtx, s.logger, "GRPCServerContextWatcher", func() {
		<-s.appCtx.Done()
		s.health.Shutdown()
		s.gsrv.GracefulStop()
		s.logger.Info(context.Background(), "gRPC server gracefully stopped")
	})
}

// SetServing flips the reported status of both the server and the relay service.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(RelayServiceName, status)
}

// GracefulStop reports NOT_SERVING and stops accepting RPCs.
func (s *Server) GracefulStop() {
	s.cancelCtx()
}
