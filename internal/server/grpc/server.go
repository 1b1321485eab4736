package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/vault"
	"github.com/dmitrijs2005/gophvault/internal/vault/ledger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type GRPCServer struct {
	address   string
	vault     *vault.Vault
	ledger    *ledger.Ledger
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, v *vault.Vault, lg *ledger.Ledger, secretKey string) (*GRPCServer, error) {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		vault:     v,
		ledger:    lg,
		jwtSecret: []byte(secretKey),
	}, nil
}

// newServer builds the gRPC server with every service registered.
func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.accessTokenStreamInterceptor),
	)

	srv.RegisterService(&vaultServiceDesc, s)
	srv.RegisterService(&billingServiceDesc, s)

	hs := health.NewServer()
	hs.SetServingStatus(vaultServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(billingServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on l until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, l net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", l.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(l); err != nil {
		return err
	}

	return nil
}
