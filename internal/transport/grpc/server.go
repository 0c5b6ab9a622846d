package transportgrpc

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/arklim/labsys-access/internal/core/domain"
	grpcinterceptors "github.com/arklim/labsys-access/internal/transport/grpc/interceptors"
)

// ServerDependencies encapsulates services required by the gRPC server layer.
type ServerDependencies struct {
	Auth           grpcinterceptors.Authenticator
	Logger         *zap.Logger
	Registerer     prometheus.Registerer
	TracerProvider trace.TracerProvider
	// MethodRoles restricts methods to specific roles. Nil means
	// DefaultMethodRoles.
	MethodRoles map[string][]domain.Role
}

// DefaultMethodRoles declares the allowed roles of every access method.
// Both are open to any signed-in role.
func DefaultMethodRoles() map[string][]domain.Role {
	return map[string][]domain.Role{
		MethodWhoAmI:    domain.AllRoles(),
		MethodCheckRole: domain.AllRoles(),
	}
}

// publicMethods never require a bearer token.
var publicMethods = []string{
	"/grpc.health.v1.Health/Check",
	"/grpc.health.v1.Health/Watch",
	"/grpc.health.v1.Health/List",
}

// NewServer wires gRPC services with authentication enforced through interceptors.
// The returned health server is flipped to NOT_SERVING on shutdown.
func NewServer(deps ServerDependencies) (*grpc.Server, *health.Server, error) {
	if deps.Auth == nil {
		return nil, nil, fmt.Errorf("authenticator is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	metrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: deps.Registerer})
	if err != nil {
		return nil, nil, fmt.Errorf("grpc metrics: %w", err)
	}

	methodRoles := deps.MethodRoles
	if methodRoles == nil {
		methodRoles = DefaultMethodRoles()
	}

	authInterceptor := grpcinterceptors.NewAuthInterceptor(deps.Auth, grpcinterceptors.AuthOptions{
		Logger:       logger,
		AllowMethods: publicMethods,
		MethodRoles:  methodRoles,
	})

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			metrics.UnaryServerInterceptor(),
			authInterceptor.UnaryServerInterceptor(),
		),
	}
	if deps.TracerProvider != nil {
		opts = append(opts, grpcinterceptors.TracingServerOption(grpcinterceptors.TracingOptions{
			TracerProvider: deps.TracerProvider,
			SkipMethods:    publicMethods,
		}))
	}

	server := grpc.NewServer(opts...)

	RegisterAccessServiceServer(server, NewAccessServer())

	healthServer := health.NewServer()
	healthServer.SetServingStatus(accessServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	// Register reflection service for tools like grpcurl.
	reflection.Register(server)

	return server, healthServer, nil
}
