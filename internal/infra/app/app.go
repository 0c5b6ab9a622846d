package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/arklim/labsys-access/internal/infra/config"
	redisinfra "github.com/arklim/labsys-access/internal/infra/redis"
	"github.com/arklim/labsys-access/internal/infra/telemetry"
	redisrepo "github.com/arklim/labsys-access/internal/repository/redis"
	transportgrpc "github.com/arklim/labsys-access/internal/transport/grpc"
	"github.com/arklim/labsys-access/internal/transport/http/middleware"
	"github.com/arklim/labsys-access/internal/transport/http/routes"
)

// Application runs the HTTP API and, when enabled, the gRPC access service.
type Application struct {
	cfg        *config.AppConfig
	container  *Container
	engine     *gin.Engine
	logger     *zap.Logger
	redis      *redisinfra.Client
	tracer     *telemetry.TracerProvider
	grpcServer *grpc.Server
	grpcHealth *health.Server
	grpcAddr   string
}

// New wires every dependency. Resources acquired before a failure are released.
func New(ctx context.Context, cfg *config.AppConfig) (_ *Application, err error) {
	container, err := NewContainer(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	log := container.Logger

	a := &Application{cfg: cfg, container: container, logger: log}
	defer func() {
		if err != nil {
			a.release(context.Background())
		}
	}()

	var tracerProvider trace.TracerProvider
	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.tracer = tp
		tracerProvider = tp.TracerProvider()
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	a.redis = redisClient

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	keyPrefix := cfg.Redis.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "lab"
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: keyPrefix + ":rate-limit",
		TTL:       rateLimitWindow * 2,
	})

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	services := container.Services
	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: middleware.NewRateLimiter(rateLimitStore, log),
		Metrics:     httpMetrics,
		Database:    container.Pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:  services.Auth,
			Users: services.Users,
			Audit: services.Audit,
		},
	})

	if cfg.GRPC.Enabled {
		grpcSrv, grpcHealth, err := transportgrpc.NewServer(transportgrpc.ServerDependencies{
			Auth:           services.Auth,
			Logger:         log,
			TracerProvider: tracerProvider,
			MethodRoles:    transportgrpc.DefaultMethodRoles(),
		})
		if err != nil {
			return nil, fmt.Errorf("init grpc server: %w", err)
		}
		a.grpcServer = grpcSrv
		a.grpcHealth = grpcHealth
		a.grpcAddr = fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
	}

	return a, nil
}

// Run serves until ctx is cancelled or a server fails.
func (a *Application) Run(ctx context.Context) error {
	defer a.release(context.Background())

	grpcErrCh := make(chan error, 1)
	if a.grpcServer != nil {
		lis, err := net.Listen("tcp", a.grpcAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))
		go func() {
			if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				grpcErrCh <- fmt.Errorf("run grpc server: %w", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting access API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErrCh:
		return err
	case err := <-grpcErrCh:
		return err
	}

	a.logger.Info("shutting down")
	if a.grpcServer != nil {
		a.grpcHealth.Shutdown()
		a.grpcServer.GracefulStop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

func (a *Application) release(ctx context.Context) {
	if a.grpcServer != nil {
		a.grpcServer.Stop()
		a.grpcServer = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("failed to flush traces", zap.Error(err))
		}
		cancel()
		a.tracer = nil
	}
	if a.container != nil {
		a.container.Close()
		a.container = nil
	}
}
