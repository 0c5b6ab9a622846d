package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/core/port"
	"github.com/arklim/labsys-access/internal/infra/config"
	"github.com/arklim/labsys-access/internal/infra/database"
	kafkainfra "github.com/arklim/labsys-access/internal/infra/kafka"
	"github.com/arklim/labsys-access/internal/infra/logger"
	"github.com/arklim/labsys-access/internal/infra/security"
	"github.com/arklim/labsys-access/internal/infra/telemetry"
	postgresrepo "github.com/arklim/labsys-access/internal/repository/postgres"
	"github.com/arklim/labsys-access/internal/usecase"
)

// Services groups the use cases shared by the API server and the admin CLI.
type Services struct {
	Auth  *usecase.AuthService
	Users *usecase.UserService
	Audit *usecase.AuditService
}

// Container owns the long-lived infrastructure behind Services.
type Container struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Pool     *pgxpool.Pool
	Metrics  *telemetry.AccessMetrics
	Services Services

	producer *kafkainfra.Producer
}

// NewContainer connects to PostgreSQL, picks an event publisher and builds
// the use cases. registerer may be nil for the default Prometheus registry.
func NewContainer(ctx context.Context, cfg *config.AppConfig, registerer prometheus.Registerer) (*Container, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics, err := telemetry.NewAccessMetrics(telemetry.AccessMetricsOptions{Registerer: registerer})
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if argonCfg == (security.Argon2Config{}) {
		argonCfg = security.DefaultArgon2Config()
	}
	hasher, err := security.NewPasswordHasher(argonCfg)
	if err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	codec, err := security.NewTokenCodec(cfg.Security.Secret,
		security.WithTokenTTL(cfg.Security.TokenTTL()),
		security.WithIssuer(cfg.Security.Issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("init token codec: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	c := &Container{Config: cfg, Logger: log, Pool: pool, Metrics: metrics}

	var events port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log, metrics)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			events = kafkainfra.NewStubPublisher(log)
		} else {
			c.producer = producer
			events = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		events = kafkainfra.NewStubPublisher(log)
	}

	repos := postgresrepo.NewRepositories(pool)
	passwordPolicy := security.NewPasswordPolicy(security.PasswordPolicyConfig{
		MinLength:           cfg.Password.MinLength,
		MinCharacterClasses: cfg.Password.MinCharacterClasses,
		MinStrengthScore:    cfg.Password.MinStrengthScore,
	})
	lockout := domain.LockoutPolicy{
		Threshold: cfg.Security.FailureThreshold,
		Duration:  cfg.Security.LockoutDuration(),
	}

	audit := usecase.NewAuditService(repos.Audit, events).
		WithLogger(log).
		WithMetrics(metrics)
	c.Services = Services{
		Audit: audit,
		Auth: usecase.NewAuthService(repos.Users, codec, hasher, audit, events, lockout).
			WithLogger(log).
			WithMetrics(metrics).
			WithPasswordPolicy(passwordPolicy),
		Users: usecase.NewUserService(repos.Users, hasher, passwordPolicy, audit).
			WithLogger(log),
	}

	return c, nil
}

// Close releases the producer and the pool.
func (c *Container) Close() {
	if c.producer != nil {
		if err := c.producer.Close(); err != nil {
			c.Logger.Warn("failed to close kafka producer", zap.Error(err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
	_ = c.Logger.Sync()
}
