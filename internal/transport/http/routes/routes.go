package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/infra/config"
	"github.com/arklim/labsys-access/internal/transport/http/handlers"
	"github.com/arklim/labsys-access/internal/transport/http/middleware"
)

// AuthService is satisfied by usecase.AuthService: it both logs users in and
// resolves bearer tokens for protected routes.
type AuthService interface {
	handlers.AuthService
	middleware.Authenticator
}

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth  AuthService
	Users handlers.UserService
	Audit handlers.AuditService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	Metrics     *middleware.HTTPMetrics
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Config == nil {
		deps.Config = &config.AppConfig{}
	}
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// ClientIP feeds the login limiter and the audit trail, so forwarded
	// headers only count when they come from a configured proxy.
	if err := r.SetTrustedProxies(deps.Config.App.TrustedProxies); err != nil {
		deps.Logger.Warn("invalid trusted proxies, using socket peer address", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.CORSAllowedOrigins))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Services.Auth == nil {
		return r
	}

	authMiddleware := middleware.RequireAuth(deps.Services.Auth, deps.Logger)
	adminOnly := middleware.RequireRole(domain.RoleAdministrator)

	api := r.Group("/api/v1")
	{
		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Logger)
		authHandler.RegisterRoutes(api.Group("/auth"), authMiddleware, buildLoginMiddlewares(deps)...)

		if deps.Services.Users != nil {
			usersGroup := api.Group("/users", authMiddleware, adminOnly)
			handlers.NewUserHandler(deps.Services.Users, deps.Logger).RegisterRoutes(usersGroup)
		}

		if deps.Services.Audit != nil {
			auditGroup := api.Group("/audit", authMiddleware, adminOnly)
			handlers.NewAuditHandler(deps.Services.Audit, deps.Logger).RegisterRoutes(auditGroup)
		}
	}

	return r
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       "auth_login_ip",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
