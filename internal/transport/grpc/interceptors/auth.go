package interceptors

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/infra/logger"
	"github.com/arklim/labsys-access/internal/infra/security"
	"github.com/arklim/labsys-access/internal/usecase"
)

const (
	authorizationKey = "authorization"
	bearerPrefix     = "bearer "
)

// Authenticator resolves a bearer token into the current identity.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (domain.Identity, error)
}

// AuthOptions fine-tunes interceptor behaviour.
type AuthOptions struct {
	// AllowMethods skip authentication entirely (health checks, reflection).
	AllowMethods []string
	// MethodRoles restricts a full method name to the listed roles.
	MethodRoles map[string][]domain.Role
	Logger      *zap.Logger
}

// AuthInterceptor authenticates incoming calls and enforces per-method roles.
type AuthInterceptor struct {
	auth   Authenticator
	logger *zap.Logger
	allow  map[string]struct{}
	roles  map[string]domain.RoleSet
}

// NewAuthInterceptor constructs a new AuthInterceptor instance.
func NewAuthInterceptor(auth Authenticator, opts AuthOptions) *AuthInterceptor {
	allow := make(map[string]struct{}, len(opts.AllowMethods))
	for _, method := range opts.AllowMethods {
		if method = strings.TrimSpace(method); method != "" {
			allow[method] = struct{}{}
		}
	}

	roles := make(map[string]domain.RoleSet, len(opts.MethodRoles))
	for method, allowed := range opts.MethodRoles {
		roles[method] = domain.NewRoleSet(allowed...)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &AuthInterceptor{auth: auth, logger: log, allow: allow, roles: roles}
}

// UnaryServerInterceptor returns a gRPC unary interceptor that enforces bearer authentication.
func (ai *AuthInterceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if ai == nil || ai.auth == nil {
			return handler(ctx, req)
		}

		if _, ok := ai.allow[info.FullMethod]; ok {
			return handler(ctx, req)
		}

		log := logger.WithContext(ctx, ai.logger).With(zap.String("method", info.FullMethod))

		token, err := tokenFromMetadata(ctx)
		if err != nil {
			log.Warn("gRPC authentication failed", zap.Error(err))
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		identity, err := ai.auth.Authenticate(ctx, token)
		if err != nil {
			switch {
			case errors.Is(err, security.ErrTokenExpired):
				log.Warn("gRPC token rejected", zap.Error(err))
				return nil, status.Error(codes.Unauthenticated, "token expired")
			case errors.Is(err, usecase.ErrInvalidToken), errors.Is(err, usecase.ErrSubjectNotFound), errors.Is(err, usecase.ErrUnauthenticated):
				log.Warn("gRPC token rejected", zap.Error(err))
				return nil, status.Error(codes.Unauthenticated, "invalid token")
			default:
				log.Error("gRPC authentication error", zap.Error(err))
				return nil, status.Error(codes.Internal, "authentication failed")
			}
		}

		if allowed, ok := ai.roles[info.FullMethod]; ok {
			if err := usecase.Authorize(identity, allowed); err != nil {
				log.Warn("gRPC call forbidden", zap.String("user_id", identity.ID), zap.String("role", string(identity.Role)))
				return nil, status.Error(codes.PermissionDenied, "insufficient role")
			}
		}

		return handler(WithIdentity(ctx, identity), req)
	}
}

type identityContextKey struct{}

// WithIdentity returns a derived context carrying identity.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the authenticated identity when available.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	if ctx == nil {
		return domain.Identity{}, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(domain.Identity)
	return identity, ok && identity.ID != ""
}

func tokenFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("missing metadata")
	}

	// metadata keys are lower-cased on the wire
	values := md.Get(authorizationKey)
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return "", errors.New("authorization token required")
	}

	value := strings.TrimSpace(values[0])
	if len(value) < len(bearerPrefix) || !strings.HasPrefix(strings.ToLower(value), bearerPrefix) {
		return "", errors.New("invalid authorization header")
	}

	token := strings.TrimSpace(value[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("authorization token required")
	}

	return token, nil
}
