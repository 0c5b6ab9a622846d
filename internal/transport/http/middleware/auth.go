package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/infra/logger"
	"github.com/arklim/labsys-access/internal/infra/security"
	"github.com/arklim/labsys-access/internal/usecase"
)

const identityKey = "identity"

// ErrorResponse matches handlers.ErrorResponse.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, msg string) ErrorResponse {
	return ErrorResponse{Error: msg, TraceID: GetTraceID(c)}
}

// Authenticator resolves a bearer token to a live identity.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (domain.Identity, error)
}

// BearerToken extracts the token from an Authorization header value.
// It returns "" when the header is absent or not a bearer credential.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireAuth authenticates the request and stores the identity on the context.
// Every rejection is a 401; storage failures are a 500.
func RequireAuth(auth Authenticator, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))

		identity, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrUnauthenticated):
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "missing bearer token"))
			case errors.Is(err, security.ErrTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "token expired"))
			case errors.Is(err, usecase.ErrInvalidToken), errors.Is(err, usecase.ErrSubjectNotFound):
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "invalid token"))
			default:
				logger.WithContext(c.Request.Context(), log).Error("authenticate request failed", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "authentication failed"))
			}
			return
		}

		c.Set(identityKey, identity)
		GetRequestContext(c).UserID = identity.ID

		c.Next()
	}
}

// RequireRole allows the request only when the identity's role is listed.
// Roles are not hierarchical; list every role that may call the route.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	allowed := domain.NewRoleSet(roles...)

	return func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "authentication required"))
			return
		}

		if err := usecase.Authorize(identity, allowed); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, newErrorResponse(c, "insufficient role"))
			return
		}

		c.Next()
	}
}

// GetIdentity returns the identity stored by RequireAuth.
func GetIdentity(c *gin.Context) (domain.Identity, bool) {
	val, exists := c.Get(identityKey)
	if !exists {
		return domain.Identity{}, false
	}
	identity, ok := val.(domain.Identity)
	return identity, ok
}
