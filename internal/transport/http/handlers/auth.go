package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/transport/http/middleware"
	"github.com/arklim/labsys-access/internal/usecase"
)

// AuthService is the subset of usecase.AuthService used by AuthHandler.
type AuthService interface {
	Login(ctx context.Context, in usecase.LoginInput) (usecase.LoginResult, error)
	Logout(ctx context.Context, identity domain.Identity, origin domain.Origin)
	ChangePassword(ctx context.Context, identity domain.Identity, current, next string, origin domain.Origin) error
}

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth   AuthService
	logger *zap.Logger
	now    func() time.Time
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth AuthService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{auth: auth, logger: logger, now: time.Now}
}

// RegisterRoutes binds authentication routes. loginMiddlewares run ahead of
// the login handler; authMiddleware guards every other route.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, authMiddleware gin.HandlerFunc, loginMiddlewares ...gin.HandlerFunc) {
	loginHandlers := append([]gin.HandlerFunc{}, loginMiddlewares...)
	loginHandlers = append(loginHandlers, h.login)
	r.POST("/login", loginHandlers...)

	r.POST("/logout", authMiddleware, h.logout)
	r.GET("/me", authMiddleware, h.me)
	r.POST("/password", authMiddleware, h.changePassword)
}

// login godoc
// @Summary Authenticate with email and password
// @Description Issues a bearer token valid for 24 hours. Three consecutive failures lock the account for 15 minutes.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 423 {object} LockedResponse
// @Failure 429 {object} middleware.RateLimitResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email and password are required"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Origin:   middleware.Origin(c),
	})
	if err != nil {
		h.respondLoginError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     result.Token,
		TokenType: "Bearer",
		ExpiresAt: result.ExpiresAt.UTC(),
		User:      newIdentityView(result.Identity),
	})
}

func (h *AuthHandler) respondLoginError(c *gin.Context, err error) {
	var locked *usecase.AccountLockedError
	if errors.As(err, &locked) {
		respondLocked(c, locked, h.now())
		return
	}
	RespondWithMappedError(c, h.logger, err, loginErrorCases, "login failed")
}

// logout godoc
// @Summary Record a logout
// @Description Tokens are stateless; the client discards its token and the logout is audited.
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}
	h.auth.Logout(c.Request.Context(), identity, middleware.Origin(c))
	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// me godoc
// @Summary Current identity
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} IdentityView
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) me(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}
	c.JSON(http.StatusOK, newIdentityView(identity))
}

// changePassword godoc
// @Summary Change own password
// @Tags Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ChangePasswordRequest true "Current and new password"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/password [post]
func (h *AuthHandler) changePassword(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "current_password and new_password are required"))
		return
	}

	err := h.auth.ChangePassword(c.Request.Context(), identity, req.CurrentPassword, req.NewPassword, middleware.Origin(c))
	if err != nil {
		RespondWithMappedError(c, h.logger, err, passwordChangeErrorCases, "password change failed")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "password updated"})
}
