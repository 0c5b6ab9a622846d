package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/core/port"
	"github.com/arklim/labsys-access/internal/transport/http/middleware"
	"github.com/arklim/labsys-access/internal/usecase"
)

// UserService is the subset of usecase.UserService used by UserHandler.
type UserService interface {
	Create(ctx context.Context, in usecase.CreateUserInput, origin domain.Origin) (domain.User, error)
	Get(ctx context.Context, id string) (domain.User, error)
	List(ctx context.Context, filter port.UserFilter) ([]domain.User, error)
	Update(ctx context.Context, id string, in usecase.UpdateUserInput, origin domain.Origin) (domain.User, error)
	Deactivate(ctx context.Context, id string, origin domain.Origin) (domain.User, error)
	ResetPassword(ctx context.Context, id, password string, origin domain.Origin) error
}

// UserHandler exposes administrator user management.
type UserHandler struct {
	users  UserService
	logger *zap.Logger
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(users UserService, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{users: users, logger: logger}
}

// RegisterRoutes binds user management routes. Callers are expected to
// guard the group with authentication and the administrator role.
func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.create)
	r.GET("", h.list)
	r.GET("/:id", h.get)
	r.PATCH("/:id", h.update)
	r.DELETE("/:id", h.deactivate)
	r.POST("/:id/password", h.resetPassword)
}

// create godoc
// @Summary Create a user
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateUserRequest true "New user"
// @Success 201 {object} UserView
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/users [post]
func (h *UserHandler) create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email, name, role and password are required"))
		return
	}

	user, err := h.users.Create(c.Request.Context(), usecase.CreateUserInput{
		Email:    req.Email,
		Name:     req.Name,
		Role:     domain.Role(strings.TrimSpace(req.Role)),
		Password: req.Password,
	}, middleware.Origin(c))
	if err != nil {
		RespondWithMappedError(c, h.logger, err, adminErrorCases, "failed to create user")
		return
	}
	c.JSON(http.StatusCreated, newUserView(user))
}

// list godoc
// @Summary List users
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param role query string false "Role filter"
// @Param status query string false "Status filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} UserListResponse
// @Router /api/v1/users [get]
func (h *UserHandler) list(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}
	filter := port.UserFilter{
		Role:   domain.Role(c.Query("role")),
		Status: domain.UserStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	}

	users, err := h.users.List(c.Request.Context(), filter)
	if err != nil {
		RespondWithMappedError(c, h.logger, err, adminErrorCases, "failed to list users")
		return
	}

	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, newUserView(u))
	}
	c.JSON(http.StatusOK, UserListResponse{Users: views, Limit: limit, Offset: offset})
}

// get godoc
// @Summary Get a user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} UserView
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id} [get]
func (h *UserHandler) get(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, h.logger, err, adminErrorCases, "failed to load user")
		return
	}
	c.JSON(http.StatusOK, newUserView(user))
}

// update godoc
// @Summary Update name, role or status
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body UpdateUserRequest true "Fields to change"
// @Success 200 {object} UserView
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id} [patch]
func (h *UserHandler) update(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid update payload"))
		return
	}

	in := usecase.UpdateUserInput{Name: req.Name}
	if req.Role != nil {
		role := domain.Role(strings.TrimSpace(*req.Role))
		in.Role = &role
	}
	if req.Status != nil {
		status := domain.UserStatus(strings.TrimSpace(*req.Status))
		in.Status = &status
	}

	user, err := h.users.Update(c.Request.Context(), c.Param("id"), in, middleware.Origin(c))
	if err != nil {
		RespondWithMappedError(c, h.logger, err, adminErrorCases, "failed to update user")
		return
	}
	c.JSON(http.StatusOK, newUserView(user))
}

// deactivate godoc
// @Summary Deactivate a user
// @Description Users are never hard-deleted; their audit history stays attributable.
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} UserView
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id} [delete]
func (h *UserHandler) deactivate(c *gin.Context) {
	user, err := h.users.Deactivate(c.Request.Context(), c.Param("id"), middleware.Origin(c))
	if err != nil {
		RespondWithMappedError(c, h.logger, err, adminErrorCases, "failed to deactivate user")
		return
	}
	c.JSON(http.StatusOK, newUserView(user))
}

// resetPassword godoc
// @Summary Set a new password for a user
// @Description Also clears any active lock.
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body ResetPasswordRequest true "New password"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id}/password [post]
func (h *UserHandler) resetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "password is required"))
		return
	}

	if err := h.users.ResetPassword(c.Request.Context(), c.Param("id"), req.Password, middleware.Origin(c)); err != nil {
		RespondWithMappedError(c, h.logger, err, adminErrorCases, "failed to reset password")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "password reset"})
}

// pagination reads limit and offset, writing 400 on malformed values.
func pagination(c *gin.Context) (int, int, bool) {
	limit, offset := 0, 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "limit must be a non-negative integer"))
			return 0, 0, false
		}
		limit = v
	}
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "offset must be a non-negative integer"))
			return 0, 0, false
		}
		offset = v
	}
	return limit, offset, true
}
