package handlers

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/transport/http/middleware"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with the request's trace ID.
func NewErrorResponse(c *gin.Context, msg string) ErrorResponse {
	return ErrorResponse{Error: msg, TraceID: middleware.GetTraceID(c)}
}

// LockedResponse is returned with 423 while an account lock is in force.
type LockedResponse struct {
	Error       string    `json:"error"`
	LockedUntil time.Time `json:"locked_until"`
	TraceID     string    `json:"trace_id,omitempty"`
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// IdentityView is the public view of an authenticated user.
type IdentityView struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Role  domain.Role `json:"role"`
}

func newIdentityView(identity domain.Identity) IdentityView {
	return IdentityView{ID: identity.ID, Email: identity.Email, Name: identity.Name, Role: identity.Role}
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned on a successful login.
type LoginResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      IdentityView `json:"user"`
}

// ChangePasswordRequest is the self-service password change payload.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// UserView is the administrator view of a user. It never includes the hash.
type UserView struct {
	ID             string            `json:"id"`
	Email          string            `json:"email"`
	Name           string            `json:"name"`
	Role           domain.Role       `json:"role"`
	Status         domain.UserStatus `json:"status"`
	FailedAttempts int               `json:"failed_attempts"`
	LockUntil      *time.Time        `json:"lock_until,omitempty"`
	LastLogin      *time.Time        `json:"last_login,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func newUserView(u domain.User) UserView {
	return UserView{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Role:           u.Role,
		Status:         u.Status,
		FailedAttempts: u.FailedAttempts,
		LockUntil:      u.LockUntil,
		LastLogin:      u.LastLogin,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

// CreateUserRequest is the administrator payload for adding a user.
type CreateUserRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateUserRequest carries optional edits; omitted fields are unchanged.
type UpdateUserRequest struct {
	Name   *string `json:"name"`
	Role   *string `json:"role"`
	Status *string `json:"status"`
}

// ResetPasswordRequest is the administrator password reset payload.
type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// UserListResponse wraps a page of users.
type UserListResponse struct {
	Users  []UserView `json:"users"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// AuditEntryView is the API view of an audit entry.
type AuditEntryView struct {
	ID        string             `json:"id"`
	ActorID   *string            `json:"actor_id"`
	Action    domain.AuditAction `json:"action"`
	TableName string             `json:"table_name"`
	RecordID  *string            `json:"record_id"`
	Before    json.RawMessage    `json:"before,omitempty"`
	After     json.RawMessage    `json:"after,omitempty"`
	IP        string             `json:"ip,omitempty"`
	UserAgent string             `json:"user_agent,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

func newAuditEntryView(e domain.AuditEntry) AuditEntryView {
	return AuditEntryView{
		ID:        e.ID,
		ActorID:   e.ActorID,
		Action:    e.Action,
		TableName: e.TableName,
		RecordID:  e.RecordID,
		Before:    e.Before,
		After:     e.After,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		CreatedAt: e.CreatedAt,
	}
}

// AuditListResponse wraps a page of audit entries.
type AuditListResponse struct {
	Entries []AuditEntryView `json:"entries"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse is returned by /readyz.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
