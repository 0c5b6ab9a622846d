package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/labsys-access/internal/core/domain"
)

// AuditService is the read side of usecase.AuditService.
type AuditService interface {
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
}

// AuditHandler exposes the audit trail to administrators. The trail is
// read-only over HTTP; entries are written by the services themselves.
type AuditHandler struct {
	audit  AuditService
	logger *zap.Logger
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audit AuditService, logger *zap.Logger) *AuditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditHandler{audit: audit, logger: logger}
}

// RegisterRoutes binds audit routes.
func (h *AuditHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
}

// list godoc
// @Summary Query the audit trail
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param actor_id query string false "Actor user ID"
// @Param action query string false "CREATE, UPDATE, DELETE, LOGIN, LOGOUT, PASSWORD_CHANGE or PASSWORD_RESET"
// @Param table query string false "Entity table"
// @Param record_id query string false "Entity ID"
// @Param since query string false "RFC3339 lower bound"
// @Param until query string false "RFC3339 upper bound"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} AuditListResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/audit [get]
func (h *AuditHandler) list(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}

	filter := domain.AuditFilter{
		ActorID:   c.Query("actor_id"),
		Action:    domain.AuditAction(c.Query("action")),
		TableName: c.Query("table"),
		RecordID:  c.Query("record_id"),
		Limit:     limit,
		Offset:    offset,
	}
	for param, dst := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, param+" must be an RFC3339 timestamp"))
			return
		}
		*dst = &ts
	}

	entries, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		RespondWithMappedError(c, h.logger, err, adminErrorCases, "failed to query audit trail")
		return
	}

	views := make([]AuditEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newAuditEntryView(e))
	}
	c.JSON(http.StatusOK, AuditListResponse{Entries: views, Limit: limit, Offset: offset})
}
