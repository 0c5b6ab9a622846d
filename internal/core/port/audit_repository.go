package port

import (
	"context"

	"github.com/arklim/labsys-access/internal/core/domain"
)

// AuditRepository appends to and reads the audit trail. There is no update or delete.
type AuditRepository interface {
	Insert(ctx context.Context, entry domain.AuditEntry) error
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
}
