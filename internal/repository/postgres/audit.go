package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/core/port"
)

const (
	auditTable        = "lab.audit_log"
	defaultAuditLimit = 100
	maxAuditLimit     = 500
)

// AuditRepository appends to lab.audit_log. Rows are never updated or deleted;
// seq is a BIGSERIAL that breaks created_at ties in insertion order.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Insert appends one entry.
func (r *AuditRepository) Insert(ctx context.Context, entry domain.AuditEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("audit entry id is required")
	}
	if !entry.Action.Valid() {
		return fmt.Errorf("audit action %q is not recognized", entry.Action)
	}
	if entry.TableName == "" {
		return fmt.Errorf("audit table name is required")
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	stmt, args, err := r.builder.Insert(auditTable).
		Columns(
			"id",
			"actor_id",
			"action",
			"table_name",
			"record_id",
			"before_data",
			"after_data",
			"ip",
			"user_agent",
			"created_at",
		).
		Values(
			entry.ID,
			optionalString(entry.ActorID),
			string(entry.Action),
			entry.TableName,
			optionalString(entry.RecordID),
			optionalJSON(entry.Before),
			optionalJSON(entry.After),
			entry.IP,
			entry.UserAgent,
			createdAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit entry sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns entries newest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	query := r.builder.Select(
		"id",
		"seq",
		"actor_id",
		"action",
		"table_name",
		"record_id",
		"before_data",
		"after_data",
		"ip",
		"user_agent",
		"created_at",
	).
		From(auditTable).
		OrderBy("created_at DESC", "seq DESC")

	if filter.ActorID != "" {
		query = query.Where(squirrel.Eq{"actor_id": filter.ActorID})
	}
	if filter.Action != "" {
		query = query.Where(squirrel.Eq{"action": string(filter.Action)})
	}
	if filter.TableName != "" {
		query = query.Where(squirrel.Eq{"table_name": filter.TableName})
	}
	if filter.RecordID != "" {
		query = query.Where(squirrel.Eq{"record_id": filter.RecordID})
	}
	if filter.Since != nil {
		query = query.Where(squirrel.GtOrEq{"created_at": filter.Since.UTC()})
	}
	if filter.Until != nil {
		query = query.Where(squirrel.Lt{"created_at": filter.Until.UTC()})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	query = query.Limit(uint64(limit))
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var (
			entry    domain.AuditEntry
			actorID  sql.NullString
			action   string
			recordID sql.NullString
			before   []byte
			after    []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Seq,
			&actorID,
			&action,
			&entry.TableName,
			&recordID,
			&before,
			&after,
			&entry.IP,
			&entry.UserAgent,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ActorID = nullableStringPtr(actorID)
		entry.Action = domain.AuditAction(action)
		entry.RecordID = nullableStringPtr(recordID)
		entry.Before = before
		entry.After = after
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
