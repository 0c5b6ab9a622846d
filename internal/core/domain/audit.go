package domain

import (
	"encoding/json"
	"time"
)

// AuditAction is the verb recorded on an audit entry.
type AuditAction string

const (
	AuditActionCreate         AuditAction = "CREATE"
	AuditActionUpdate         AuditAction = "UPDATE"
	AuditActionDelete         AuditAction = "DELETE"
	AuditActionLogin          AuditAction = "LOGIN"
	AuditActionLogout         AuditAction = "LOGOUT"
	AuditActionPasswordChange AuditAction = "PASSWORD_CHANGE"
	AuditActionPasswordReset  AuditAction = "PASSWORD_RESET"
)

// Valid reports whether a is one of the recorded verbs.
func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionCreate, AuditActionUpdate, AuditActionDelete, AuditActionLogin,
		AuditActionLogout, AuditActionPasswordChange, AuditActionPasswordReset:
		return true
	}
	return false
}

// TableUsers is the entity name used for user mutations and logins.
const TableUsers = "users"

// AuditEntry is an immutable row of the audit trail. Snapshots are opaque
// serialized payloads; nothing interprets them at write time.
type AuditEntry struct {
	ID        string
	Seq       int64
	ActorID   *string
	Action    AuditAction
	TableName string
	RecordID  *string
	Before    json.RawMessage
	After     json.RawMessage
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// AuditFilter narrows audit listings. Zero values match everything.
type AuditFilter struct {
	ActorID   string
	Action    AuditAction
	TableName string
	RecordID  string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// UserSnapshot is the serialized view of a user stored in audit snapshots.
// It never carries the password hash.
type UserSnapshot struct {
	ID     string     `json:"id"`
	Email  string     `json:"email"`
	Name   string     `json:"name"`
	Role   Role       `json:"role"`
	Status UserStatus `json:"status"`
}

// Snapshot returns the audit view of u.
func (u User) Snapshot() UserSnapshot {
	return UserSnapshot{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, Status: u.Status}
}

// Origin identifies who performed an action and from where.
// An empty ActorID denotes a system action.
type Origin struct {
	ActorID   string
	IP        string
	UserAgent string
}

// Actor returns the actor id as stored on audit entries.
func (o Origin) Actor() *string {
	if o.ActorID == "" {
		return nil
	}
	id := o.ActorID
	return &id
}
