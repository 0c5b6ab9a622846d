package domain

import "time"

// AuditRecordedEvent represents the payload for lab.audit.recorded messages.
type AuditRecordedEvent struct {
	EventID    string
	EntryID    string
	ActorID    *string
	Action     AuditAction
	TableName  string
	RecordID   *string
	IP         string
	RecordedAt time.Time
}

// AccountLockedEvent represents the payload for lab.account.locked messages.
// Consumers use it to notify the account owner by email.
type AccountLockedEvent struct {
	EventID     string
	UserID      string
	Email       string
	Attempts    int
	LockedUntil time.Time
	IP          string
	LockedAt    time.Time
}
