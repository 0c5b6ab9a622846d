package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/core/port"
)

func newTestAuditService(repo *recordingAuditRepo, events *recordingPublisher) *AuditService {
	var publisher port.EventPublisher
	if events != nil {
		publisher = events
	}
	svc := NewAuditService(repo, publisher).
		WithNow(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) })
	svc.newID = func() string { return "entry-1" }
	return svc
}

func TestAuditRecordSerializesSnapshots(t *testing.T) {
	repo := &recordingAuditRepo{}
	events := &recordingPublisher{}
	svc := newTestAuditService(repo, events)

	before := domain.UserSnapshot{ID: "user-1", Name: "Old", Role: domain.RoleCustomer, Status: domain.UserStatusActive}
	after := before
	after.Name = "New"

	entry, err := svc.Record(context.Background(), AuditRecord{
		Action:   domain.AuditActionUpdate,
		Table:    domain.TableUsers,
		RecordID: "user-1",
		Before:   before,
		After:    after,
		Origin:   domain.Origin{ActorID: "admin-1", IP: "10.0.0.9", UserAgent: "curl/8"},
	})
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	if entry.ID != "entry-1" || entry.CreatedAt != time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) {
		t.Fatalf("unexpected entry identity: %+v", entry)
	}
	if entry.ActorID == nil || *entry.ActorID != "admin-1" {
		t.Fatalf("unexpected actor: %v", entry.ActorID)
	}

	var decoded domain.UserSnapshot
	if err := json.Unmarshal(entry.After, &decoded); err != nil {
		t.Fatalf("after snapshot not valid JSON: %v", err)
	}
	if decoded.Name != "New" {
		t.Fatalf("unexpected after snapshot: %+v", decoded)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected one persisted entry, got %d", len(repo.entries))
	}
	if len(events.audits) != 1 || events.audits[0].EntryID != "entry-1" {
		t.Fatalf("expected audit event for entry-1, got %+v", events.audits)
	}
}

func TestAuditRecordSystemActionAndNilSnapshots(t *testing.T) {
	repo := &recordingAuditRepo{}
	svc := newTestAuditService(repo, nil)

	var missing *domain.UserSnapshot
	entry, err := svc.Record(context.Background(), AuditRecord{
		Action: domain.AuditActionCreate,
		Table:  "certificates",
		Before: missing,
		After:  json.RawMessage(`{"number":"C-1"}`),
	})
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if entry.ActorID != nil || entry.RecordID != nil {
		t.Fatalf("expected null actor and record, got %+v", entry)
	}
	if entry.Before != nil {
		t.Fatalf("typed nil snapshot should be stored as null, got %s", entry.Before)
	}
	if string(entry.After) != `{"number":"C-1"}` {
		t.Fatalf("raw snapshot altered: %s", entry.After)
	}
}

func TestAuditRecordValidates(t *testing.T) {
	svc := newTestAuditService(&recordingAuditRepo{}, nil)

	if _, err := svc.Record(context.Background(), AuditRecord{Action: "ERASE", Table: "users"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown action, got %v", err)
	}
	if _, err := svc.Record(context.Background(), AuditRecord{Action: domain.AuditActionCreate}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing table, got %v", err)
	}
}

func TestAuditPublishFailureDoesNotFailRecord(t *testing.T) {
	repo := &recordingAuditRepo{}
	svc := newTestAuditService(repo, &recordingPublisher{failAll: true})

	if _, err := svc.Record(context.Background(), AuditRecord{Action: domain.AuditActionDelete, Table: "users"}); err != nil {
		t.Fatalf("publish failure must not fail Record, got %v", err)
	}
	if len(repo.entries) != 1 {
		t.Fatal("entry should still be persisted")
	}
}

func TestAuditRecordBestEffortLogsFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	metrics := newCountingMetrics()
	repo := &recordingAuditRepo{err: errors.New("disk full")}
	svc := newTestAuditService(repo, nil).WithLogger(zap.New(core)).WithMetrics(metrics)

	svc.RecordBestEffort(context.Background(), AuditRecord{
		Action:   domain.AuditActionUpdate,
		Table:    "users",
		RecordID: "user-9",
	})

	if logs.Len() != 1 {
		t.Fatalf("expected one error log, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["record_id"]; got != "user-9" {
		t.Fatalf("expected record_id field, got %v", got)
	}
	if metrics.auditFails != 1 {
		t.Fatalf("expected audit failure metric, got %d", metrics.auditFails)
	}
}

func TestAuditListValidatesFilter(t *testing.T) {
	repo := &recordingAuditRepo{}
	svc := newTestAuditService(repo, nil)
	ctx := context.Background()

	if _, err := svc.List(ctx, domain.AuditFilter{Action: "BOGUS"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.List(ctx, domain.AuditFilter{ActorID: "abc"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for non-UUID actor, got %v", err)
	}
	if _, err := svc.List(ctx, domain.AuditFilter{ActorID: "6f1c2a7e-3b7d-4c61-9a0e-2d5f8b1c4e90"}); err != nil {
		t.Fatalf("UUID actor rejected: %v", err)
	}
	since := time.Now()
	until := since.Add(-time.Hour)
	if _, err := svc.List(ctx, domain.AuditFilter{Since: &since, Until: &until}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for inverted range, got %v", err)
	}

	if _, err := svc.List(ctx, domain.AuditFilter{Action: domain.AuditActionLogin, Limit: 20}); err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if repo.filter.Action != domain.AuditActionLogin || repo.filter.Limit != 20 {
		t.Fatalf("filter not forwarded: %+v", repo.filter)
	}
}

func TestServicesTreatTypedNilPublisherAsAbsent(t *testing.T) {
	var events *recordingPublisher

	audit := NewAuditService(&recordingAuditRepo{}, events)
	if audit.events != nil {
		t.Fatal("audit service kept a typed nil publisher")
	}
	if _, err := audit.Record(context.Background(), AuditRecord{
		Action: domain.AuditActionCreate,
		Table:  domain.TableUsers,
	}); err != nil {
		t.Fatalf("Record with typed nil publisher: %v", err)
	}

	auth := NewAuthService(newMemoryUserRepo(), nil, plainHasher{}, audit, events, domain.DefaultLockoutPolicy())
	if auth.events != nil {
		t.Fatal("auth service kept a typed nil publisher")
	}
}
