package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/core/port"
	"github.com/arklim/labsys-access/internal/infra/logger"
)

// AuditRecord describes one state change to append to the trail.
// Before and After are serialized as-is; nil means no snapshot.
type AuditRecord struct {
	Action   domain.AuditAction
	Table    string
	RecordID string
	Before   any
	After    any
	Origin   domain.Origin
}

// AuditService appends to and lists the audit trail.
type AuditService struct {
	repo    port.AuditRepository
	events  port.EventPublisher
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
	metrics AccessMetrics
}

// NewAuditService constructs the audit recorder. events may be nil.
func NewAuditService(repo port.AuditRepository, events port.EventPublisher) *AuditService {
	return &AuditService{
		repo:    repo,
		events:  publisherOrNil(events),
		logger:  zap.NewNop(),
		now:     time.Now,
		newID:   uuid.NewString,
		metrics: noopMetrics{},
	}
}

// publisherOrNil collapses a typed nil publisher into a nil interface so the
// nil checks before publishing hold.
func publisherOrNil(events port.EventPublisher) port.EventPublisher {
	if events == nil {
		return nil
	}
	if v := reflect.ValueOf(events); v.Kind() == reflect.Pointer && v.IsNil() {
		return nil
	}
	return events
}

// WithLogger attaches a structured logger.
func (s *AuditService) WithLogger(logger *zap.Logger) *AuditService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithNow overrides the clock.
func (s *AuditService) WithNow(now func() time.Time) *AuditService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithMetrics wires the audit failure counter.
func (s *AuditService) WithMetrics(metrics AccessMetrics) *AuditService {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// Record persists one entry and then publishes it. Publishing failures are
// logged and never surface to the caller.
func (s *AuditService) Record(ctx context.Context, rec AuditRecord) (domain.AuditEntry, error) {
	ctx, span := tracer.Start(ctx, "AuditService.Record",
		trace.WithAttributes(attribute.String("audit.action", string(rec.Action))))
	entry, err := s.record(ctx, rec)
	endSpan(span, err)
	return entry, err
}

func (s *AuditService) record(ctx context.Context, rec AuditRecord) (domain.AuditEntry, error) {
	if !rec.Action.Valid() {
		return domain.AuditEntry{}, invalidInput("unknown audit action %q", rec.Action)
	}
	table := strings.TrimSpace(rec.Table)
	if table == "" {
		return domain.AuditEntry{}, invalidInput("audit table is required")
	}

	before, err := snapshot(rec.Before)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("serialize before snapshot: %w", err)
	}
	after, err := snapshot(rec.After)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("serialize after snapshot: %w", err)
	}

	entry := domain.AuditEntry{
		ID:        s.newID(),
		ActorID:   rec.Origin.Actor(),
		Action:    rec.Action,
		TableName: table,
		Before:    before,
		After:     after,
		IP:        rec.Origin.IP,
		UserAgent: rec.Origin.UserAgent,
		CreatedAt: s.now().UTC(),
	}
	if rec.RecordID != "" {
		id := rec.RecordID
		entry.RecordID = &id
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		return domain.AuditEntry{}, fmt.Errorf("insert audit entry: %w", err)
	}

	if s.events != nil {
		event := domain.AuditRecordedEvent{
			EventID:    uuid.NewString(),
			EntryID:    entry.ID,
			ActorID:    entry.ActorID,
			Action:     entry.Action,
			TableName:  entry.TableName,
			RecordID:   entry.RecordID,
			IP:         entry.IP,
			RecordedAt: entry.CreatedAt,
		}
		if err := s.events.PublishAuditRecorded(ctx, event); err != nil {
			logger.WithContext(ctx, s.logger).Warn("publish audit event failed",
				zap.String("entry_id", entry.ID), zap.Error(err))
		}
	}

	return entry, nil
}

// RecordBestEffort appends an entry after a mutation has already committed.
// A failed write is logged and counted but never undoes the mutation.
func (s *AuditService) RecordBestEffort(ctx context.Context, rec AuditRecord) {
	if s == nil {
		return
	}
	if _, err := s.Record(ctx, rec); err != nil {
		s.metrics.AuditWriteFailed(string(rec.Action))
		logger.WithContext(ctx, s.logger).Error("audit write failed",
			zap.String("action", string(rec.Action)),
			zap.String("table", rec.Table),
			zap.String("record_id", rec.RecordID),
			zap.String("actor_id", rec.Origin.ActorID),
			zap.Error(err),
		)
	}
}

// List returns entries newest first.
func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	if filter.Action != "" && !filter.Action.Valid() {
		return nil, invalidInput("unknown audit action %q", filter.Action)
	}
	if filter.ActorID != "" {
		if _, err := uuid.Parse(filter.ActorID); err != nil {
			return nil, invalidInput("actor id %q is not a UUID", filter.ActorID)
		}
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, invalidInput("limit and offset must be non-negative")
	}
	if filter.Since != nil && filter.Until != nil && filter.Until.Before(*filter.Since) {
		return nil, invalidInput("until precedes since")
	}

	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

var jsonNull = []byte("null")

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return nil, nil
		}
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(data, jsonNull) {
		return nil, nil
	}
	return data, nil
}
