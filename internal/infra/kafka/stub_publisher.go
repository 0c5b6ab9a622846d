package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/core/port"
	"github.com/arklim/labsys-access/internal/infra/logger"
)

// StubPublisher logs events instead of producing them. Used when no brokers
// are configured or the producer cannot connect.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a logging event publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &StubPublisher{logger: log}
}

// PublishAuditRecorded logs the audit event.
func (p *StubPublisher) PublishAuditRecorded(ctx context.Context, event domain.AuditRecordedEvent) error {
	logger.WithContext(ctx, p.logger).Debug("stub event published",
		zap.String("event_type", eventAuditRecorded),
		zap.String("entry_id", event.EntryID),
		zap.String("action", string(event.Action)),
		zap.String("table", event.TableName),
		zap.Time("recorded_at", event.RecordedAt.UTC()),
	)
	return nil
}

// PublishAccountLocked logs the lock event.
func (p *StubPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	logger.WithContext(ctx, p.logger).Info("stub event published",
		zap.String("event_type", eventAccountLocked),
		zap.String("user_id", event.UserID),
		zap.String("email", logger.MaskEmail(event.Email)),
		zap.Int("attempts", event.Attempts),
		zap.Time("locked_until", event.LockedUntil.UTC()),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
