package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/labsys-access/internal/core/domain"
	"github.com/arklim/labsys-access/internal/core/port"
	"github.com/arklim/labsys-access/internal/infra/config"
)

const (
	schemaVersion = "1.0"

	eventAuditRecorded = "audit.recorded"
	eventAccountLocked = "account.locked"

	defaultEnqueueTimeout = 100 * time.Millisecond
)

// ErrProducerBusy is returned when the producer buffer stayed full for the
// whole enqueue timeout. The event is dropped.
var ErrProducerBusy = errors.New("kafka producer buffer full")

// EventPublisher implements port.EventPublisher on top of Kafka.
type EventPublisher struct {
	producer       *Producer
	logger         *zap.Logger
	appCfg         config.AppSettings
	enqueueTimeout time.Duration
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{
		producer:       producer,
		appCfg:         appCfg,
		logger:         logger,
		enqueueTimeout: defaultEnqueueTimeout,
	}
}

// WithEnqueueTimeout bounds how long a publish waits for buffer space.
func (p *EventPublisher) WithEnqueueTimeout(d time.Duration) *EventPublisher {
	if d > 0 {
		p.enqueueTimeout = d
	}
	return p
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	Subject   string            `json:"subject,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, subject string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := map[string]string{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	topic := p.producer.TopicName(eventType)
	body, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: topic,
		Subject:   subject,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(body),
	}
	if subject != "" {
		message.Key = sarama.StringEncoder(subject)
	}

	// Callers publish inline with their request; a stalled broker must not
	// hold them for longer than the enqueue timeout.
	timer := time.NewTimer(p.enqueueTimeout)
	defer timer.Stop()

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		p.producer.dropped(topic, DropReasonBufferFull)
		p.logger.Warn("kafka producer buffer full, dropping event",
			zap.String("topic", topic),
			zap.String("event_id", eventID),
			zap.Duration("waited", p.enqueueTimeout),
		)
		return ErrProducerBusy
	}
}

type auditRecordedPayload struct {
	EntryID    string    `json:"entry_id"`
	ActorID    *string   `json:"actor_id"`
	Action     string    `json:"action"`
	TableName  string    `json:"table_name"`
	RecordID   *string   `json:"record_id"`
	IP         string    `json:"ip,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// PublishAuditRecorded emits <prefix>.audit.recorded keyed by table name.
func (p *EventPublisher) PublishAuditRecorded(ctx context.Context, event domain.AuditRecordedEvent) error {
	payload := auditRecordedPayload{
		EntryID:    event.EntryID,
		ActorID:    event.ActorID,
		Action:     string(event.Action),
		TableName:  event.TableName,
		RecordID:   event.RecordID,
		IP:         event.IP,
		RecordedAt: event.RecordedAt.UTC(),
	}
	return p.publish(ctx, event.EventID, eventAuditRecorded, event.TableName, event.RecordedAt, payload)
}

type accountLockedPayload struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	Attempts    int       `json:"attempts"`
	LockedUntil time.Time `json:"locked_until"`
	IP          string    `json:"ip,omitempty"`
	LockedAt    time.Time `json:"locked_at"`
}

// PublishAccountLocked emits <prefix>.account.locked keyed by user id.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := accountLockedPayload{
		UserID:      event.UserID,
		Email:       event.Email,
		Attempts:    event.Attempts,
		LockedUntil: event.LockedUntil.UTC(),
		IP:          event.IP,
		LockedAt:    event.LockedAt.UTC(),
	}
	return p.publish(ctx, event.EventID, eventAccountLocked, event.UserID, event.LockedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
