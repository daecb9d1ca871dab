// Package events records the append-only audit trail and publishes each
// audit event to Kafka for downstream consumers.
package events

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appcontext "github.com/mmtuentertainment/apmatch/pkg/context"
	"github.com/mmtuentertainment/apmatch/pkg/kafka"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

// AuditStore persists audit events durably
type AuditStore interface {
	Create(ctx context.Context, event *models.AuditEvent) (*models.AuditEvent, error)
}

// Publisher pushes audit events onto the reconciliation topic
type Publisher interface {
	PublishReconciliationEvent(ctx context.Context, event *kafka.ReconciliationEvent) error
}

// Emitter writes every audit event to the database first, then publishes it
// to Kafka. The database write is the source of truth; a publish failure is
// logged and swallowed so a broker outage never blocks reconciliation.
type Emitter struct {
	store     AuditStore
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new audit event emitter
func NewEmitter(store AuditStore, publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Emit records an audit event. The correlation ID is taken from the request
// context when present so all events of one operation can be joined.
func (e *Emitter) Emit(ctx context.Context, event *models.AuditEvent) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.Emit")
	defer span.End()

	if event.CorrelationID == "" {
		if correlationID := appcontext.GetCorrelationID(ctx); correlationID != "" {
			event.CorrelationID = correlationID
		} else {
			event.CorrelationID = uuid.New().String()
		}
	}
	if event.Actor == "" {
		if userID := appcontext.GetUserID(ctx); userID != "" {
			event.Actor = userID
		} else {
			event.Actor = "system"
		}
	}

	stored, err := e.store.Create(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to persist audit event: %w", err)
	}

	wire := &kafka.ReconciliationEvent{
		EventType:     stored.EventType,
		TenantID:      stored.TenantID,
		InvoiceID:     stored.InvoiceID,
		POID:          stored.POID,
		ReceiptID:     stored.ReceiptID,
		MatchResultID: stored.MatchResultID,
		ExceptionID:   stored.ExceptionID,
		Before:        stored.Before.GetValue(),
		After:         stored.After.GetValue(),
		LatencyMillis: stored.LatencyMillis,
		Actor:         stored.Actor,
		CorrelationID: stored.CorrelationID,
	}

	if err := e.publisher.PublishReconciliationEvent(ctx, wire); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": stored.EventType,
		}).Error("Failed to publish audit event, database record kept")
	}

	return nil
}
