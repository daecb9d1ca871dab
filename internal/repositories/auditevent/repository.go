package auditevent

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/mmtuentertainment/apmatch/pkg/database"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

const eventColumns = "id, tenant_id, event_type, invoice_id, po_id, receipt_id, match_result_id, exception_id, before, after, latency_ms, actor, correlation_id, created_at"

// Repository handles audit event persistence. The table is append-only:
// there is no update or delete.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new audit event repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new audit event
func (r *Repository) Create(ctx context.Context, event *models.AuditEvent) (*models.AuditEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "auditevent.Repository.Create")
	defer span.End()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("audit_events")
	sb.Cols("id", "tenant_id", "event_type", "invoice_id", "po_id", "receipt_id", "match_result_id", "exception_id", "before", "after", "latency_ms", "actor", "correlation_id", "created_at")
	sb.Values(event.ID, event.TenantID, event.EventType, event.InvoiceID, event.POID, event.ReceiptID, event.MatchResultID, event.ExceptionID, event.Before, event.After, event.LatencyMillis, event.Actor, event.CorrelationID, event.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"event_type": event.EventType}).Error("Failed to create audit event")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create audit event")
	}

	return event, nil
}

// List retrieves audit events for a tenant, optionally filtered by event type
// or invoice, newest first.
func (r *Repository) List(ctx context.Context, tenantID, eventType, invoiceID string, limit, offset int) ([]models.AuditEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "auditevent.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(eventColumns)
	sb.From("audit_events")

	where := []string{sb.Equal("tenant_id", tenantID)}
	if eventType != "" {
		where = append(where, sb.Equal("event_type", eventType))
	}
	if invoiceID != "" {
		where = append(where, sb.Equal("invoice_id", invoiceID))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	var events []models.AuditEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list audit events")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list audit events")
	}

	return events, nil
}
