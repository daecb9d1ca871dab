package models

import (
	"time"

	"github.com/mmtuentertainment/apmatch/pkg/database"
)

// AuditEventType constants
const (
	AuditEventMatchAttempted         = "match.attempted"
	AuditEventMatchDecided           = "match.decided"
	AuditEventMatchAutoApproved      = "match.auto_approved"
	AuditEventExceptionCreated       = "exception.created"
	AuditEventExceptionStatusChanged = "exception.status_changed"
	AuditEventExceptionResolved      = "exception.resolved"
	AuditEventExceptionEscalated     = "exception.escalated"
	AuditEventVendorMerged           = "vendor.merged"
	AuditEventJobStarted             = "job.started"
	AuditEventJobCompleted           = "job.completed"
	AuditEventJobFailed              = "job.failed"
)

// AuditEvent is one append-only audit trail row. Before/After capture entity
// snapshots for state transitions.
type AuditEvent struct {
	ID            string                         `json:"id" db:"id"`
	TenantID      string                         `json:"tenant_id" db:"tenant_id"`
	EventType     string                         `json:"event_type" db:"event_type"`
	InvoiceID     *string                        `json:"invoice_id,omitempty" db:"invoice_id"`
	POID          *string                        `json:"po_id,omitempty" db:"po_id"`
	ReceiptID     *string                        `json:"receipt_id,omitempty" db:"receipt_id"`
	MatchResultID *string                        `json:"match_result_id,omitempty" db:"match_result_id"`
	ExceptionID   *string                        `json:"exception_id,omitempty" db:"exception_id"`
	Before        database.JSONB[map[string]any] `json:"before" db:"before"`
	After         database.JSONB[map[string]any] `json:"after" db:"after"`
	LatencyMillis int64                          `json:"latency_ms" db:"latency_ms"`
	Actor         string                         `json:"actor" db:"actor"`
	CorrelationID string                         `json:"correlation_id" db:"correlation_id"`
	CreatedAt     time.Time                      `json:"created_at" db:"created_at"`
}
