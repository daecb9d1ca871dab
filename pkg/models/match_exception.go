package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmtuentertainment/apmatch/pkg/database"
)

// ExceptionType constants, in inference priority order
const (
	ExceptionTypeMissingDocument  = "missing_document"
	ExceptionTypeAmountVariance   = "amount_variance"
	ExceptionTypeVendorMismatch   = "vendor_mismatch"
	ExceptionTypeDateVariance     = "date_variance"
	ExceptionTypeApprovalRequired = "approval_required"
	ExceptionTypeNoMatchFound     = "no_match_found"
)

// ExceptionSeverity constants
const (
	ExceptionSeverityHigh   = "high"
	ExceptionSeverityMedium = "medium"
	ExceptionSeverityLow    = "low"
)

// ExceptionStatus constants
const (
	ExceptionStatusOpen      = "open"
	ExceptionStatusInReview  = "in_review"
	ExceptionStatusResolved  = "resolved"
	ExceptionStatusDismissed = "dismissed"
	ExceptionStatusEscalated = "escalated"
)

// ExceptionResolution constants (terminal dispositions)
const (
	ExceptionResolutionApproved    = "approved"
	ExceptionResolutionRejected    = "rejected"
	ExceptionResolutionAdjusted    = "adjusted"
	ExceptionResolutionInvestigate = "investigate"
)

// MatchException is a review-queue item for an invoice that could not be
// auto-matched. EscalatedTo links to the replacement exception created when
// this one is escalated.
type MatchException struct {
	ID              string                          `json:"id" db:"id"`
	TenantID        string                          `json:"tenant_id" db:"tenant_id"`
	MatchResultID   string                          `json:"match_result_id" db:"match_result_id"`
	InvoiceID       string                          `json:"invoice_id" db:"invoice_id"`
	ExceptionType   string                          `json:"exception_type" db:"exception_type"`
	Severity        string                          `json:"severity" db:"severity"`
	FieldName       *string                         `json:"field_name,omitempty" db:"field_name"`
	ExpectedValue   *string                         `json:"expected_value,omitempty" db:"expected_value"`
	ActualValue     *string                         `json:"actual_value,omitempty" db:"actual_value"`
	VarianceAmount  decimal.Decimal                 `json:"variance_amount" db:"variance_amount"`
	Status          string                          `json:"status" db:"status"`
	Priority        int                             `json:"priority" db:"priority"`
	DueDate         time.Time                       `json:"due_date" db:"due_date"`
	Resolution      *string                         `json:"resolution,omitempty" db:"resolution"`
	ResolutionNotes *string                         `json:"resolution_notes,omitempty" db:"resolution_notes"`
	ResolvedBy      *string                         `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt      *time.Time                      `json:"resolved_at,omitempty" db:"resolved_at"`
	EscalatedFrom   *string                         `json:"escalated_from,omitempty" db:"escalated_from"`
	EscalatedTo     *string                         `json:"escalated_to,omitempty" db:"escalated_to"`
	Details         database.JSONB[map[string]any]  `json:"details" db:"details"`
	CreatedAt       time.Time                       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time                       `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the exception has reached a final state.
func (e *MatchException) IsTerminal() bool {
	return e.Status == ExceptionStatusResolved || e.Status == ExceptionStatusDismissed
}

// ResolveExceptionRequest is the request to resolve an exception
type ResolveExceptionRequest struct {
	Resolution string  `json:"resolution" validate:"required,oneof=approved rejected adjusted investigate"`
	Notes      *string `json:"notes,omitempty"`
}
