package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmtuentertainment/apmatch/pkg/database"
)

// MatchType defines which documents participated in the match
type MatchType string

const (
	MatchType2WayPOInvoice      MatchType = "2way_po_invoice"
	MatchType2WayPOReceipt      MatchType = "2way_po_receipt"
	MatchType2WayInvoiceReceipt MatchType = "2way_invoice_receipt"
	MatchType3WayFull           MatchType = "3way_full"
)

// MatchStatus constants (confidence band classification)
const (
	MatchStatusMatched   = "matched"
	MatchStatusPartial   = "partial"
	MatchStatusException = "exception"
	MatchStatusFailed    = "failed"
)

// ApprovalStatus constants
const (
	ApprovalStatusPending      = "pending"
	ApprovalStatusApproved     = "approved"
	ApprovalStatusRejected     = "rejected"
	ApprovalStatusAutoApproved = "auto_approved"
)

// FieldScore is the outcome of a single field scorer
type FieldScore struct {
	Score    float64        `json:"score"`
	Evidence map[string]any `json:"evidence,omitempty"`
}

// MatchResult is one matching attempt for an invoice. Rows are append-only:
// re-matching an invoice inserts a new result, it never rewrites history.
// Only ApprovalStatus may change after insert.
type MatchResult struct {
	ID                string                                `json:"id" db:"id"`
	TenantID          string                                `json:"tenant_id" db:"tenant_id"`
	InvoiceID         string                                `json:"invoice_id" db:"invoice_id"`
	POID              *string                               `json:"po_id,omitempty" db:"po_id"`
	ReceiptID         *string                               `json:"receipt_id,omitempty" db:"receipt_id"`
	MatchType         MatchType                             `json:"match_type" db:"match_type"`
	OverallConfidence float64                               `json:"overall_confidence" db:"overall_confidence"`
	FieldScores       database.JSONB[map[string]FieldScore] `json:"field_scores" db:"field_scores"`
	MatchStatus       string                                `json:"match_status" db:"match_status"`
	ApprovalStatus    string                                `json:"approval_status" db:"approval_status"`
	VarianceAmount    decimal.Decimal                       `json:"variance_amount" db:"variance_amount"`
	CreatedAt         time.Time                             `json:"created_at" db:"created_at"`
}
