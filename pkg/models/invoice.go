package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceMatchingStatus constants
const (
	InvoiceMatchingStatusUnmatched        = "unmatched"
	InvoiceMatchingStatusMatched          = "matched"
	InvoiceMatchingStatusPartiallyMatched = "partially_matched"
	InvoiceMatchingStatusException        = "exception"
)

// Invoice is a vendor invoice awaiting reconciliation. POID is an optional
// hint provided at ingestion; PONumberRef is the free-text PO reference from
// the invoice document.
type Invoice struct {
	ID             string          `json:"id" db:"id"`
	TenantID       string          `json:"tenant_id" db:"tenant_id"`
	VendorID       string          `json:"vendor_id" db:"vendor_id"`
	InvoiceNumber  string          `json:"invoice_number" db:"invoice_number"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	InvoiceDate    time.Time       `json:"invoice_date" db:"invoice_date"`
	POID           *string         `json:"po_id,omitempty" db:"po_id"`
	PONumberRef    *string         `json:"po_number_ref,omitempty" db:"po_number_ref"`
	MatchingStatus string          `json:"matching_status" db:"matching_status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// CreateInvoiceRequest is the request to create an invoice
type CreateInvoiceRequest struct {
	VendorID      string          `json:"vendor_id" validate:"required,uuid"`
	InvoiceNumber string          `json:"invoice_number" validate:"required"`
	TotalAmount   decimal.Decimal `json:"total_amount" validate:"required"`
	InvoiceDate   time.Time       `json:"invoice_date" validate:"required"`
	POID          *string         `json:"po_id,omitempty" validate:"omitempty,uuid"`
	PONumberRef   *string         `json:"po_number_ref,omitempty"`
}
