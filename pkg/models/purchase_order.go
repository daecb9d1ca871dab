package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseOrderStatus constants
const (
	PurchaseOrderStatusDraft             = "draft"
	PurchaseOrderStatusPending           = "pending"
	PurchaseOrderStatusApproved          = "approved"
	PurchaseOrderStatusPartiallyReceived = "partially_received"
	PurchaseOrderStatusReceived          = "received"
	PurchaseOrderStatusClosed            = "closed"
	PurchaseOrderStatusCancelled         = "cancelled"
)

// MatchablePOStatuses are the statuses a purchase order must be in to be
// considered a match candidate.
var MatchablePOStatuses = []string{
	PurchaseOrderStatusApproved,
	PurchaseOrderStatusPartiallyReceived,
	PurchaseOrderStatusReceived,
}

// PurchaseOrder is a committed purchase. TotalAmount is derived from line
// items and recomputed by the repository whenever items change.
type PurchaseOrder struct {
	ID          string          `json:"id" db:"id"`
	TenantID    string          `json:"tenant_id" db:"tenant_id"`
	PONumber    string          `json:"po_number" db:"po_number"`
	VendorID    string          `json:"vendor_id" db:"vendor_id"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	PODate      time.Time       `json:"po_date" db:"po_date"`
	Status      string          `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// PurchaseOrderItem is a line item on a purchase order
type PurchaseOrderItem struct {
	ID          string          `json:"id" db:"id"`
	TenantID    string          `json:"tenant_id" db:"tenant_id"`
	POID        string          `json:"po_id" db:"po_id"`
	Description string          `json:"description" db:"description"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total" db:"line_total"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// CreatePurchaseOrderRequest is the request to create a purchase order
type CreatePurchaseOrderRequest struct {
	PONumber string                           `json:"po_number" validate:"required"`
	VendorID string                           `json:"vendor_id" validate:"required,uuid"`
	PODate   time.Time                        `json:"po_date" validate:"required"`
	Status   string                           `json:"status,omitempty"`
	Items    []CreatePurchaseOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreatePurchaseOrderItemRequest is a line item in a create PO request
type CreatePurchaseOrderItemRequest struct {
	Description string          `json:"description" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"required"`
}
