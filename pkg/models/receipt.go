package models

import "time"

// ReceiptStatus constants
const (
	ReceiptStatusReceived  = "received"
	ReceiptStatusInspected = "inspected"
	ReceiptStatusAccepted  = "accepted"
	ReceiptStatusRejected  = "rejected"
	ReceiptStatusReturned  = "returned"
)

// Receipt records goods received against a purchase order. Only accepted
// receipts participate in three-way matching.
type Receipt struct {
	ID            string    `json:"id" db:"id"`
	TenantID      string    `json:"tenant_id" db:"tenant_id"`
	POID          string    `json:"po_id" db:"po_id"`
	ReceiptNumber string    `json:"receipt_number" db:"receipt_number"`
	ReceiptDate   time.Time `json:"receipt_date" db:"receipt_date"`
	Status        string    `json:"status" db:"status"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// CreateReceiptRequest is the request to create a receipt
type CreateReceiptRequest struct {
	POID          string    `json:"po_id" validate:"required,uuid"`
	ReceiptNumber string    `json:"receipt_number" validate:"required"`
	ReceiptDate   time.Time `json:"receipt_date" validate:"required"`
	Status        string    `json:"status,omitempty"`
}
