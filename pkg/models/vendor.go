package models

import (
	"time"

	"github.com/mmtuentertainment/apmatch/pkg/database"
)

// VendorStatus constants
const (
	VendorStatusActive   = "active"
	VendorStatusInactive = "inactive"
)

// Vendor is a supplier record. NormalizedName is recomputed on every write
// so matching always compares canonical keys.
type Vendor struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	Name           string     `json:"name" db:"name"`
	NormalizedName string     `json:"normalized_name" db:"normalized_name"`
	Email          *string    `json:"email,omitempty" db:"email"`
	Phone          *string    `json:"phone,omitempty" db:"phone"`
	TaxID          *string    `json:"tax_id,omitempty" db:"tax_id"`
	Status         string     `json:"status" db:"status"`
	MergedInto     *string    `json:"merged_into,omitempty" db:"merged_into"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the vendor is still a live record (not retired by
// a merge).
func (v *Vendor) IsActive() bool {
	return v.Status == VendorStatusActive
}

// CreateVendorRequest is the request to create a vendor
type CreateVendorRequest struct {
	Name  string  `json:"name" validate:"required"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone *string `json:"phone,omitempty"`
	TaxID *string `json:"tax_id,omitempty"`
}

// UpdateVendorRequest is the request to update a vendor
type UpdateVendorRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone *string `json:"phone,omitempty"`
	TaxID *string `json:"tax_id,omitempty"`
}

// VendorNormalizationStatus constants
const (
	VendorNormalizationStatusPending  = "pending"
	VendorNormalizationStatusApproved = "approved"
	VendorNormalizationStatusRejected = "rejected"
	VendorNormalizationStatusMerged   = "merged"
)

// VendorNormalization records a detected duplicate vendor pair awaiting
// review (or auto-merged when the similarity clears the auto-merge threshold).
type VendorNormalization struct {
	ID                string                             `json:"id" db:"id"`
	TenantID          string                             `json:"tenant_id" db:"tenant_id"`
	VendorID          string                             `json:"vendor_id" db:"vendor_id"`
	CanonicalVendorID string                             `json:"canonical_vendor_id" db:"canonical_vendor_id"`
	Similarity        float64                            `json:"similarity" db:"similarity"`
	Status            string                             `json:"status" db:"status"`
	Details           database.JSONB[map[string]float64] `json:"details" db:"details"`
	CreatedAt         time.Time                          `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time                          `json:"updated_at" db:"updated_at"`
}
