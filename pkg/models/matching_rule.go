package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchingRule is a tenant (or vendor) scoped tolerance configuration.
// VendorID nil means the rule is the tenant default. The effective rule for
// an invoice is the highest-priority active rule, vendor-specific first.
type MatchingRule struct {
	ID                     string          `json:"id" db:"id"`
	TenantID               string          `json:"tenant_id" db:"tenant_id"`
	VendorID               *string         `json:"vendor_id,omitempty" db:"vendor_id"`
	Name                   string          `json:"name" db:"name"`
	Priority               int             `json:"priority" db:"priority"`
	IsActive               bool            `json:"is_active" db:"is_active"`
	AmountTolerancePercent decimal.Decimal `json:"amount_tolerance_percent" db:"amount_tolerance_percent"`
	AmountToleranceAbs     decimal.Decimal `json:"amount_tolerance_abs" db:"amount_tolerance_abs"`
	DateToleranceDays      int             `json:"date_tolerance_days" db:"date_tolerance_days"`
	AutoApproveThreshold   float64         `json:"auto_approve_threshold" db:"auto_approve_threshold"`
	ReviewThreshold        float64         `json:"review_threshold" db:"review_threshold"`
	CreatedAt              time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt              *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// DefaultMatchingRule returns the built-in tolerances used when a tenant has
// no configured rules.
func DefaultMatchingRule() *MatchingRule {
	return &MatchingRule{
		Name:                   "default",
		Priority:               0,
		IsActive:               true,
		AmountTolerancePercent: decimal.NewFromInt(5),
		AmountToleranceAbs:     decimal.NewFromInt(10),
		DateToleranceDays:      7,
		AutoApproveThreshold:   85,
		ReviewThreshold:        70,
	}
}

// CreateMatchingRuleRequest is the request to create a matching rule
type CreateMatchingRuleRequest struct {
	VendorID               *string         `json:"vendor_id,omitempty" validate:"omitempty,uuid"`
	Name                   string          `json:"name" validate:"required"`
	Priority               int             `json:"priority"`
	IsActive               bool            `json:"is_active"`
	AmountTolerancePercent decimal.Decimal `json:"amount_tolerance_percent"`
	AmountToleranceAbs     decimal.Decimal `json:"amount_tolerance_abs"`
	DateToleranceDays      int             `json:"date_tolerance_days"`
	AutoApproveThreshold   float64         `json:"auto_approve_threshold" validate:"gte=0,lte=100"`
	ReviewThreshold        float64         `json:"review_threshold" validate:"gte=0,lte=100"`
}

// UpdateMatchingRuleRequest is the request to update a matching rule
type UpdateMatchingRuleRequest struct {
	Name                   *string          `json:"name,omitempty"`
	Priority               *int             `json:"priority,omitempty"`
	IsActive               *bool            `json:"is_active,omitempty"`
	AmountTolerancePercent *decimal.Decimal `json:"amount_tolerance_percent,omitempty"`
	AmountToleranceAbs     *decimal.Decimal `json:"amount_tolerance_abs,omitempty"`
	DateToleranceDays      *int             `json:"date_tolerance_days,omitempty"`
	AutoApproveThreshold   *float64         `json:"auto_approve_threshold,omitempty" validate:"omitempty,gte=0,lte=100"`
	ReviewThreshold        *float64         `json:"review_threshold,omitempty" validate:"omitempty,gte=0,lte=100"`
}
