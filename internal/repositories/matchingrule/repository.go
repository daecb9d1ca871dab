package matchingrule

import (
	"context"
	"fmt"
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

const ruleColumns = "id, tenant_id, vendor_id, name, priority, is_active, amount_tolerance_percent, amount_tolerance_abs, date_tolerance_days, auto_approve_threshold, review_threshold, created_at, updated_at, deleted_at"

// Repository handles matching rule persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new matching rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new matching rule
func (r *Repository) Create(ctx context.Context, tenantID string, req *models.CreateMatchingRuleRequest) (*models.MatchingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	rule := &models.MatchingRule{
		ID:                     uuid.New().String(),
		TenantID:               tenantID,
		VendorID:               req.VendorID,
		Name:                   req.Name,
		Priority:               req.Priority,
		IsActive:               req.IsActive,
		AmountTolerancePercent: req.AmountTolerancePercent,
		AmountToleranceAbs:     req.AmountToleranceAbs,
		DateToleranceDays:      req.DateToleranceDays,
		AutoApproveThreshold:   req.AutoApproveThreshold,
		ReviewThreshold:        req.ReviewThreshold,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("matching_rules")
	sb.Cols("id", "tenant_id", "vendor_id", "name", "priority", "is_active", "amount_tolerance_percent", "amount_tolerance_abs", "date_tolerance_days", "auto_approve_threshold", "review_threshold", "created_at", "updated_at")
	sb.Values(rule.ID, rule.TenantID, rule.VendorID, rule.Name, rule.Priority, rule.IsActive, rule.AmountTolerancePercent, rule.AmountToleranceAbs, rule.DateToleranceDays, rule.AutoApproveThreshold, rule.ReviewThreshold, rule.CreatedAt, rule.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"rule_name": rule.Name}).Error("Failed to create matching rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create matching rule")
	}

	return rule, nil
}

// GetByID retrieves a matching rule by ID
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.MatchingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ruleColumns)
	sb.From("matching_rules")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var rule models.MatchingRule
	if err := r.db.GetContext(ctx, &rule, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("matching rule %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get matching rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get matching rule")
	}

	return &rule, nil
}

// List retrieves all matching rules for a tenant
func (r *Repository) List(ctx context.Context, tenantID string) ([]models.MatchingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ruleColumns)
	sb.From("matching_rules")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("priority DESC", "created_at DESC")

	query, args := sb.Build()
	var rules []models.MatchingRule
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list matching rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list matching rules")
	}

	return rules, nil
}

// GetEffectiveRule resolves the rule that applies to an invoice: the highest
// priority active vendor-specific rule, falling back to the tenant default
// (vendor_id null). Returns nil when the tenant has no configured rules.
func (r *Repository) GetEffectiveRule(ctx context.Context, tenantID, vendorID string) (*models.MatchingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.GetEffectiveRule")
	defer span.End()

	query := `
		SELECT ` + ruleColumns + `
		FROM matching_rules
		WHERE tenant_id = $1
		AND is_active = true
		AND deleted_at IS NULL
		AND (vendor_id = $2 OR vendor_id IS NULL)
		ORDER BY (vendor_id IS NOT NULL) DESC, priority DESC, created_at DESC
		LIMIT 1
	`

	var rule models.MatchingRule
	if err := r.db.GetContext(ctx, &rule, query, tenantID, vendorID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve effective matching rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve effective matching rule")
	}

	return &rule, nil
}

// Update updates a matching rule's mutable fields
func (r *Repository) Update(ctx context.Context, tenantID, id string, req *models.UpdateMatchingRuleRequest) (*models.MatchingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.Update")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("matching_rules")

	assignments := []string{sb.Assign("updated_at", now)}
	if req.Name != nil {
		assignments = append(assignments, sb.Assign("name", *req.Name))
	}
	if req.Priority != nil {
		assignments = append(assignments, sb.Assign("priority", *req.Priority))
	}
	if req.IsActive != nil {
		assignments = append(assignments, sb.Assign("is_active", *req.IsActive))
	}
	if req.AmountTolerancePercent != nil {
		assignments = append(assignments, sb.Assign("amount_tolerance_percent", *req.AmountTolerancePercent))
	}
	if req.AmountToleranceAbs != nil {
		assignments = append(assignments, sb.Assign("amount_tolerance_abs", *req.AmountToleranceAbs))
	}
	if req.DateToleranceDays != nil {
		assignments = append(assignments, sb.Assign("date_tolerance_days", *req.DateToleranceDays))
	}
	if req.AutoApproveThreshold != nil {
		assignments = append(assignments, sb.Assign("auto_approve_threshold", *req.AutoApproveThreshold))
	}
	if req.ReviewThreshold != nil {
		assignments = append(assignments, sb.Assign("review_threshold", *req.ReviewThreshold))
	}
	sb.Set(assignments...)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update matching rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update matching rule")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("matching rule %s not found", id))
	}

	return r.GetByID(ctx, tenantID, id)
}

// Delete soft deletes a matching rule
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.Delete")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("matching_rules")
	sb.Set(
		sb.Assign("deleted_at", now),
		sb.Assign("is_active", false),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete matching rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete matching rule")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("matching rule %s not found", id))
	}

	return nil
}
