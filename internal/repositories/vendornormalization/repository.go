package vendornormalization

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

const normalizationColumns = "id, tenant_id, vendor_id, canonical_vendor_id, similarity, status, details, created_at, updated_at"

// Repository handles vendor normalization persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new vendor normalization repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create records a detected duplicate pair
func (r *Repository) Create(ctx context.Context, normalization *models.VendorNormalization) (*models.VendorNormalization, error) {
	ctx, span := tracing.StartSpan(ctx, "vendornormalization.Repository.Create")
	defer span.End()

	if normalization.ID == "" {
		normalization.ID = uuid.New().String()
	}
	if normalization.Status == "" {
		normalization.Status = models.VendorNormalizationStatusPending
	}
	normalization.CreatedAt = time.Now().UTC()
	normalization.UpdatedAt = normalization.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("vendor_normalizations")
	sb.Cols("id", "tenant_id", "vendor_id", "canonical_vendor_id", "similarity", "status", "details", "created_at", "updated_at")
	sb.Values(normalization.ID, normalization.TenantID, normalization.VendorID, normalization.CanonicalVendorID, normalization.Similarity, normalization.Status, normalization.Details, normalization.CreatedAt, normalization.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"vendor_id": normalization.VendorID}).Error("Failed to create vendor normalization")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create vendor normalization")
	}

	return normalization, nil
}

// GetByID retrieves a vendor normalization by ID
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.VendorNormalization, error) {
	ctx, span := tracing.StartSpan(ctx, "vendornormalization.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(normalizationColumns)
	sb.From("vendor_normalizations")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var normalization models.VendorNormalization
	if err := r.db.GetContext(ctx, &normalization, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("vendor normalization %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get vendor normalization")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get vendor normalization")
	}

	return &normalization, nil
}

// FindOpenPair finds a pending normalization for a duplicate/canonical pair,
// regardless of direction. Returns nil when none exists.
func (r *Repository) FindOpenPair(ctx context.Context, tenantID, vendorA, vendorB string) (*models.VendorNormalization, error) {
	ctx, span := tracing.StartSpan(ctx, "vendornormalization.Repository.FindOpenPair")
	defer span.End()

	query := `
		SELECT ` + normalizationColumns + `
		FROM vendor_normalizations
		WHERE tenant_id = $1
		AND status = $2
		AND ((vendor_id = $3 AND canonical_vendor_id = $4) OR (vendor_id = $4 AND canonical_vendor_id = $3))
		LIMIT 1
	`

	var normalization models.VendorNormalization
	if err := r.db.GetContext(ctx, &normalization, query, tenantID, models.VendorNormalizationStatusPending, vendorA, vendorB); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find open normalization pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find open normalization pair")
	}

	return &normalization, nil
}

// List retrieves normalizations for a tenant, optionally filtered by status
func (r *Repository) List(ctx context.Context, tenantID, status string, limit int) ([]models.VendorNormalization, error) {
	ctx, span := tracing.StartSpan(ctx, "vendornormalization.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(normalizationColumns)
	sb.From("vendor_normalizations")

	where := []string{sb.Equal("tenant_id", tenantID)}
	if status != "" {
		where = append(where, sb.Equal("status", status))
	}
	sb.Where(where...)
	sb.OrderBy("similarity DESC", "created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var normalizations []models.VendorNormalization
	if err := r.db.SelectContext(ctx, &normalizations, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list vendor normalizations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list vendor normalizations")
	}

	return normalizations, nil
}

// UpdateStatus transitions a normalization to a new status
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id, status string) (*models.VendorNormalization, error) {
	ctx, span := tracing.StartSpan(ctx, "vendornormalization.Repository.UpdateStatus")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("vendor_normalizations")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update vendor normalization status")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update vendor normalization status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("vendor normalization %s not found", id))
	}

	return r.GetByID(ctx, tenantID, id)
}
