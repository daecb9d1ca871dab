package matchresult

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

const resultColumns = "id, tenant_id, invoice_id, po_id, receipt_id, match_type, overall_confidence, field_scores, match_status, approval_status, variance_amount, created_at"

// Repository handles match result persistence. Results are append-only:
// there is no update or delete, only the approval status may change.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match result repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new match result
func (r *Repository) Create(ctx context.Context, result *models.MatchResult) (*models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matchresult.Repository.Create")
	defer span.End()

	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	result.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_results")
	sb.Cols("id", "tenant_id", "invoice_id", "po_id", "receipt_id", "match_type", "overall_confidence", "field_scores", "match_status", "approval_status", "variance_amount", "created_at")
	sb.Values(result.ID, result.TenantID, result.InvoiceID, result.POID, result.ReceiptID, result.MatchType, result.OverallConfidence, result.FieldScores, result.MatchStatus, result.ApprovalStatus, result.VarianceAmount, result.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"invoice_id": result.InvoiceID}).Error("Failed to create match result")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create match result")
	}

	return result, nil
}

// GetByID retrieves a match result by ID
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matchresult.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(resultColumns)
	sb.From("match_results")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var result models.MatchResult
	if err := r.db.GetContext(ctx, &result, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("match result %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match result")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match result")
	}

	return &result, nil
}

// ListByInvoice retrieves all match results for an invoice, newest first.
// The first element is the current result; the rest are history.
func (r *Repository) ListByInvoice(ctx context.Context, tenantID, invoiceID string) ([]models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matchresult.Repository.ListByInvoice")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(resultColumns)
	sb.From("match_results")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("invoice_id", invoiceID),
	)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var results []models.MatchResult
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list match results")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match results")
	}

	return results, nil
}

// UpdateApprovalStatus changes the approval status of a match result. This is
// the only mutation allowed on a result row.
func (r *Repository) UpdateApprovalStatus(ctx context.Context, tenantID, id, approvalStatus string) error {
	ctx, span := tracing.StartSpan(ctx, "matchresult.Repository.UpdateApprovalStatus")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("match_results")
	sb.Set(sb.Assign("approval_status", approvalStatus))
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update match result approval status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update approval status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("match result %s not found", id))
	}

	return nil
}
