package invoice

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

const invoiceColumns = "id, tenant_id, vendor_id, invoice_number, total_amount, invoice_date, po_id, po_number_ref, matching_status, created_at, updated_at"

// Repository handles invoice persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new invoice repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new invoice in the unmatched state
func (r *Repository) Create(ctx context.Context, tenantID string, req *models.CreateInvoiceRequest) (*models.Invoice, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	invoice := &models.Invoice{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		VendorID:       req.VendorID,
		InvoiceNumber:  req.InvoiceNumber,
		TotalAmount:    req.TotalAmount,
		InvoiceDate:    req.InvoiceDate,
		POID:           req.POID,
		PONumberRef:    req.PONumberRef,
		MatchingStatus: models.InvoiceMatchingStatusUnmatched,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("invoices")
	sb.Cols("id", "tenant_id", "vendor_id", "invoice_number", "total_amount", "invoice_date", "po_id", "po_number_ref", "matching_status", "created_at", "updated_at")
	sb.Values(invoice.ID, invoice.TenantID, invoice.VendorID, invoice.InvoiceNumber, invoice.TotalAmount, invoice.InvoiceDate, invoice.POID, invoice.PONumberRef, invoice.MatchingStatus, invoice.CreatedAt, invoice.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"invoice_number": invoice.InvoiceNumber}).Error("Failed to create invoice")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create invoice")
	}

	return invoice, nil
}

// GetByID retrieves an invoice by ID
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.Invoice, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(invoiceColumns)
	sb.From("invoices")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("invoice %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get invoice")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get invoice")
	}

	return &invoice, nil
}

// List retrieves invoices for a tenant, optionally filtered by matching status
func (r *Repository) List(ctx context.Context, tenantID, matchingStatus string, limit, offset int) ([]models.Invoice, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(invoiceColumns)
	sb.From("invoices")

	where := []string{sb.Equal("tenant_id", tenantID)}
	if matchingStatus != "" {
		where = append(where, sb.Equal("matching_status", matchingStatus))
	}
	sb.Where(where...)
	sb.OrderBy("invoice_date DESC")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	var invoices []models.Invoice
	if err := r.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list invoices")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list invoices")
	}

	return invoices, nil
}

// ListUnmatchedIDs retrieves the IDs of every unmatched invoice for a tenant,
// oldest first. Used to resolve the target set of a batch job.
func (r *Repository) ListUnmatchedIDs(ctx context.Context, tenantID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.ListUnmatchedIDs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id")
	sb.From("invoices")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("matching_status", models.InvoiceMatchingStatusUnmatched),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unmatched invoice IDs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list unmatched invoices")
	}

	return ids, nil
}

// UpdateMatchingStatus transitions an invoice's matching status
func (r *Repository) UpdateMatchingStatus(ctx context.Context, tenantID, id, status string) error {
	ctx, span := tracing.StartSpan(ctx, "invoice.Repository.UpdateMatchingStatus")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("invoices")
	sb.Set(
		sb.Assign("matching_status", status),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update invoice matching status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update invoice matching status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("invoice %s not found", id))
	}

	return nil
}
