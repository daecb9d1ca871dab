package receipt

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

const receiptColumns = "id, tenant_id, po_id, receipt_number, receipt_date, status, created_at, updated_at"

// Repository handles receipt persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new receipt repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new receipt
func (r *Repository) Create(ctx context.Context, tenantID string, req *models.CreateReceiptRequest) (*models.Receipt, error) {
	ctx, span := tracing.StartSpan(ctx, "receipt.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	status := req.Status
	if status == "" {
		status = models.ReceiptStatusReceived
	}

	receipt := &models.Receipt{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		POID:          req.POID,
		ReceiptNumber: req.ReceiptNumber,
		ReceiptDate:   req.ReceiptDate,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("receipts")
	sb.Cols("id", "tenant_id", "po_id", "receipt_number", "receipt_date", "status", "created_at", "updated_at")
	sb.Values(receipt.ID, receipt.TenantID, receipt.POID, receipt.ReceiptNumber, receipt.ReceiptDate, receipt.Status, receipt.CreatedAt, receipt.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"po_id": receipt.POID}).Error("Failed to create receipt")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create receipt")
	}

	return receipt, nil
}

// GetByID retrieves a receipt by ID
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.Receipt, error) {
	ctx, span := tracing.StartSpan(ctx, "receipt.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(receiptColumns)
	sb.From("receipts")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var receipt models.Receipt
	if err := r.db.GetContext(ctx, &receipt, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("receipt %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get receipt")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get receipt")
	}

	return &receipt, nil
}

// ListByPO retrieves all receipts against a purchase order
func (r *Repository) ListByPO(ctx context.Context, tenantID, poID string) ([]models.Receipt, error) {
	ctx, span := tracing.StartSpan(ctx, "receipt.Repository.ListByPO")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(receiptColumns)
	sb.From("receipts")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("po_id", poID),
	)
	sb.OrderBy("receipt_date DESC")

	query, args := sb.Build()
	var receipts []models.Receipt
	if err := r.db.SelectContext(ctx, &receipts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list receipts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list receipts")
	}

	return receipts, nil
}

// ListAcceptedByPO retrieves the accepted receipts against a purchase order.
// Only accepted receipts participate in three-way matching.
func (r *Repository) ListAcceptedByPO(ctx context.Context, tenantID, poID string) ([]*models.Receipt, error) {
	ctx, span := tracing.StartSpan(ctx, "receipt.Repository.ListAcceptedByPO")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(receiptColumns)
	sb.From("receipts")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("po_id", poID),
		sb.Equal("status", models.ReceiptStatusAccepted),
	)
	sb.OrderBy("receipt_date DESC")

	query, args := sb.Build()
	var receipts []*models.Receipt
	if err := r.db.SelectContext(ctx, &receipts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list accepted receipts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list accepted receipts")
	}

	return receipts, nil
}

// UpdateStatus transitions a receipt to a new status
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id, status string) error {
	ctx, span := tracing.StartSpan(ctx, "receipt.Repository.UpdateStatus")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("receipts")
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
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update receipt status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update receipt status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("receipt %s not found", id))
	}

	return nil
}
