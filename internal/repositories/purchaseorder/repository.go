package purchaseorder

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/shopspring/decimal"

	"github.com/mmtuentertainment/apmatch/pkg/database"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

const poColumns = "id, tenant_id, po_number, vendor_id, total_amount, po_date, status, created_at, updated_at"

// Repository handles purchase order persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new purchase order repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a purchase order with its line items. The header total is
// derived from the items, never taken from the request.
func (r *Repository) Create(ctx context.Context, tenantID string, req *models.CreatePurchaseOrderRequest) (*models.PurchaseOrder, error) {
	ctx, span := tracing.StartSpan(ctx, "purchaseorder.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	status := req.Status
	if status == "" {
		status = models.PurchaseOrderStatusPending
	}

	po := &models.PurchaseOrder{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		PONumber:  req.PONumber,
		VendorID:  req.VendorID,
		PODate:    req.PODate,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}

	items := make([]models.PurchaseOrderItem, len(req.Items))
	total := decimal.Zero
	for i, item := range req.Items {
		lineTotal := item.Quantity.Mul(item.UnitPrice)
		total = total.Add(lineTotal)
		items[i] = models.PurchaseOrderItem{
			ID:          uuid.New().String(),
			TenantID:    tenantID,
			POID:        po.ID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   lineTotal,
			CreatedAt:   now,
		}
	}
	po.TotalAmount = total

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("purchase_orders")
	sb.Cols("id", "tenant_id", "po_number", "vendor_id", "total_amount", "po_date", "status", "created_at", "updated_at")
	sb.Values(po.ID, po.TenantID, po.PONumber, po.VendorID, po.TotalAmount, po.PODate, po.Status, po.CreatedAt, po.UpdatedAt)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"po_number": po.PONumber}).Error("Failed to create purchase order")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create purchase order")
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("purchase_order_items")
	ib.Cols("id", "tenant_id", "po_id", "description", "quantity", "unit_price", "line_total", "created_at")
	for _, item := range items {
		ib.Values(item.ID, item.TenantID, item.POID, item.Description, item.Quantity, item.UnitPrice, item.LineTotal, item.CreatedAt)
	}

	query, args = ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create purchase order items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create purchase order items")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit")
	}

	return po, nil
}

// GetByID retrieves a purchase order by ID
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.PurchaseOrder, error) {
	ctx, span := tracing.StartSpan(ctx, "purchaseorder.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(poColumns)
	sb.From("purchase_orders")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var po models.PurchaseOrder
	if err := r.db.GetContext(ctx, &po, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("purchase order %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get purchase order")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get purchase order")
	}

	return &po, nil
}

// GetItems retrieves the line items of a purchase order
func (r *Repository) GetItems(ctx context.Context, tenantID, poID string) ([]models.PurchaseOrderItem, error) {
	ctx, span := tracing.StartSpan(ctx, "purchaseorder.Repository.GetItems")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "po_id", "description", "quantity", "unit_price", "line_total", "created_at")
	sb.From("purchase_order_items")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("po_id", poID),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var items []models.PurchaseOrderItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get purchase order items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get purchase order items")
	}

	return items, nil
}

// List retrieves purchase orders for a tenant
func (r *Repository) List(ctx context.Context, tenantID string, limit, offset int) ([]models.PurchaseOrder, error) {
	ctx, span := tracing.StartSpan(ctx, "purchaseorder.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(poColumns)
	sb.From("purchase_orders")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("po_date DESC")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	var orders []models.PurchaseOrder
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list purchase orders")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list purchase orders")
	}

	return orders, nil
}

// ListMatchable retrieves the most recent matchable purchase orders for a
// vendor. Only approved and received orders are candidates.
func (r *Repository) ListMatchable(ctx context.Context, tenantID, vendorID string, limit int) ([]*models.PurchaseOrder, error) {
	ctx, span := tracing.StartSpan(ctx, "purchaseorder.Repository.ListMatchable")
	defer span.End()

	if limit < 1 || limit > 100 {
		limit = 10
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(poColumns)
	sb.From("purchase_orders")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("vendor_id", vendorID),
		sb.In("status", statusesToAny(models.MatchablePOStatuses)...),
	)
	sb.OrderBy("po_date DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var orders []*models.PurchaseOrder
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list matchable purchase orders")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list matchable purchase orders")
	}

	return orders, nil
}

// UpdateStatus transitions a purchase order to a new status
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id, status string) error {
	ctx, span := tracing.StartSpan(ctx, "purchaseorder.Repository.UpdateStatus")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("purchase_orders")
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
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update purchase order status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update purchase order status")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("purchase order %s not found", id))
	}

	return nil
}

func statusesToAny(statuses []string) []any {
	result := make([]any, len(statuses))
	for i, s := range statuses {
		result[i] = s
	}
	return result
}
