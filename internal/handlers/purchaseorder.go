package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/mmtuentertainment/apmatch/internal/repositories/purchaseorder"
	"github.com/mmtuentertainment/apmatch/internal/repositories/receipt"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

// PurchaseOrderHandler handles purchase order API endpoints
type PurchaseOrderHandler struct {
	repo     *purchaseorder.Repository
	receipts *receipt.Repository
	logger   ectologger.Logger
}

// NewPurchaseOrderHandler creates a new purchase order handler
func NewPurchaseOrderHandler(
	repo *purchaseorder.Repository,
	receipts *receipt.Repository,
	logger ectologger.Logger,
) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{
		repo:     repo,
		receipts: receipts,
		logger:   logger,
	}
}

// UpdatePOStatusRequest represents the status transition request body
type UpdatePOStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft pending approved partially_received received closed cancelled"`
}

// PurchaseOrderResponse is a purchase order with its line items
type PurchaseOrderResponse struct {
	*models.PurchaseOrder
	Items []models.PurchaseOrderItem `json:"items"`
}

// Register registers purchase order routes
func (h *PurchaseOrderHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.GetByID)
	g.PATCH("/:id/status", h.UpdateStatus)
	g.GET("/:id/receipts", h.ListReceipts)
}

// List returns purchase orders for the current tenant
func (h *PurchaseOrderHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "PurchaseOrderHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	limit, offset := pagination(c)
	orders, err := h.repo.List(ctx, tenantID, limit, offset)
	if err != nil {
		return err
	}

	return SuccessResponse(c, orders)
}

// Create creates a purchase order with its line items
func (h *PurchaseOrderHandler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "PurchaseOrderHandler.Create")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req models.CreatePurchaseOrderRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	created, err := h.repo.Create(ctx, tenantID, &req)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).Infof("Created purchase order: %s", created.PONumber)
	return CreatedResponse(c, created)
}

// GetByID returns a purchase order with its line items
func (h *PurchaseOrderHandler) GetByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "PurchaseOrderHandler.GetByID")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	po, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	items, err := h.repo.GetItems(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, PurchaseOrderResponse{PurchaseOrder: po, Items: items})
}

// UpdateStatus transitions a purchase order to a new status
func (h *PurchaseOrderHandler) UpdateStatus(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "PurchaseOrderHandler.UpdateStatus")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req UpdatePOStatusRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	if err := h.repo.UpdateStatus(ctx, tenantID, id, req.Status); err != nil {
		return err
	}

	return SuccessResponse(c, map[string]string{"id": id, "status": req.Status})
}

// ListReceipts returns the receipts recorded against a purchase order
func (h *PurchaseOrderHandler) ListReceipts(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "PurchaseOrderHandler.ListReceipts")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	receipts, err := h.receipts.ListByPO(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, receipts)
}
