package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/mmtuentertainment/apmatch/internal/repositories/receipt"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

// ReceiptHandler handles receipt API endpoints
type ReceiptHandler struct {
	repo   *receipt.Repository
	logger ectologger.Logger
}

// NewReceiptHandler creates a new receipt handler
func NewReceiptHandler(repo *receipt.Repository, logger ectologger.Logger) *ReceiptHandler {
	return &ReceiptHandler{
		repo:   repo,
		logger: logger,
	}
}

// UpdateReceiptStatusRequest represents the status transition request body
type UpdateReceiptStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=received inspected accepted rejected returned"`
}

// Register registers receipt routes
func (h *ReceiptHandler) Register(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("/:id", h.GetByID)
	g.PATCH("/:id/status", h.UpdateStatus)
}

// Create records a new receipt against a purchase order
func (h *ReceiptHandler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ReceiptHandler.Create")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req models.CreateReceiptRequest
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

	h.logger.WithContext(ctx).Infof("Created receipt: %s", created.ReceiptNumber)
	return CreatedResponse(c, created)
}

// GetByID returns a receipt by ID
func (h *ReceiptHandler) GetByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ReceiptHandler.GetByID")
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

	rec, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, rec)
}

// UpdateStatus transitions a receipt to a new status
func (h *ReceiptHandler) UpdateStatus(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ReceiptHandler.UpdateStatus")
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

	var req UpdateReceiptStatusRequest
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
