package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/mmtuentertainment/apmatch/internal/repositories/vendor"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/normalizer"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

// VendorHandler handles vendor API endpoints
type VendorHandler struct {
	repo    *vendor.Repository
	service *normalizer.Service
	logger  ectologger.Logger
}

// NewVendorHandler creates a new vendor handler
func NewVendorHandler(
	repo *vendor.Repository,
	service *normalizer.Service,
	logger ectologger.Logger,
) *VendorHandler {
	return &VendorHandler{
		repo:    repo,
		service: service,
		logger:  logger,
	}
}

// MergeVendorRequest represents the merge vendor request body
type MergeVendorRequest struct {
	CanonicalVendorID string `json:"canonical_vendor_id" validate:"required,uuid"`
}

// Register registers vendor routes
func (h *VendorHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.GetByID)
	g.PUT("/:id", h.Update)
	g.POST("/:id/merge", h.Merge)
}

// List returns vendors for the current tenant
func (h *VendorHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "VendorHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	limit, offset := pagination(c)
	vendors, err := h.repo.List(ctx, tenantID, limit, offset)
	if err != nil {
		return err
	}

	return SuccessResponse(c, vendors)
}

// Create creates a new vendor
func (h *VendorHandler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "VendorHandler.Create")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req models.CreateVendorRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	created, err := h.repo.Create(ctx, &models.Vendor{
		TenantID: tenantID,
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		TaxID:    req.TaxID,
	})
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).Infof("Created vendor: %s", created.ID)
	return CreatedResponse(c, created)
}

// GetByID returns a vendor by ID
func (h *VendorHandler) GetByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "VendorHandler.GetByID")
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

	v, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, v)
}

// Update updates a vendor
func (h *VendorHandler) Update(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "VendorHandler.Update")
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

	var req models.UpdateVendorRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	updated, err := h.repo.Update(ctx, tenantID, id, &req)
	if err != nil {
		return err
	}

	return SuccessResponse(c, updated)
}

// Merge merges a duplicate vendor into a canonical vendor
func (h *VendorHandler) Merge(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "VendorHandler.Merge")
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

	var req MergeVendorRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	if err := h.service.MergeVendor(ctx, tenantID, id, req.CanonicalVendorID, Actor(c)); err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to merge vendor")
		return err
	}

	return SuccessResponse(c, map[string]string{
		"vendor_id":   id,
		"merged_into": req.CanonicalVendorID,
		"status":      "merged",
	})
}
