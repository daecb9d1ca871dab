package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/mmtuentertainment/apmatch/internal/repositories/invoice"
	"github.com/mmtuentertainment/apmatch/internal/repositories/matchexception"
	"github.com/mmtuentertainment/apmatch/internal/repositories/matchresult"
	"github.com/mmtuentertainment/apmatch/pkg/matching"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

// InvoiceHandler handles invoice API endpoints
type InvoiceHandler struct {
	repo       *invoice.Repository
	results    *matchresult.Repository
	exceptions *matchexception.Repository
	engine     *matching.Engine
	logger     ectologger.Logger
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(
	repo *invoice.Repository,
	results *matchresult.Repository,
	exceptions *matchexception.Repository,
	engine *matching.Engine,
	logger ectologger.Logger,
) *InvoiceHandler {
	return &InvoiceHandler{
		repo:       repo,
		results:    results,
		exceptions: exceptions,
		engine:     engine,
		logger:     logger,
	}
}

// MatchInvoiceRequest represents the synchronous match request body
type MatchInvoiceRequest struct {
	AutoApproveThreshold *float64 `json:"auto_approve_threshold,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// Register registers invoice routes
func (h *InvoiceHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.GetByID)
	g.POST("/:id/match", h.Match)
	g.GET("/:id/results", h.ListResults)
	g.GET("/:id/exceptions", h.ListExceptions)
}

// List returns invoices, optionally filtered by matching status
func (h *InvoiceHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "InvoiceHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	limit, offset := pagination(c)
	invoices, err := h.repo.List(ctx, tenantID, c.QueryParam("matching_status"), limit, offset)
	if err != nil {
		return err
	}

	return SuccessResponse(c, invoices)
}

// Create creates a new invoice in the unmatched state
func (h *InvoiceHandler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "InvoiceHandler.Create")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req models.CreateInvoiceRequest
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

	h.logger.WithContext(ctx).Infof("Created invoice: %s", created.ID)
	return CreatedResponse(c, created)
}

// GetByID returns an invoice by ID
func (h *InvoiceHandler) GetByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "InvoiceHandler.GetByID")
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

	inv, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, inv)
}

// Match runs the matching engine against a single invoice synchronously and
// returns the new match result.
func (h *InvoiceHandler) Match(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "InvoiceHandler.Match")
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

	var req MatchInvoiceRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	result, err := h.engine.MatchInvoice(ctx, tenantID, id, req.AutoApproveThreshold)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to match invoice")
		return err
	}

	return SuccessResponse(c, result)
}

// ListResults returns the match history of an invoice, newest first
func (h *InvoiceHandler) ListResults(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "InvoiceHandler.ListResults")
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

	results, err := h.results.ListByInvoice(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, results)
}

// ListExceptions returns the exceptions raised for an invoice
func (h *InvoiceHandler) ListExceptions(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "InvoiceHandler.ListExceptions")
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

	exceptions, err := h.exceptions.ListByInvoice(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, exceptions)
}
