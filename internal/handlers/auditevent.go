package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/mmtuentertainment/apmatch/internal/repositories/auditevent"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

// AuditEventHandler exposes the read side of the audit trail
type AuditEventHandler struct {
	repo   *auditevent.Repository
	logger ectologger.Logger
}

// NewAuditEventHandler creates a new audit event handler
func NewAuditEventHandler(repo *auditevent.Repository, logger ectologger.Logger) *AuditEventHandler {
	return &AuditEventHandler{
		repo:   repo,
		logger: logger,
	}
}

// Register registers audit event routes
func (h *AuditEventHandler) Register(g *echo.Group) {
	g.GET("", h.List)
}

// List returns audit events, optionally filtered by event type or invoice
func (h *AuditEventHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "AuditEventHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	limit, offset := pagination(c)
	events, err := h.repo.List(ctx, tenantID, c.QueryParam("event_type"), c.QueryParam("invoice_id"), limit, offset)
	if err != nil {
		return err
	}

	return SuccessResponse(c, events)
}
