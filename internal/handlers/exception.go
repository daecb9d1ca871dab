package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/mmtuentertainment/apmatch/internal/repositories/matchexception"
	"github.com/mmtuentertainment/apmatch/pkg/database"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

// AuditEmitter records audit events for exception lifecycle transitions
type AuditEmitter interface {
	Emit(ctx context.Context, event *models.AuditEvent) error
}

// ExceptionHandler handles the exception review queue API
type ExceptionHandler struct {
	repo   *matchexception.Repository
	audit  AuditEmitter
	logger ectologger.Logger
}

// NewExceptionHandler creates a new exception handler
func NewExceptionHandler(
	repo *matchexception.Repository,
	audit AuditEmitter,
	logger ectologger.Logger,
) *ExceptionHandler {
	return &ExceptionHandler{
		repo:   repo,
		audit:  audit,
		logger: logger,
	}
}

// ExceptionNotesRequest carries optional reviewer notes
type ExceptionNotesRequest struct {
	Notes *string `json:"notes,omitempty"`
}

// Register registers exception routes
func (h *ExceptionHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.GetByID)
	g.POST("/:id/review", h.Review)
	g.POST("/:id/resolve", h.Resolve)
	g.POST("/:id/dismiss", h.Dismiss)
	g.POST("/:id/escalate", h.Escalate)
}

// List returns exceptions ordered by priority then recency, optionally
// filtered by status.
func (h *ExceptionHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ExceptionHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	limit, offset := pagination(c)
	exceptions, err := h.repo.List(ctx, tenantID, c.QueryParam("status"), limit, offset)
	if err != nil {
		return err
	}

	return SuccessResponse(c, exceptions)
}

// GetByID returns an exception by ID
func (h *ExceptionHandler) GetByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ExceptionHandler.GetByID")
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

	exception, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, exception)
}

// Review moves an open exception into review
func (h *ExceptionHandler) Review(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ExceptionHandler.Review")
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

	exception, err := h.repo.Review(ctx, tenantID, id)
	if err != nil {
		return err
	}

	h.emitStatusChange(ctx, exception, models.AuditEventExceptionStatusChanged, models.ExceptionStatusOpen)
	return SuccessResponse(c, exception)
}

// Resolve closes an exception with a terminal disposition
func (h *ExceptionHandler) Resolve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ExceptionHandler.Resolve")
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

	var req models.ResolveExceptionRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	before, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	exception, err := h.repo.Resolve(ctx, tenantID, id, req.Resolution, req.Notes, Actor(c))
	if err != nil {
		return err
	}

	h.emitStatusChange(ctx, exception, models.AuditEventExceptionResolved, before.Status)
	h.logger.WithContext(ctx).Infof("Resolved exception %s as %s", id, req.Resolution)
	return SuccessResponse(c, exception)
}

// Dismiss closes an exception without action
func (h *ExceptionHandler) Dismiss(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ExceptionHandler.Dismiss")
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

	var req ExceptionNotesRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	before, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	exception, err := h.repo.Dismiss(ctx, tenantID, id, req.Notes, Actor(c))
	if err != nil {
		return err
	}

	h.emitStatusChange(ctx, exception, models.AuditEventExceptionStatusChanged, before.Status)
	return SuccessResponse(c, exception)
}

// Escalate closes an exception and opens a high-severity replacement
func (h *ExceptionHandler) Escalate(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ExceptionHandler.Escalate")
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

	var req ExceptionNotesRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	replacement, err := h.repo.Escalate(ctx, tenantID, id, req.Notes, Actor(c))
	if err != nil {
		return err
	}

	event := &models.AuditEvent{
		TenantID:    tenantID,
		EventType:   models.AuditEventExceptionEscalated,
		InvoiceID:   &replacement.InvoiceID,
		ExceptionID: &replacement.ID,
		Before:      database.JSONB[map[string]any]{Data: map[string]any{"exception_id": id}},
		After: database.JSONB[map[string]any]{Data: map[string]any{
			"exception_id": replacement.ID,
			"severity":     replacement.Severity,
			"priority":     replacement.Priority,
		}},
	}
	if err := h.audit.Emit(ctx, event); err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to emit escalation audit event")
	}

	h.logger.WithContext(ctx).Infof("Escalated exception %s to %s", id, replacement.ID)
	return CreatedResponse(c, replacement)
}

func (h *ExceptionHandler) emitStatusChange(ctx context.Context, exception *models.MatchException, eventType, previousStatus string) {
	event := &models.AuditEvent{
		TenantID:    exception.TenantID,
		EventType:   eventType,
		InvoiceID:   &exception.InvoiceID,
		ExceptionID: &exception.ID,
		Before:      database.JSONB[map[string]any]{Data: map[string]any{"status": previousStatus}},
		After:       database.JSONB[map[string]any]{Data: map[string]any{"status": exception.Status}},
	}
	if err := h.audit.Emit(ctx, event); err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to emit exception audit event")
	}
}
