package handlers

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/mmtuentertainment/apmatch/internal/repositories/invoice"
	"github.com/mmtuentertainment/apmatch/internal/repositories/matchresult"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

// MatchResultHandler handles match result API endpoints. Results are
// append-only; the only mutation is the approval decision.
type MatchResultHandler struct {
	repo     *matchresult.Repository
	invoices *invoice.Repository
	logger   ectologger.Logger
}

// NewMatchResultHandler creates a new match result handler
func NewMatchResultHandler(
	repo *matchresult.Repository,
	invoices *invoice.Repository,
	logger ectologger.Logger,
) *MatchResultHandler {
	return &MatchResultHandler{
		repo:     repo,
		invoices: invoices,
		logger:   logger,
	}
}

// Register registers match result routes
func (h *MatchResultHandler) Register(g *echo.Group) {
	g.GET("/:id", h.GetByID)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/reject", h.Reject)
}

// GetByID returns a match result by ID
func (h *MatchResultHandler) GetByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MatchResultHandler.GetByID")
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

	result, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, result)
}

// Approve approves a pending match result and marks its invoice matched
func (h *MatchResultHandler) Approve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MatchResultHandler.Approve")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	return h.decide(c, models.ApprovalStatusApproved)
}

// Reject rejects a pending match result and returns its invoice to the
// exception state for rework.
func (h *MatchResultHandler) Reject(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MatchResultHandler.Reject")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	return h.decide(c, models.ApprovalStatusRejected)
}

func (h *MatchResultHandler) decide(c echo.Context, approvalStatus string) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	result, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if result.ApprovalStatus != models.ApprovalStatusPending {
		return httperror.NewHTTPErrorf(http.StatusConflict, "match result %s is %s, only pending results can be decided", id, result.ApprovalStatus)
	}

	if err := h.repo.UpdateApprovalStatus(ctx, tenantID, id, approvalStatus); err != nil {
		return err
	}

	invoiceStatus := models.InvoiceMatchingStatusMatched
	if approvalStatus == models.ApprovalStatusRejected {
		invoiceStatus = models.InvoiceMatchingStatusException
	}
	if err := h.invoices.UpdateMatchingStatus(ctx, tenantID, result.InvoiceID, invoiceStatus); err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("Failed to update invoice status after approval decision")
	}

	result.ApprovalStatus = approvalStatus
	h.logger.WithContext(ctx).Infof("Match result %s %s by %s", id, approvalStatus, Actor(c))
	return SuccessResponse(c, result)
}
