package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/mmtuentertainment/apmatch/internal/repositories/vendornormalization"
	"github.com/mmtuentertainment/apmatch/pkg/jobs"
	"github.com/mmtuentertainment/apmatch/pkg/normalizer"
	"github.com/mmtuentertainment/apmatch/pkg/redis"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

// NormalizationHandler handles the vendor duplicate review queue
type NormalizationHandler struct {
	repo     *vendornormalization.Repository
	service  *normalizer.Service
	streams  *redis.Streams
	jobQueue string
	logger   ectologger.Logger
}

// NewNormalizationHandler creates a new normalization handler
func NewNormalizationHandler(
	repo *vendornormalization.Repository,
	service *normalizer.Service,
	streams *redis.Streams,
	jobQueue string,
	logger ectologger.Logger,
) *NormalizationHandler {
	return &NormalizationHandler{
		repo:     repo,
		service:  service,
		streams:  streams,
		jobQueue: jobQueue,
		logger:   logger,
	}
}

// Register registers normalization routes
func (h *NormalizationHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("/scan", h.Scan)
	g.POST("/:id/approve", h.Approve)
	g.POST("/:id/reject", h.Reject)
}

// List returns detected duplicate pairs, optionally filtered by status
func (h *NormalizationHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "NormalizationHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	limit, _ := pagination(c)
	normalizations, err := h.repo.List(ctx, tenantID, c.QueryParam("status"), limit)
	if err != nil {
		return err
	}

	return SuccessResponse(c, normalizations)
}

// Scan enqueues an async duplicate scan over the tenant's active vendors
func (h *NormalizationHandler) Scan(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "NormalizationHandler.Scan")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	messageID, err := jobs.PublishVendorNormalization(ctx, h.streams, h.jobQueue, jobs.VendorNormalizationJob{
		TenantID: tenantID,
	})
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to enqueue vendor normalization scan")
		return err
	}

	h.logger.WithContext(ctx).Infof("Enqueued vendor normalization scan: %s", messageID)
	return AcceptedResponse(c, map[string]string{
		"message_id": messageID,
		"status":     "queued",
	})
}

// Approve merges the duplicate into its canonical vendor
func (h *NormalizationHandler) Approve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "NormalizationHandler.Approve")
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

	normalization, err := h.service.ApproveNormalization(ctx, tenantID, id, Actor(c))
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to approve normalization")
		return err
	}

	return SuccessResponse(c, normalization)
}

// Reject marks a detected duplicate pair as not a duplicate
func (h *NormalizationHandler) Reject(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "NormalizationHandler.Reject")
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

	normalization, err := h.service.RejectNormalization(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, normalization)
}
