package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/mmtuentertainment/apmatch/internal/repositories/matchjob"
	"github.com/mmtuentertainment/apmatch/pkg/jobs"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/redis"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

// MatchJobHandler handles batch matching job API endpoints
type MatchJobHandler struct {
	repo     *matchjob.Repository
	streams  *redis.Streams
	jobQueue string
	logger   ectologger.Logger
}

// NewMatchJobHandler creates a new match job handler
func NewMatchJobHandler(
	repo *matchjob.Repository,
	streams *redis.Streams,
	jobQueue string,
	logger ectologger.Logger,
) *MatchJobHandler {
	return &MatchJobHandler{
		repo:     repo,
		streams:  streams,
		jobQueue: jobQueue,
		logger:   logger,
	}
}

// Register registers match job routes
func (h *MatchJobHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.GetByID)
	g.POST("/:id/cancel", h.Cancel)
}

// List returns match jobs for the current tenant, newest first
func (h *MatchJobHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MatchJobHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	limit, offset := pagination(c)
	matchJobs, err := h.repo.List(ctx, tenantID, limit, offset)
	if err != nil {
		return err
	}

	return SuccessResponse(c, matchJobs)
}

// Create enqueues a batch matching job and returns 202 with the job ID. The
// job runs asynchronously; poll GetByID for progress.
func (h *MatchJobHandler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MatchJobHandler.Create")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req models.CreateMatchJobRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(err.Error())
	}

	job, err := h.repo.Create(ctx, tenantID, &req)
	if err != nil {
		return err
	}

	if _, err := jobs.PublishMatchBatch(ctx, h.streams, h.jobQueue, jobs.MatchBatchJob{
		JobID:    job.ID,
		TenantID: tenantID,
	}); err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to enqueue match job")
		if failErr := h.repo.Fail(ctx, tenantID, job.ID, "failed to enqueue job"); failErr != nil {
			h.logger.WithContext(ctx).WithError(failErr).Error("Failed to mark unenqueued job failed")
		}
		return err
	}

	h.logger.WithContext(ctx).Infof("Enqueued match job: %s", job.ID)
	return AcceptedResponse(c, map[string]string{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// GetByID returns a match job with its progress counters and, once complete,
// its result summary.
func (h *MatchJobHandler) GetByID(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MatchJobHandler.GetByID")
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

	job, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, job)
}

// Cancel requests cancellation of a queued or processing job. A processing
// job stops at its next cancellation check; already-processed invoices keep
// their results.
func (h *MatchJobHandler) Cancel(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MatchJobHandler.Cancel")
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

	job, err := h.repo.TryMarkCancelled(ctx, tenantID, id)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).Infof("Cancelled match job: %s", id)
	return SuccessResponse(c, job)
}
