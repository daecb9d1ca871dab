package matchjob

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/mmtuentertainment/apmatch/pkg/database"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

const jobColumns = "id, tenant_id, status, invoice_ids, auto_approve_threshold, processed_count, matched_count, exception_count, error_message, errors, result_summary, started_at, completed_at, created_at, updated_at"

// Repository handles match job persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match job repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create enqueues a new match job in the queued state
func (r *Repository) Create(ctx context.Context, tenantID string, req *models.CreateMatchJobRequest) (*models.MatchJob, error) {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	job := &models.MatchJob{
		ID:                   uuid.New().String(),
		TenantID:             tenantID,
		Status:               models.MatchJobStatusQueued,
		InvoiceIDs:           database.JSONB[[]string]{Data: req.InvoiceIDs},
		AutoApproveThreshold: req.AutoApproveThreshold,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_jobs")
	sb.Cols("id", "tenant_id", "status", "invoice_ids", "auto_approve_threshold", "processed_count", "matched_count", "exception_count", "created_at", "updated_at")
	sb.Values(job.ID, job.TenantID, job.Status, job.InvoiceIDs, job.AutoApproveThreshold, 0, 0, 0, job.CreatedAt, job.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create match job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create match job")
	}

	return job, nil
}

// GetByID retrieves a match job by ID
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.MatchJob, error) {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(jobColumns)
	sb.From("match_jobs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var job models.MatchJob
	if err := r.db.GetContext(ctx, &job, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("match job %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match job")
	}

	return &job, nil
}

// List retrieves match jobs for a tenant, newest first
func (r *Repository) List(ctx context.Context, tenantID string, limit, offset int) ([]models.MatchJob, error) {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(jobColumns)
	sb.From("match_jobs")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	var jobs []models.MatchJob
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list match jobs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match jobs")
	}

	return jobs, nil
}

// MarkProcessing transitions a queued job to processing and stamps started_at
func (r *Repository) MarkProcessing(ctx context.Context, tenantID, id string) (*models.MatchJob, error) {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.MarkProcessing")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("match_jobs")
	sb.Set(
		sb.Assign("status", models.MatchJobStatusProcessing),
		sb.Assign("started_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", models.MatchJobStatusQueued),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark job processing")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark job processing")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "match job %s is not queued", id)
	}

	return r.GetByID(ctx, tenantID, id)
}

// UpdateProgress checkpoints the running counters of a job
func (r *Repository) UpdateProgress(ctx context.Context, tenantID, id string, processed, matched, exceptions int, jobErrors []models.JobError) error {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.UpdateProgress")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("match_jobs")
	sb.Set(
		sb.Assign("processed_count", processed),
		sb.Assign("matched_count", matched),
		sb.Assign("exception_count", exceptions),
		sb.Assign("errors", database.JSONB[[]models.JobError]{Data: jobErrors}),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", models.MatchJobStatusProcessing),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to checkpoint job progress")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to checkpoint job progress")
	}

	return nil
}

// Complete transitions a processing job to completed with its final counters
// and summary
func (r *Repository) Complete(ctx context.Context, tenantID, id string, processed, matched, exceptions int, jobErrors []models.JobError, summary *models.JobSummary) error {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.Complete")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("match_jobs")
	sb.Set(
		sb.Assign("status", models.MatchJobStatusCompleted),
		sb.Assign("processed_count", processed),
		sb.Assign("matched_count", matched),
		sb.Assign("exception_count", exceptions),
		sb.Assign("errors", database.JSONB[[]models.JobError]{Data: jobErrors}),
		sb.Assign("result_summary", database.JSONB[*models.JobSummary]{Data: summary}),
		sb.Assign("completed_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", models.MatchJobStatusProcessing),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to complete match job")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete match job")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "match job %s is not processing", id)
	}

	return nil
}

// Fail transitions a job to failed with an error message
func (r *Repository) Fail(ctx context.Context, tenantID, id, errorMessage string) error {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.Fail")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("match_jobs")
	sb.Set(
		sb.Assign("status", models.MatchJobStatusFailed),
		sb.Assign("error_message", errorMessage),
		sb.Assign("completed_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.In("status", models.MatchJobStatusQueued, models.MatchJobStatusProcessing),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark match job failed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark match job failed")
	}

	return nil
}

// TryMarkCancelled requests cancellation of a queued or processing job.
// A processing job stops at its next cancellation check.
func (r *Repository) TryMarkCancelled(ctx context.Context, tenantID, id string) (*models.MatchJob, error) {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.TryMarkCancelled")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("match_jobs")
	sb.Set(
		sb.Assign("status", models.MatchJobStatusCancelled),
		sb.Assign("completed_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.In("status", models.MatchJobStatusQueued, models.MatchJobStatusProcessing),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to cancel match job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to cancel match job")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		job, err := r.GetByID(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "match job %s is %s and cannot be cancelled", id, job.Status)
	}

	return r.GetByID(ctx, tenantID, id)
}

// IsCancelled reports whether a job has been cancelled. Polled by the
// orchestrator between invoices.
func (r *Repository) IsCancelled(ctx context.Context, tenantID, id string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "matchjob.Repository.IsCancelled")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("status")
	sb.From("match_jobs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var status string
	if err := r.db.GetContext(ctx, &status, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return false, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("match job %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check job cancellation")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check job cancellation")
	}

	return status == models.MatchJobStatusCancelled, nil
}
