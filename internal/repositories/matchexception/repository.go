package matchexception

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

const exceptionColumns = "id, tenant_id, match_result_id, invoice_id, exception_type, severity, field_name, expected_value, actual_value, variance_amount, status, priority, due_date, resolution, resolution_notes, resolved_by, resolved_at, escalated_from, escalated_to, details, created_at, updated_at"

// Repository handles match exception persistence and its status lifecycle:
// open -> in_review -> resolved | dismissed | escalated. Escalation closes
// the exception and opens a replacement at higher severity.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match exception repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new exception in the open state
func (r *Repository) Create(ctx context.Context, exception *models.MatchException) (*models.MatchException, error) {
	ctx, span := tracing.StartSpan(ctx, "matchexception.Repository.Create")
	defer span.End()

	if exception.ID == "" {
		exception.ID = uuid.New().String()
	}
	if exception.Status == "" {
		exception.Status = models.ExceptionStatusOpen
	}
	exception.CreatedAt = time.Now().UTC()
	exception.UpdatedAt = exception.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_exceptions")
	sb.Cols("id", "tenant_id", "match_result_id", "invoice_id", "exception_type", "severity", "field_name", "expected_value", "actual_value", "variance_amount", "status", "priority", "due_date", "resolution", "resolution_notes", "resolved_by", "resolved_at", "escalated_from", "escalated_to", "details", "created_at", "updated_at")
	sb.Values(exception.ID, exception.TenantID, exception.MatchResultID, exception.InvoiceID, exception.ExceptionType, exception.Severity, exception.FieldName, exception.ExpectedValue, exception.ActualValue, exception.VarianceAmount, exception.Status, exception.Priority, exception.DueDate, exception.Resolution, exception.ResolutionNotes, exception.ResolvedBy, exception.ResolvedAt, exception.EscalatedFrom, exception.EscalatedTo, exception.Details, exception.CreatedAt, exception.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"invoice_id": exception.InvoiceID}).Error("Failed to create match exception")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create match exception")
	}

	return exception, nil
}

// GetByID retrieves a match exception by ID
func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*models.MatchException, error) {
	ctx, span := tracing.StartSpan(ctx, "matchexception.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(exceptionColumns)
	sb.From("match_exceptions")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var exception models.MatchException
	if err := r.db.GetContext(ctx, &exception, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("match exception %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match exception")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match exception")
	}

	return &exception, nil
}

// List retrieves exceptions for a tenant, optionally filtered by status.
// Ordered by priority (urgent first), then recency.
func (r *Repository) List(ctx context.Context, tenantID, status string, limit, offset int) ([]models.MatchException, error) {
	ctx, span := tracing.StartSpan(ctx, "matchexception.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(exceptionColumns)
	sb.From("match_exceptions")

	where := []string{sb.Equal("tenant_id", tenantID)}
	if status != "" {
		where = append(where, sb.Equal("status", status))
	}
	sb.Where(where...)
	sb.OrderBy("priority ASC", "created_at DESC")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	var exceptions []models.MatchException
	if err := r.db.SelectContext(ctx, &exceptions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list match exceptions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match exceptions")
	}

	return exceptions, nil
}

// ListByInvoice retrieves all exceptions for an invoice
func (r *Repository) ListByInvoice(ctx context.Context, tenantID, invoiceID string) ([]models.MatchException, error) {
	ctx, span := tracing.StartSpan(ctx, "matchexception.Repository.ListByInvoice")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(exceptionColumns)
	sb.From("match_exceptions")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("invoice_id", invoiceID),
	)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var exceptions []models.MatchException
	if err := r.db.SelectContext(ctx, &exceptions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list match exceptions by invoice")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match exceptions")
	}

	return exceptions, nil
}

// Review moves an open exception into review
func (r *Repository) Review(ctx context.Context, tenantID, id string) (*models.MatchException, error) {
	ctx, span := tracing.StartSpan(ctx, "matchexception.Repository.Review")
	defer span.End()

	exception, err := r.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if exception.Status != models.ExceptionStatusOpen {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "exception %s is %s, only open exceptions can be reviewed", id, exception.Status)
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("match_exceptions")
	sb.Set(
		sb.Assign("status", models.ExceptionStatusInReview),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", models.ExceptionStatusOpen),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to move exception into review")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update exception")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "exception %s changed state, retry", id)
	}

	return r.GetByID(ctx, tenantID, id)
}

// Resolve closes an exception with a terminal disposition. Only open or
// in-review exceptions can be resolved.
func (r *Repository) Resolve(ctx context.Context, tenantID, id, resolution string, notes *string, resolvedBy string) (*models.MatchException, error) {
	ctx, span := tracing.StartSpan(ctx, "matchexception.Repository.Resolve")
	defer span.End()

	return r.close(ctx, tenantID, id, models.ExceptionStatusResolved, resolution, notes, resolvedBy)
}

// Dismiss closes an exception without action
func (r *Repository) Dismiss(ctx context.Context, tenantID, id string, notes *string, resolvedBy string) (*models.MatchException, error) {
	ctx, span := tracing.StartSpan(ctx, "matchexception.Repository.Dismiss")
	defer span.End()

	return r.close(ctx, tenantID, id, models.ExceptionStatusDismissed, "", notes, resolvedBy)
}

func (r *Repository) close(ctx context.Context, tenantID, id, status, resolution string, notes *string, resolvedBy string) (*models.MatchException, error) {
	exception, err := r.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if exception.Status != models.ExceptionStatusOpen && exception.Status != models.ExceptionStatusInReview {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "exception %s is %s and cannot be closed", id, exception.Status)
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("match_exceptions")
	assignments := []string{
		sb.Assign("status", status),
		sb.Assign("resolution_notes", notes),
		sb.Assign("resolved_by", resolvedBy),
		sb.Assign("resolved_at", now),
		sb.Assign("updated_at", now),
	}
	if resolution != "" {
		assignments = append(assignments, sb.Assign("resolution", resolution))
	}
	sb.Set(assignments...)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.In("status", models.ExceptionStatusOpen, models.ExceptionStatusInReview),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to close match exception")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to close match exception")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "exception %s changed state, retry", id)
	}

	return r.GetByID(ctx, tenantID, id)
}

// Escalate closes an exception and opens a replacement at high severity,
// priority 1, linked both ways. Returns the replacement.
func (r *Repository) Escalate(ctx context.Context, tenantID, id string, notes *string, escalatedBy string) (*models.MatchException, error) {
	ctx, span := tracing.StartSpan(ctx, "matchexception.Repository.Escalate")
	defer span.End()

	original, err := r.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if original.Status != models.ExceptionStatusOpen && original.Status != models.ExceptionStatusInReview {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "exception %s is %s and cannot be escalated", id, original.Status)
	}

	now := time.Now().UTC()
	replacement := &models.MatchException{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		MatchResultID:  original.MatchResultID,
		InvoiceID:      original.InvoiceID,
		ExceptionType:  original.ExceptionType,
		Severity:       models.ExceptionSeverityHigh,
		FieldName:      original.FieldName,
		ExpectedValue:  original.ExpectedValue,
		ActualValue:    original.ActualValue,
		VarianceAmount: original.VarianceAmount,
		Status:         models.ExceptionStatusOpen,
		Priority:       1,
		DueDate:        now.Add(3 * 24 * time.Hour),
		EscalatedFrom:  &original.ID,
		Details:        original.Details,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_exceptions")
	sb.Cols("id", "tenant_id", "match_result_id", "invoice_id", "exception_type", "severity", "field_name", "expected_value", "actual_value", "variance_amount", "status", "priority", "due_date", "escalated_from", "details", "created_at", "updated_at")
	sb.Values(replacement.ID, replacement.TenantID, replacement.MatchResultID, replacement.InvoiceID, replacement.ExceptionType, replacement.Severity, replacement.FieldName, replacement.ExpectedValue, replacement.ActualValue, replacement.VarianceAmount, replacement.Status, replacement.Priority, replacement.DueDate, replacement.EscalatedFrom, replacement.Details, replacement.CreatedAt, replacement.UpdatedAt)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create escalated exception")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to escalate exception")
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("match_exceptions")
	ub.Set(
		ub.Assign("status", models.ExceptionStatusEscalated),
		ub.Assign("escalated_to", replacement.ID),
		ub.Assign("resolution_notes", notes),
		ub.Assign("resolved_by", escalatedBy),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
		ub.In("status", models.ExceptionStatusOpen, models.ExceptionStatusInReview),
	)

	query, args = ub.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark exception escalated")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to escalate exception")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "exception %s changed state, retry", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit")
	}

	return replacement, nil
}
