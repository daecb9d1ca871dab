// Package jobs runs asynchronous batch matching: an orchestrator drives one
// job to completion and a processor consumes jobs from the Redis Streams
// queue.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/mmtuentertainment/apmatch/pkg/database"
	"github.com/mmtuentertainment/apmatch/pkg/metrics"
	"github.com/mmtuentertainment/apmatch/pkg/models"
	"github.com/mmtuentertainment/apmatch/pkg/tracing"
)

// JobRepository persists match jobs and their progress
type JobRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.MatchJob, error)
	MarkProcessing(ctx context.Context, tenantID, id string) (*models.MatchJob, error)
	UpdateProgress(ctx context.Context, tenantID, id string, processed, matched, exceptions int, jobErrors []models.JobError) error
	Complete(ctx context.Context, tenantID, id string, processed, matched, exceptions int, jobErrors []models.JobError, summary *models.JobSummary) error
	Fail(ctx context.Context, tenantID, id, errorMessage string) error
	IsCancelled(ctx context.Context, tenantID, id string) (bool, error)
}

// InvoiceLister resolves the "all unmatched" target set for a job
type InvoiceLister interface {
	ListUnmatchedIDs(ctx context.Context, tenantID string) ([]string, error)
}

// Matcher matches a single invoice; satisfied by the matching engine
type Matcher interface {
	MatchInvoice(ctx context.Context, tenantID, invoiceID string, autoApproveOverride *float64) (*models.MatchResult, error)
}

// AuditEmitter records audit events for job lifecycle transitions
type AuditEmitter interface {
	Emit(ctx context.Context, event *models.AuditEvent) error
}

// OrchestratorConfig bounds checkpointing and error retention
type OrchestratorConfig struct {
	// ProgressInterval is how many invoices to process between progress
	// checkpoints and cancellation checks.
	ProgressInterval int

	// MaxErrors bounds the error list stored on the job; only the most
	// recent errors are kept.
	MaxErrors int
}

// Orchestrator drives one batch matching job from queued to a terminal
// state. Each invoice's result is persisted as soon as it is computed, so a
// failure partway through never rolls back finished invoices.
type Orchestrator struct {
	repo     JobRepository
	invoices InvoiceLister
	matcher  Matcher
	audit    AuditEmitter
	config   OrchestratorConfig
	logger   ectologger.Logger
}

// NewOrchestrator creates a new job orchestrator
func NewOrchestrator(
	repo JobRepository,
	invoices InvoiceLister,
	matcher Matcher,
	audit AuditEmitter,
	config OrchestratorConfig,
	logger ectologger.Logger,
) *Orchestrator {
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = 10
	}
	if config.MaxErrors <= 0 {
		config.MaxErrors = 20
	}
	return &Orchestrator{
		repo:     repo,
		invoices: invoices,
		matcher:  matcher,
		audit:    audit,
		config:   config,
		logger:   logger,
	}
}

// Run executes a match job to completion. It is safe to call for a job that
// was cancelled while queued; the job is left untouched.
func (o *Orchestrator) Run(ctx context.Context, tenantID, jobID string) error {
	ctx, span := tracing.StartSpan(ctx, "jobs.Orchestrator.Run")
	defer span.End()

	start := time.Now()

	log := o.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"job_id":    jobID,
	})

	job, err := o.repo.GetByID(ctx, tenantID, jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case models.MatchJobStatusQueued:
		// proceed
	case models.MatchJobStatusCancelled:
		log.Info("Job was cancelled before it started")
		return nil
	default:
		log.Warnf("Job is %s, not runnable", job.Status)
		return nil
	}

	job, err = o.repo.MarkProcessing(ctx, tenantID, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	o.emitAudit(ctx, tenantID, jobID, models.AuditEventJobStarted, nil)

	invoiceIDs := job.InvoiceIDs.GetValue()
	if len(invoiceIDs) == 0 {
		invoiceIDs, err = o.invoices.ListUnmatchedIDs(ctx, tenantID)
		if err != nil {
			// the job could not start at all
			return o.fail(ctx, tenantID, jobID, fmt.Sprintf("failed to load invoice set: %v", err), start)
		}
	}

	log.Infof("Processing %d invoices", len(invoiceIDs))

	var (
		processed    int
		matched      int
		partial      int
		exceptions   int
		failed       int
		autoApproved int
		jobErrors    []models.JobError
	)

	for _, invoiceID := range invoiceIDs {
		if ctx.Err() != nil {
			return o.fail(ctx, tenantID, jobID, "job interrupted: "+ctx.Err().Error(), start)
		}

		cancelled, err := o.repo.IsCancelled(ctx, tenantID, jobID)
		if err != nil {
			log.WithError(err).Warn("Failed to check job cancellation")
		} else if cancelled {
			log.Infof("Job cancelled after %d invoices", processed)
			metrics.RecordJob(tenantID, models.MatchJobStatusCancelled, time.Since(start).Seconds())
			return nil
		}

		result, err := o.matcher.MatchInvoice(ctx, tenantID, invoiceID, job.AutoApproveThreshold)
		processed++

		if err != nil {
			failed++
			jobErrors = appendBounded(jobErrors, models.JobError{
				InvoiceID: invoiceID,
				Message:   err.Error(),
				At:        time.Now().UTC(),
			}, o.config.MaxErrors)
			log.WithError(err).Warnf("Failed to match invoice %s", invoiceID)
		} else {
			switch result.MatchStatus {
			case models.MatchStatusMatched:
				matched++
			case models.MatchStatusPartial:
				partial++
			default:
				exceptions++
			}
			if result.ApprovalStatus == models.ApprovalStatusAutoApproved {
				autoApproved++
			}
		}

		if processed%o.config.ProgressInterval == 0 {
			if err := o.repo.UpdateProgress(ctx, tenantID, jobID, processed, matched, exceptions, jobErrors); err != nil {
				log.WithError(err).Warn("Failed to checkpoint job progress")
			}
		}
	}

	duration := time.Since(start)
	summary := &models.JobSummary{
		TotalInvoices:  len(invoiceIDs),
		Matched:        matched,
		Partial:        partial,
		Exceptions:     exceptions,
		Failed:         failed,
		Errors:         len(jobErrors),
		AutoApproved:   autoApproved,
		DurationMillis: int(duration.Milliseconds()),
	}

	if err := o.repo.Complete(ctx, tenantID, jobID, processed, matched, exceptions, jobErrors, summary); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	metrics.RecordJob(tenantID, models.MatchJobStatusCompleted, duration.Seconds())
	o.emitAudit(ctx, tenantID, jobID, models.AuditEventJobCompleted, map[string]any{
		"total_invoices": summary.TotalInvoices,
		"matched":        summary.Matched,
		"partial":        summary.Partial,
		"exceptions":     summary.Exceptions,
		"failed":         summary.Failed,
		"auto_approved":  summary.AutoApproved,
		"duration_ms":    summary.DurationMillis,
	})

	log.Infof("Job completed: %d processed, %d matched, %d exceptions in %s", processed, matched, exceptions, duration)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, tenantID, jobID, message string, start time.Time) error {
	if err := o.repo.Fail(ctx, tenantID, jobID, message); err != nil {
		o.logger.WithContext(ctx).WithError(err).Error("Failed to mark job failed")
	}
	metrics.RecordJob(tenantID, models.MatchJobStatusFailed, time.Since(start).Seconds())
	o.emitAudit(ctx, tenantID, jobID, models.AuditEventJobFailed, map[string]any{
		"error_message": message,
	})
	return fmt.Errorf("job %s failed: %s", jobID, message)
}

func (o *Orchestrator) emitAudit(ctx context.Context, tenantID, jobID, eventType string, after map[string]any) {
	if after == nil {
		after = map[string]any{}
	}
	after["job_id"] = jobID

	event := &models.AuditEvent{
		TenantID:  tenantID,
		EventType: eventType,
		Actor:     "system",
		After:     database.JSONB[map[string]any]{Data: after},
	}
	if err := o.audit.Emit(ctx, event); err != nil {
		o.logger.WithContext(ctx).WithError(err).Error("failed to emit job audit event")
	}
}

// appendBounded appends keeping only the most recent max entries
func appendBounded(errs []models.JobError, err models.JobError, max int) []models.JobError {
	errs = append(errs, err)
	if len(errs) > max {
		errs = errs[len(errs)-max:]
	}
	return errs
}
